// Package sqlite is the single-file Repository for small deployments.
// It rides on modernc.org/sqlite (no cgo) through sqlx. MaxOpenConns(1)
// serializes writers, so every transaction here is effectively exclusive.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"medscan/internal/domain"
	"medscan/internal/store"
)

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS medicines (
			id TEXT PRIMARY KEY,
			generic_name TEXT NOT NULL,
			brand_names TEXT NOT NULL DEFAULT '[]',
			strength TEXT NOT NULL DEFAULT '',
			form TEXT NOT NULL DEFAULT '',
			unit_price_cents INTEGER NOT NULL,
			tax_rate_bp INTEGER NOT NULL,
			current_stock INTEGER NOT NULL DEFAULT 0 CHECK (current_stock >= 0),
			min_stock_level INTEGER NOT NULL DEFAULT 0,
			reorder_quantity INTEGER NOT NULL DEFAULT 0,
			expiry_date TEXT,
			manufacturer TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS prescriptions (
			id TEXT PRIMARY KEY,
			image_checksum TEXT NOT NULL,
			extraction_payload TEXT,
			extraction_confidence REAL NOT NULL DEFAULT 0,
			readable INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS bills (
			id TEXT PRIMARY KEY,
			bill_number TEXT NOT NULL UNIQUE,
			prescription_id TEXT,
			patient_name TEXT NOT NULL DEFAULT '',
			patient_age INTEGER NOT NULL DEFAULT 0,
			patient_phone TEXT NOT NULL DEFAULT '',
			subtotal_cents INTEGER NOT NULL,
			total_tax_cents INTEGER NOT NULL,
			final_amount_cents INTEGER NOT NULL,
			status TEXT NOT NULL,
			confirmed_by TEXT NOT NULL DEFAULT '',
			confirmation_notes TEXT NOT NULL DEFAULT '',
			confirmed_at DATETIME,
			created_at DATETIME NOT NULL,
			FOREIGN KEY(prescription_id) REFERENCES prescriptions(id)
		);`,
		`CREATE TABLE IF NOT EXISTS bill_items (
			id TEXT PRIMARY KEY,
			bill_id TEXT NOT NULL,
			medicine_id TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price_cents INTEGER NOT NULL,
			line_total_cents INTEGER NOT NULL,
			tax_amount_cents INTEGER NOT NULL,
			item_total_cents INTEGER NOT NULL,
			dosage_frequency TEXT NOT NULL DEFAULT '',
			dosage_duration TEXT NOT NULL DEFAULT '',
			FOREIGN KEY(bill_id) REFERENCES bills(id),
			FOREIGN KEY(medicine_id) REFERENCES medicines(id)
		);`,
		`CREATE TABLE IF NOT EXISTS inventory_transactions (
			id TEXT PRIMARY KEY,
			medicine_id TEXT NOT NULL,
			transaction_type TEXT NOT NULL,
			quantity_change INTEGER NOT NULL,
			stock_before INTEGER NOT NULL,
			stock_after INTEGER NOT NULL,
			bill_id TEXT NOT NULL DEFAULT '',
			performed_by TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY(medicine_id) REFERENCES medicines(id)
		);`,
		`CREATE TABLE IF NOT EXISTS pharmacists (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			license_number TEXT NOT NULL UNIQUE,
			pin_hash TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			pharmacist_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_bill_items_bill ON bill_items(bill_id);`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_tx_medicine ON inventory_transactions(medicine_id, created_at);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

type medicineRow struct {
	ID              string         `db:"id"`
	GenericName     string         `db:"generic_name"`
	BrandNames      string         `db:"brand_names"`
	Strength        string         `db:"strength"`
	Form            string         `db:"form"`
	UnitPriceCents  int64          `db:"unit_price_cents"`
	TaxRateBp       int64          `db:"tax_rate_bp"`
	CurrentStock    int            `db:"current_stock"`
	MinStockLevel   int            `db:"min_stock_level"`
	ReorderQuantity int            `db:"reorder_quantity"`
	ExpiryDate      sql.NullString `db:"expiry_date"`
	Manufacturer    string         `db:"manufacturer"`
	Active          bool           `db:"active"`
}

func (r medicineRow) toDomain() (domain.Medicine, error) {
	m := domain.Medicine{
		ID:              r.ID,
		GenericName:     r.GenericName,
		Strength:        r.Strength,
		Form:            r.Form,
		UnitPriceCents:  r.UnitPriceCents,
		TaxRateBp:       r.TaxRateBp,
		CurrentStock:    r.CurrentStock,
		MinStockLevel:   r.MinStockLevel,
		ReorderQuantity: r.ReorderQuantity,
		Manufacturer:    r.Manufacturer,
		Active:          r.Active,
	}
	if r.BrandNames != "" {
		if err := json.Unmarshal([]byte(r.BrandNames), &m.BrandNames); err != nil {
			return domain.Medicine{}, fmt.Errorf("decode brand_names for %s: %w", r.ID, err)
		}
	}
	if r.ExpiryDate.Valid && r.ExpiryDate.String != "" {
		t, err := time.Parse("2006-01-02", r.ExpiryDate.String)
		if err != nil {
			return domain.Medicine{}, fmt.Errorf("decode expiry_date for %s: %w", r.ID, err)
		}
		m.ExpiryDate = &t
	}
	return m, nil
}

const medicineColumns = `id, generic_name, brand_names, strength, form, unit_price_cents, tax_rate_bp,
	current_stock, min_stock_level, reorder_quantity, expiry_date, manufacturer, active`

func (s *Store) ListMedicines(ctx context.Context, filter store.MedicineFilter) ([]domain.Medicine, error) {
	query := `SELECT ` + medicineColumns + ` FROM medicines WHERE active = 1`
	args := []any{}
	if filter.LowStockOnly {
		query += ` AND current_stock < min_stock_level`
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query += ` AND (lower(generic_name) LIKE ? OR lower(brand_names) LIKE ?)`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY generic_name`

	var rows []medicineRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rowsToMedicines(rows)
}

func (s *Store) ListAllMedicines(ctx context.Context) ([]domain.Medicine, error) {
	var rows []medicineRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+medicineColumns+` FROM medicines ORDER BY generic_name`); err != nil {
		return nil, err
	}
	return rowsToMedicines(rows)
}

func rowsToMedicines(rows []medicineRow) ([]domain.Medicine, error) {
	out := make([]domain.Medicine, 0, len(rows))
	for _, r := range rows {
		m, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	var r medicineRow
	err := s.db.GetContext(ctx, &r, `SELECT `+medicineColumns+` FROM medicines WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m, err := r.toDomain()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SetStock(ctx context.Context, medicineID string, qty int, performedBy string) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.GetContext(ctx, &current, `SELECT current_stock FROM medicines WHERE id = ?`, medicineID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE medicines SET current_stock = ? WHERE id = ?`, qty, medicineID); err != nil {
		return err
	}

	txType := domain.TxTypeRestock
	if qty < current {
		txType = domain.TxTypeAdjustment
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (id, medicine_id, transaction_type, quantity_change, stock_before, stock_after, performed_by, created_at)
		VALUES (?,?,?,?,?,?,?,?)
	`, uuid.NewString(), medicineID, txType, qty-current, current, qty, performedBy, time.Now().UTC()); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) CreatePrescription(ctx context.Context, p domain.Prescription) (*domain.Prescription, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prescriptions (id, image_checksum, extraction_payload, extraction_confidence, readable, status, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, p.ID, p.ImageChecksum, string(p.ExtractionPayload), p.ExtractionConfidence, p.Readable, p.Status, p.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := p
	return &created, nil
}

func (s *Store) GetPrescriptionByID(ctx context.Context, id string) (*domain.Prescription, error) {
	var row struct {
		ID                   string    `db:"id"`
		ImageChecksum        string    `db:"image_checksum"`
		ExtractionPayload    string    `db:"extraction_payload"`
		ExtractionConfidence float64   `db:"extraction_confidence"`
		Readable             bool      `db:"readable"`
		Status               string    `db:"status"`
		CreatedAt            time.Time `db:"created_at"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT id, image_checksum, COALESCE(extraction_payload, '') AS extraction_payload,
		       extraction_confidence, readable, status, created_at
		FROM prescriptions WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &domain.Prescription{
		ID:                   row.ID,
		ImageChecksum:        row.ImageChecksum,
		ExtractionPayload:    []byte(row.ExtractionPayload),
		ExtractionConfidence: row.ExtractionConfidence,
		Readable:             row.Readable,
		Status:               row.Status,
		CreatedAt:            row.CreatedAt,
	}, nil
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill, items []domain.BillItem) (*domain.Bill, error) {
	if bill.BillNumber == "" {
		return nil, store.ErrInvalidInput
	}
	if bill.ID == "" {
		bill.ID = uuid.NewString()
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	if bill.Status == "" {
		bill.Status = domain.BillStatusPending
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var prescriptionID any
	if bill.PrescriptionID != "" {
		prescriptionID = bill.PrescriptionID
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (id, bill_number, prescription_id, patient_name, patient_age, patient_phone,
			subtotal_cents, total_tax_cents, final_amount_cents, status, confirmation_notes, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, bill.ID, bill.BillNumber, prescriptionID, bill.PatientName, bill.PatientAge, bill.PatientPhone,
		bill.SubtotalCents, bill.TotalTaxCents, bill.FinalAmountCents, bill.Status, bill.ConfirmationNotes, bill.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateBillNumber
		}
		return nil, err
	}

	for _, item := range items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bill_items (id, bill_id, medicine_id, quantity, unit_price_cents, line_total_cents,
				tax_amount_cents, item_total_cents, dosage_frequency, dosage_duration)
			VALUES (?,?,?,?,?,?,?,?,?,?)
		`, item.ID, bill.ID, item.MedicineID, item.Quantity, item.UnitPriceCents, item.LineTotalCents,
			item.TaxAmountCents, item.ItemTotalCents, item.DosageFrequency, item.DosageDuration)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := bill
	return &created, nil
}

type billRow struct {
	ID                string       `db:"id"`
	BillNumber        string       `db:"bill_number"`
	PrescriptionID    string       `db:"prescription_id"`
	PatientName       string       `db:"patient_name"`
	PatientAge        int          `db:"patient_age"`
	PatientPhone      string       `db:"patient_phone"`
	SubtotalCents     int64        `db:"subtotal_cents"`
	TotalTaxCents     int64        `db:"total_tax_cents"`
	FinalAmountCents  int64        `db:"final_amount_cents"`
	Status            string       `db:"status"`
	ConfirmedBy       string       `db:"confirmed_by"`
	ConfirmationNotes string       `db:"confirmation_notes"`
	ConfirmedAt       sql.NullTime `db:"confirmed_at"`
	CreatedAt         time.Time    `db:"created_at"`
}

func (r billRow) toDomain() domain.Bill {
	b := domain.Bill{
		ID:                r.ID,
		BillNumber:        r.BillNumber,
		PrescriptionID:    r.PrescriptionID,
		PatientName:       r.PatientName,
		PatientAge:        r.PatientAge,
		PatientPhone:      r.PatientPhone,
		SubtotalCents:     r.SubtotalCents,
		TotalTaxCents:     r.TotalTaxCents,
		FinalAmountCents:  r.FinalAmountCents,
		Status:            r.Status,
		ConfirmedBy:       r.ConfirmedBy,
		ConfirmationNotes: r.ConfirmationNotes,
		CreatedAt:         r.CreatedAt,
	}
	if r.ConfirmedAt.Valid {
		t := r.ConfirmedAt.Time.UTC()
		b.ConfirmedAt = &t
	}
	return b
}

const billColumns = `id, bill_number, COALESCE(prescription_id, '') AS prescription_id, patient_name,
	patient_age, patient_phone, subtotal_cents, total_tax_cents, final_amount_cents, status,
	confirmed_by, confirmation_notes, confirmed_at, created_at`

func (s *Store) GetBillByID(ctx context.Context, id string) (*domain.Bill, error) {
	var r billRow
	err := s.db.GetContext(ctx, &r, `SELECT `+billColumns+` FROM bills WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b := r.toDomain()
	return &b, nil
}

func (s *Store) ListBillItems(ctx context.Context, billID string) ([]domain.BillItem, error) {
	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT count(*) FROM bills WHERE id = ?`, billID); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, store.ErrNotFound
	}

	var items []domain.BillItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, bill_id AS billid, medicine_id AS medicineid, quantity,
		       unit_price_cents AS unitpricecents, line_total_cents AS linetotalcents,
		       tax_amount_cents AS taxamountcents, item_total_cents AS itemtotalcents,
		       dosage_frequency AS dosagefrequency, dosage_duration AS dosageduration
		FROM bill_items
		WHERE bill_id = ?
		ORDER BY id
	`, billID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ConfirmBill mirrors the postgres implementation inside a single sqlite
// transaction. The single-connection pool means no other writer can
// interleave with the stock recheck and decrement.
func (s *Store) ConfirmBill(ctx context.Context, params store.ConfirmParams) (*domain.Bill, error) {
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var r billRow
	err = tx.GetContext(ctx, &r, `SELECT `+billColumns+` FROM bills WHERE id = ?`, params.BillID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	bill := r.toDomain()
	if bill.Status != domain.BillStatusPending {
		return nil, store.ErrInvalidState
	}

	var pharmacistActive bool
	err = tx.GetContext(ctx, &pharmacistActive, `SELECT active FROM pharmacists WHERE id = ?`, params.PharmacistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !pharmacistActive {
		return nil, store.ErrNotFound
	}

	type line struct {
		MedicineID string `db:"medicine_id"`
		Quantity   int    `db:"quantity"`
	}
	var lines []line
	if err := tx.SelectContext(ctx, &lines, `
		SELECT medicine_id, quantity FROM bill_items WHERE bill_id = ? ORDER BY medicine_id
	`, params.BillID); err != nil {
		return nil, err
	}

	for _, l := range lines {
		var current int
		err := tx.GetContext(ctx, &current, `SELECT current_stock FROM medicines WHERE id = ?`, l.MedicineID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if current < l.Quantity {
			return nil, store.ErrInsufficientStock
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE medicines SET current_stock = current_stock - ? WHERE id = ?
		`, l.Quantity, l.MedicineID); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_transactions (id, medicine_id, transaction_type, quantity_change, stock_before, stock_after, bill_id, performed_by, created_at)
			VALUES (?,?,?,?,?,?,?,?,?)
		`, uuid.NewString(), l.MedicineID, domain.TxTypeDispensed, -l.Quantity, current, current-l.Quantity,
			params.BillID, params.PharmacistID, at); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bills SET status = ?, confirmed_by = ?, confirmation_notes = ?, confirmed_at = ? WHERE id = ?
	`, domain.BillStatusConfirmed, params.PharmacistID, params.Notes, at, params.BillID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, pharmacist_id, action, resource_type, resource_id, detail, created_at)
		VALUES (?,?,'bill.confirm','bill',?,?,?)
	`, uuid.NewString(), params.PharmacistID, params.BillID, bill.BillNumber, at); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	bill.Status = domain.BillStatusConfirmed
	bill.ConfirmedBy = params.PharmacistID
	bill.ConfirmationNotes = params.Notes
	bill.ConfirmedAt = &at
	return &bill, nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, medicineID string, limit int) ([]domain.InventoryTransaction, error) {
	if limit < 1 {
		limit = 50
	}
	query := `
		SELECT id, medicine_id AS medicineid, transaction_type AS transactiontype,
		       quantity_change AS quantitychange, stock_before AS stockbefore, stock_after AS stockafter,
		       bill_id AS billid, performed_by AS performedby, created_at AS createdat
		FROM inventory_transactions
	`
	args := []any{}
	if medicineID != "" {
		query += ` WHERE medicine_id = ?`
		args = append(args, medicineID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	var out []domain.InventoryTransaction
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

type pharmacistRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	LicenseNumber string    `db:"license_number"`
	PINHash       string    `db:"pin_hash"`
	Active        bool      `db:"active"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r pharmacistRow) toDomain() domain.Pharmacist {
	return domain.Pharmacist{
		ID:            r.ID,
		Name:          r.Name,
		LicenseNumber: r.LicenseNumber,
		PINHash:       r.PINHash,
		Active:        r.Active,
		CreatedAt:     r.CreatedAt,
	}
}

func (s *Store) GetPharmacistByLicense(ctx context.Context, licenseNumber string) (*domain.Pharmacist, error) {
	var r pharmacistRow
	err := s.db.GetContext(ctx, &r, `
		SELECT id, name, license_number, pin_hash, active, created_at
		FROM pharmacists
		WHERE license_number = ? AND active = 1
	`, licenseNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := r.toDomain()
	return &p, nil
}

func (s *Store) ListActivePharmacists(ctx context.Context) ([]domain.Pharmacist, error) {
	var rows []pharmacistRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, license_number, pin_hash, active, created_at
		FROM pharmacists
		WHERE active = 1
		ORDER BY license_number
	`)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Pharmacist, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, pharmacist_id, action, resource_type, resource_id, detail, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, entry.ID, entry.PharmacistID, entry.Action, entry.ResourceType, entry.ResourceID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(time.Hour)
	}

	var out []domain.AuditLog
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, pharmacist_id AS pharmacistid, action, resource_type AS resourcetype,
		       resource_id AS resourceid, detail, created_at AS createdat
		FROM audit_logs
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at DESC
		LIMIT ?
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SeedIfEmpty loads the demo catalog and pharmacist account when the
// medicines table has no rows. pinHash must already be a bcrypt hash.
func (s *Store) SeedIfEmpty(ctx context.Context, pinHash string) error {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT count(*) FROM medicines`); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seeds := []domain.Medicine{
		{GenericName: "Paracetamol", BrandNames: []string{"Crocin", "Dolo"}, Strength: "500mg", Form: "Tablet", UnitPriceCents: 250, TaxRateBp: 500, CurrentStock: 150, MinStockLevel: 20, ReorderQuantity: 200, Manufacturer: "GSK", Active: true},
		{GenericName: "Aspirin", BrandNames: []string{"Disprin"}, Strength: "325mg", Form: "Tablet", UnitPriceCents: 75, TaxRateBp: 500, CurrentStock: 200, MinStockLevel: 30, ReorderQuantity: 300, Manufacturer: "Reckitt", Active: true},
		{GenericName: "Amoxicillin", BrandNames: []string{"Mox"}, Strength: "500mg", Form: "Capsule", UnitPriceCents: 1000, TaxRateBp: 1200, CurrentStock: 5, MinStockLevel: 10, ReorderQuantity: 100, Manufacturer: "Ranbaxy", Active: true},
		{GenericName: "Metformin", BrandNames: []string{"Glycomet"}, Strength: "500mg", Form: "Tablet", UnitPriceCents: 300, TaxRateBp: 500, CurrentStock: 100, MinStockLevel: 25, ReorderQuantity: 150, Manufacturer: "USV", Active: true},
		{GenericName: "Atorvastatin", BrandNames: []string{"Lipitor"}, Strength: "10mg", Form: "Tablet", UnitPriceCents: 1500, TaxRateBp: 1200, CurrentStock: 80, MinStockLevel: 15, ReorderQuantity: 100, Manufacturer: "Pfizer", Active: true},
	}
	for _, m := range seeds {
		brands, err := json.Marshal(m.BrandNames)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO medicines (id, generic_name, brand_names, strength, form, unit_price_cents, tax_rate_bp,
				current_stock, min_stock_level, reorder_quantity, manufacturer, active)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,1)
		`, uuid.NewString(), m.GenericName, string(brands), m.Strength, m.Form, m.UnitPriceCents, m.TaxRateBp,
			m.CurrentStock, m.MinStockLevel, m.ReorderQuantity, m.Manufacturer); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pharmacists (id, name, license_number, pin_hash, active, created_at)
		VALUES (?,'Admin Pharmacist','PHARM-001',?,1,?)
	`, uuid.NewString(), pinHash, time.Now().UTC())
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
