package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"medscan/internal/domain"
	"medscan/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS medicines (
			id UUID PRIMARY KEY,
			generic_name TEXT NOT NULL,
			brand_names JSONB NOT NULL DEFAULT '[]',
			strength TEXT NOT NULL DEFAULT '',
			form TEXT NOT NULL DEFAULT '',
			unit_price_cents BIGINT NOT NULL,
			tax_rate_bp BIGINT NOT NULL,
			current_stock INT NOT NULL DEFAULT 0,
			min_stock_level INT NOT NULL DEFAULT 0,
			reorder_quantity INT NOT NULL DEFAULT 0,
			expiry_date DATE,
			manufacturer TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CONSTRAINT medicines_stock_nonneg CHECK (current_stock >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS prescriptions (
			id UUID PRIMARY KEY,
			image_checksum TEXT NOT NULL,
			extraction_payload JSONB,
			extraction_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			readable BOOLEAN NOT NULL DEFAULT false,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS bills (
			id UUID PRIMARY KEY,
			bill_number TEXT NOT NULL UNIQUE,
			prescription_id UUID REFERENCES prescriptions(id),
			patient_name TEXT NOT NULL DEFAULT '',
			patient_age INT NOT NULL DEFAULT 0,
			patient_phone TEXT NOT NULL DEFAULT '',
			subtotal_cents BIGINT NOT NULL,
			total_tax_cents BIGINT NOT NULL,
			final_amount_cents BIGINT NOT NULL,
			status TEXT NOT NULL,
			confirmed_by UUID,
			confirmation_notes TEXT NOT NULL DEFAULT '',
			confirmed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS bill_items (
			id UUID PRIMARY KEY,
			bill_id UUID NOT NULL REFERENCES bills(id),
			medicine_id UUID NOT NULL REFERENCES medicines(id),
			quantity INT NOT NULL,
			unit_price_cents BIGINT NOT NULL,
			line_total_cents BIGINT NOT NULL,
			tax_amount_cents BIGINT NOT NULL,
			item_total_cents BIGINT NOT NULL,
			dosage_frequency TEXT NOT NULL DEFAULT '',
			dosage_duration TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS inventory_transactions (
			id UUID PRIMARY KEY,
			medicine_id UUID NOT NULL REFERENCES medicines(id),
			transaction_type TEXT NOT NULL,
			quantity_change INT NOT NULL,
			stock_before INT NOT NULL,
			stock_after INT NOT NULL,
			bill_id UUID,
			performed_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS pharmacists (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			license_number TEXT NOT NULL UNIQUE,
			pin_hash TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			pharmacist_id TEXT NOT NULL DEFAULT '',
			action TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bill_items_bill ON bill_items(bill_id)`,
		`CREATE INDEX IF NOT EXISTS idx_inventory_tx_medicine ON inventory_transactions(medicine_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) ListMedicines(ctx context.Context, filter store.MedicineFilter) ([]domain.Medicine, error) {
	query := `
		SELECT id, generic_name, brand_names, strength, form, unit_price_cents, tax_rate_bp,
		       current_stock, min_stock_level, reorder_quantity, expiry_date, manufacturer, active
		FROM medicines
		WHERE active = true
	`
	args := []any{}
	if filter.LowStockOnly {
		query += ` AND current_stock < min_stock_level`
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		query += fmt.Sprintf(` AND (lower(generic_name) LIKE $%d OR lower(brand_names::text) LIKE $%d)`, len(args), len(args))
	}
	query += ` ORDER BY generic_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMedicines(rows)
}

func (s *Store) ListAllMedicines(ctx context.Context) ([]domain.Medicine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generic_name, brand_names, strength, form, unit_price_cents, tax_rate_bp,
		       current_stock, min_stock_level, reorder_quantity, expiry_date, manufacturer, active
		FROM medicines
		ORDER BY generic_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMedicines(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMedicine(r rowScanner) (domain.Medicine, error) {
	var m domain.Medicine
	var brands []byte
	var expiry sql.NullTime
	if err := r.Scan(&m.ID, &m.GenericName, &brands, &m.Strength, &m.Form, &m.UnitPriceCents,
		&m.TaxRateBp, &m.CurrentStock, &m.MinStockLevel, &m.ReorderQuantity, &expiry,
		&m.Manufacturer, &m.Active); err != nil {
		return domain.Medicine{}, err
	}
	if len(brands) > 0 {
		if err := json.Unmarshal(brands, &m.BrandNames); err != nil {
			return domain.Medicine{}, fmt.Errorf("decode brand_names: %w", err)
		}
	}
	if expiry.Valid {
		e := expiry.Time.UTC()
		m.ExpiryDate = &e
	}
	return m, nil
}

func scanMedicines(rows *sql.Rows) ([]domain.Medicine, error) {
	medicines := make([]domain.Medicine, 0, 64)
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (s *Store) GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, generic_name, brand_names, strength, form, unit_price_cents, tax_rate_bp,
		       current_stock, min_stock_level, reorder_quantity, expiry_date, manufacturer, active
		FROM medicines
		WHERE id = $1
	`, id)
	m, err := scanMedicine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SetStock(ctx context.Context, medicineID string, qty int, performedBy string) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT current_stock FROM medicines WHERE id = $1 FOR UPDATE
	`, medicineID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE medicines SET current_stock = $1, updated_at = now() WHERE id = $2
	`, qty, medicineID); err != nil {
		return err
	}

	txType := domain.TxTypeRestock
	if qty < current {
		txType = domain.TxTypeAdjustment
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (id, medicine_id, transaction_type, quantity_change, stock_before, stock_after, performed_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, uuid.NewString(), medicineID, txType, qty-current, current, qty, performedBy); err != nil {
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

	payload := p.ExtractionPayload
	if len(payload) == 0 {
		payload = []byte("null")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prescriptions (id, image_checksum, extraction_payload, extraction_confidence, readable, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.ImageChecksum, payload, p.ExtractionConfidence, p.Readable, p.Status, p.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := p
	return &created, nil
}

func (s *Store) GetPrescriptionByID(ctx context.Context, id string) (*domain.Prescription, error) {
	var p domain.Prescription
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, image_checksum, extraction_payload, extraction_confidence, readable, status, created_at
		FROM prescriptions
		WHERE id = $1
	`, id).Scan(&p.ID, &p.ImageChecksum, &payload, &p.ExtractionConfidence, &p.Readable, &p.Status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ExtractionPayload = payload
	return &p, nil
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
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
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
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
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
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

func (s *Store) GetBillByID(ctx context.Context, id string) (*domain.Bill, error) {
	b, err := scanBill(s.db.QueryRowContext(ctx, billSelect+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

const billSelect = `
	SELECT id, bill_number, COALESCE(prescription_id::text, ''), patient_name, patient_age, patient_phone,
	       subtotal_cents, total_tax_cents, final_amount_cents, status,
	       COALESCE(confirmed_by::text, ''), confirmation_notes, confirmed_at, created_at
	FROM bills`

func scanBill(r rowScanner) (*domain.Bill, error) {
	var b domain.Bill
	var confirmedAt sql.NullTime
	if err := r.Scan(&b.ID, &b.BillNumber, &b.PrescriptionID, &b.PatientName, &b.PatientAge, &b.PatientPhone,
		&b.SubtotalCents, &b.TotalTaxCents, &b.FinalAmountCents, &b.Status,
		&b.ConfirmedBy, &b.ConfirmationNotes, &confirmedAt, &b.CreatedAt); err != nil {
		return nil, err
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time.UTC()
		b.ConfirmedAt = &t
	}
	return &b, nil
}

func (s *Store) ListBillItems(ctx context.Context, billID string) ([]domain.BillItem, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM bills WHERE id = $1)`, billID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bill_id, medicine_id, quantity, unit_price_cents, line_total_cents,
		       tax_amount_cents, item_total_cents, dosage_frequency, dosage_duration
		FROM bill_items
		WHERE bill_id = $1
		ORDER BY id
	`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.BillItem, 0, 8)
	for rows.Next() {
		var item domain.BillItem
		if err := rows.Scan(&item.ID, &item.BillID, &item.MedicineID, &item.Quantity, &item.UnitPriceCents,
			&item.LineTotalCents, &item.TaxAmountCents, &item.ItemTotalCents,
			&item.DosageFrequency, &item.DosageDuration); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ConfirmBill runs the whole commit inside one SERIALIZABLE transaction.
// Bill row and every touched medicine row are locked FOR UPDATE; medicines
// are locked in id order to keep concurrent confirmations deadlock-free.
func (s *Store) ConfirmBill(ctx context.Context, params store.ConfirmParams) (*domain.Bill, error) {
	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	bill, err := scanBill(tx.QueryRowContext(ctx, billSelect+` WHERE id = $1 FOR UPDATE`, params.BillID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if bill.Status != domain.BillStatusPending {
		return nil, store.ErrInvalidState
	}

	var pharmacistActive bool
	err = tx.QueryRowContext(ctx, `SELECT active FROM pharmacists WHERE id = $1`, params.PharmacistID).Scan(&pharmacistActive)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !pharmacistActive) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT medicine_id, quantity
		FROM bill_items
		WHERE bill_id = $1
		ORDER BY medicine_id
	`, params.BillID)
	if err != nil {
		return nil, err
	}
	type line struct {
		medicineID string
		qty        int
	}
	lines := make([]line, 0, 8)
	for itemRows.Next() {
		var l line
		if err := itemRows.Scan(&l.medicineID, &l.qty); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		lines = append(lines, l)
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	for _, l := range lines {
		var current int
		err := tx.QueryRowContext(ctx, `
			SELECT current_stock FROM medicines WHERE id = $1 FOR UPDATE
		`, l.medicineID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if current < l.qty {
			return nil, store.ErrInsufficientStock
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE medicines SET current_stock = current_stock - $1, updated_at = now() WHERE id = $2
		`, l.qty, l.medicineID); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_transactions (id, medicine_id, transaction_type, quantity_change, stock_before, stock_after, bill_id, performed_by, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, uuid.NewString(), l.medicineID, domain.TxTypeDispensed, -l.qty, current, current-l.qty,
			params.BillID, params.PharmacistID, at); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE bills
		SET status = $1, confirmed_by = $2, confirmation_notes = $3, confirmed_at = $4
		WHERE id = $5
	`, domain.BillStatusConfirmed, params.PharmacistID, params.Notes, at, params.BillID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, pharmacist_id, action, resource_type, resource_id, detail, created_at)
		VALUES ($1,$2,'bill.confirm','bill',$3,$4,$5)
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
	return bill, nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, medicineID string, limit int) ([]domain.InventoryTransaction, error) {
	if limit < 1 {
		limit = 50
	}
	query := `
		SELECT id, medicine_id, transaction_type, quantity_change, stock_before, stock_after,
		       COALESCE(bill_id::text, ''), performed_by, created_at
		FROM inventory_transactions
	`
	args := []any{}
	if medicineID != "" {
		args = append(args, medicineID)
		query += ` WHERE medicine_id = $1`
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.InventoryTransaction, 0, limit)
	for rows.Next() {
		var e domain.InventoryTransaction
		if err := rows.Scan(&e.ID, &e.MedicineID, &e.TransactionType, &e.QuantityChange,
			&e.StockBefore, &e.StockAfter, &e.BillID, &e.PerformedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) GetPharmacistByLicense(ctx context.Context, licenseNumber string) (*domain.Pharmacist, error) {
	var p domain.Pharmacist
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, license_number, pin_hash, active, created_at
		FROM pharmacists
		WHERE license_number = $1 AND active = true
	`, licenseNumber).Scan(&p.ID, &p.Name, &p.LicenseNumber, &p.PINHash, &p.Active, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListActivePharmacists(ctx context.Context) ([]domain.Pharmacist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, license_number, pin_hash, active, created_at
		FROM pharmacists
		WHERE active = true
		ORDER BY license_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Pharmacist, 0, 8)
	for rows.Next() {
		var p domain.Pharmacist
		if err := rows.Scan(&p.ID, &p.Name, &p.LicenseNumber, &p.PINHash, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
		VALUES ($1,$2,$3,$4,$5,$6,$7)
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

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pharmacist_id, action, resource_type, resource_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.PharmacistID, &e.Action, &e.ResourceType, &e.ResourceID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SeedIfEmpty loads the demo catalog and pharmacist account when the
// medicines table has no rows. pinHash must already be a bcrypt hash.
func (s *Store) SeedIfEmpty(ctx context.Context, pinHash string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM medicines`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	type seedMed struct {
		generic  string
		brands   []string
		strength string
		form     string
		price    int64
		taxBp    int64
		stock    int
		minLevel int
		reorder  int
		maker    string
	}
	seeds := []seedMed{
		{"Paracetamol", []string{"Crocin", "Dolo"}, "500mg", "Tablet", 250, 500, 150, 20, 200, "GSK"},
		{"Aspirin", []string{"Disprin"}, "325mg", "Tablet", 75, 500, 200, 30, 300, "Reckitt"},
		{"Amoxicillin", []string{"Mox"}, "500mg", "Capsule", 1000, 1200, 5, 10, 100, "Ranbaxy"},
		{"Metformin", []string{"Glycomet"}, "500mg", "Tablet", 300, 500, 100, 25, 150, "USV"},
		{"Atorvastatin", []string{"Lipitor"}, "10mg", "Tablet", 1500, 1200, 80, 15, 100, "Pfizer"},
	}
	for _, m := range seeds {
		brands, err := json.Marshal(m.brands)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO medicines (id, generic_name, brand_names, strength, form, unit_price_cents, tax_rate_bp,
				current_stock, min_stock_level, reorder_quantity, manufacturer, active)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,true)
		`, uuid.NewString(), m.generic, brands, m.strength, m.form, m.price, m.taxBp,
			m.stock, m.minLevel, m.reorder, m.maker); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pharmacists (id, name, license_number, pin_hash, active)
		VALUES ($1,'Admin Pharmacist','PHARM-001',$2,true)
		ON CONFLICT (license_number) DO NOTHING
	`, uuid.NewString(), pinHash)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
