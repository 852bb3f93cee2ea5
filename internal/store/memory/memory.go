// Package memory is the in-process Repository used for dev mode and tests.
// State lives behind one RWMutex; ConfirmBill runs its whole critical
// section under the write lock, which is what makes confirmation atomic
// and at-most-once here.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"medscan/internal/domain"
	"medscan/internal/store"
)

type Store struct {
	mu               sync.RWMutex
	medicines        map[string]domain.Medicine
	medicineOrder    []string
	prescriptions    map[string]domain.Prescription
	billsByID        map[string]domain.Bill
	billIDsByNumber  map[string]string
	billItems        map[string][]domain.BillItem
	inventoryLedger  []domain.InventoryTransaction
	pharmacists      map[string]domain.Pharmacist
	auditLogs        []domain.AuditLog
}

// seedPharmacists builds the initial pharmacist accounts for dev/demo mode.
// The PIN is read from SEED_PHARMACIST_PIN. If unset, a hardcoded dev
// default is used with a warning printed to stdout. These credentials are
// never used in production (the server uses PostgreSQL when DATABASE_URL
// is set).
func seedPharmacists() map[string]domain.Pharmacist {
	pin := envOr("SEED_PHARMACIST_PIN", "1234")
	if os.Getenv("SEED_PHARMACIST_PIN") == "" {
		log.Println("[memory-store] WARNING: using default dev PIN. Set SEED_PHARMACIST_PIN to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed PIN: %v", err)
	}

	id := uuid.NewString()
	return map[string]domain.Pharmacist{
		id: {
			ID:            id,
			Name:          "Admin Pharmacist",
			LicenseNumber: "PHARM-001",
			PINHash:       string(hash),
			Active:        true,
			CreatedAt:     time.Now().UTC(),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	medicines := []domain.Medicine{
		{GenericName: "Paracetamol", BrandNames: []string{"Crocin", "Dolo"}, Strength: "500mg", Form: "Tablet", UnitPriceCents: 250, TaxRateBp: 500, CurrentStock: 150, MinStockLevel: 20, ReorderQuantity: 200, Manufacturer: "GSK", Active: true},
		{GenericName: "Aspirin", BrandNames: []string{"Disprin"}, Strength: "325mg", Form: "Tablet", UnitPriceCents: 75, TaxRateBp: 500, CurrentStock: 200, MinStockLevel: 30, ReorderQuantity: 300, Manufacturer: "Reckitt", Active: true},
		{GenericName: "Amoxicillin", BrandNames: []string{"Mox"}, Strength: "500mg", Form: "Capsule", UnitPriceCents: 1000, TaxRateBp: 1200, CurrentStock: 5, MinStockLevel: 10, ReorderQuantity: 100, Manufacturer: "Ranbaxy", Active: true},
		{GenericName: "Metformin", BrandNames: []string{"Glycomet"}, Strength: "500mg", Form: "Tablet", UnitPriceCents: 300, TaxRateBp: 500, CurrentStock: 100, MinStockLevel: 25, ReorderQuantity: 150, Manufacturer: "USV", Active: true},
		{GenericName: "Atorvastatin", BrandNames: []string{"Lipitor"}, Strength: "10mg", Form: "Tablet", UnitPriceCents: 1500, TaxRateBp: 1200, CurrentStock: 80, MinStockLevel: 15, ReorderQuantity: 100, Manufacturer: "Pfizer", Active: true},
	}

	s := New()
	for _, m := range medicines {
		m.ID = uuid.NewString()
		s.medicines[m.ID] = m
		s.medicineOrder = append(s.medicineOrder, m.ID)
	}
	s.pharmacists = seedPharmacists()
	return s
}

// New returns an empty store. Tests that need a specific catalog use this
// plus PutMedicine/PutPharmacist.
func New() *Store {
	return &Store{
		medicines:       map[string]domain.Medicine{},
		prescriptions:   map[string]domain.Prescription{},
		billsByID:       map[string]domain.Bill{},
		billIDsByNumber: map[string]string{},
		billItems:       map[string][]domain.BillItem{},
		pharmacists:     map[string]domain.Pharmacist{},
	}
}

// PutMedicine inserts or replaces a catalog entry, assigning an ID when
// missing. Intended for tests and seeding.
func (s *Store) PutMedicine(m domain.Medicine) domain.Medicine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, exists := s.medicines[m.ID]; !exists {
		s.medicineOrder = append(s.medicineOrder, m.ID)
	}
	s.medicines[m.ID] = m
	return m
}

// PutPharmacist inserts or replaces a pharmacist account. Intended for tests.
func (s *Store) PutPharmacist(p domain.Pharmacist) domain.Pharmacist {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.pharmacists[p.ID] = p
	return p
}

func (s *Store) ListMedicines(_ context.Context, filter store.MedicineFilter) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]domain.Medicine, 0, len(s.medicineOrder))
	for _, id := range s.medicineOrder {
		m := s.medicines[id]
		if !m.Active {
			continue
		}
		if filter.LowStockOnly && m.CurrentStock >= m.MinStockLevel {
			continue
		}
		if search != "" && !medicineMatchesSearch(m, search) {
			continue
		}
		out = append(out, cloneMedicine(m))
	}
	return out, nil
}

func medicineMatchesSearch(m domain.Medicine, loweredSearch string) bool {
	if strings.Contains(strings.ToLower(m.GenericName), loweredSearch) {
		return true
	}
	for _, b := range m.BrandNames {
		if strings.Contains(strings.ToLower(b), loweredSearch) {
			return true
		}
	}
	return false
}

func (s *Store) ListAllMedicines(_ context.Context) ([]domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Medicine, 0, len(s.medicineOrder))
	for _, id := range s.medicineOrder {
		out = append(out, cloneMedicine(s.medicines[id]))
	}
	return out, nil
}

func (s *Store) GetMedicineByID(_ context.Context, id string) (*domain.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.medicines[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := cloneMedicine(m)
	return &c, nil
}

func (s *Store) SetStock(_ context.Context, medicineID string, qty int, performedBy string) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.medicines[medicineID]
	if !ok {
		return store.ErrNotFound
	}

	txType := domain.TxTypeRestock
	if qty < m.CurrentStock {
		txType = domain.TxTypeAdjustment
	}
	s.inventoryLedger = append(s.inventoryLedger, domain.InventoryTransaction{
		ID:              uuid.NewString(),
		MedicineID:      medicineID,
		TransactionType: txType,
		QuantityChange:  qty - m.CurrentStock,
		StockBefore:     m.CurrentStock,
		StockAfter:      qty,
		PerformedBy:     performedBy,
		CreatedAt:       time.Now().UTC(),
	})
	m.CurrentStock = qty
	s.medicines[medicineID] = m
	return nil
}

func (s *Store) CreatePrescription(_ context.Context, p domain.Prescription) (*domain.Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.prescriptions[p.ID] = p
	c := p
	return &c, nil
}

func (s *Store) GetPrescriptionByID(_ context.Context, id string) (*domain.Prescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prescriptions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := p
	return &c, nil
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill, items []domain.BillItem) (*domain.Bill, error) {
	if bill.BillNumber == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.billIDsByNumber[bill.BillNumber]; taken {
		return nil, store.ErrDuplicateBillNumber
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

	stored := make([]domain.BillItem, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, ok := s.medicines[item.MedicineID]; !ok {
			return nil, store.ErrNotFound
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.BillID = bill.ID
		stored = append(stored, item)
	}

	s.billsByID[bill.ID] = bill
	s.billIDsByNumber[bill.BillNumber] = bill.ID
	s.billItems[bill.ID] = stored

	c := bill
	return &c, nil
}

func (s *Store) GetBillByID(_ context.Context, id string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.billsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := b
	return &c, nil
}

func (s *Store) ListBillItems(_ context.Context, billID string) ([]domain.BillItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.billsByID[billID]; !ok {
		return nil, store.ErrNotFound
	}
	items := s.billItems[billID]
	out := make([]domain.BillItem, len(items))
	copy(out, items)
	return out, nil
}

// ConfirmBill is the commit point. Inside one critical section it verifies
// the bill is still PENDING, rechecks every line against current stock,
// decrements, writes ledger entries and flips the status. Any failure
// leaves nothing changed.
func (s *Store) ConfirmBill(_ context.Context, params store.ConfirmParams) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.billsByID[params.BillID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if bill.Status != domain.BillStatusPending {
		return nil, store.ErrInvalidState
	}
	pharmacist, ok := s.pharmacists[params.PharmacistID]
	if !ok || !pharmacist.Active {
		return nil, store.ErrNotFound
	}

	items := s.billItems[params.BillID]
	for _, item := range items {
		m, ok := s.medicines[item.MedicineID]
		if !ok {
			return nil, store.ErrNotFound
		}
		if m.CurrentStock < item.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	at := params.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	for _, item := range items {
		m := s.medicines[item.MedicineID]
		s.inventoryLedger = append(s.inventoryLedger, domain.InventoryTransaction{
			ID:              uuid.NewString(),
			MedicineID:      item.MedicineID,
			TransactionType: domain.TxTypeDispensed,
			QuantityChange:  -item.Quantity,
			StockBefore:     m.CurrentStock,
			StockAfter:      m.CurrentStock - item.Quantity,
			BillID:          bill.ID,
			PerformedBy:     params.PharmacistID,
			CreatedAt:       at,
		})
		m.CurrentStock -= item.Quantity
		s.medicines[item.MedicineID] = m
	}

	bill.Status = domain.BillStatusConfirmed
	bill.ConfirmedBy = params.PharmacistID
	bill.ConfirmationNotes = params.Notes
	bill.ConfirmedAt = &at
	s.billsByID[params.BillID] = bill

	s.appendAuditLocked(domain.AuditLog{
		PharmacistID: params.PharmacistID,
		Action:       "bill.confirm",
		ResourceType: "bill",
		ResourceID:   bill.ID,
		Detail:       bill.BillNumber,
		CreatedAt:    at,
	})

	c := bill
	return &c, nil
}

func (s *Store) ListInventoryTransactions(_ context.Context, medicineID string, limit int) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.InventoryTransaction, 0, limit)
	for i := len(s.inventoryLedger) - 1; i >= 0; i-- {
		entry := s.inventoryLedger[i]
		if medicineID != "" && entry.MedicineID != medicineID {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetPharmacistByLicense(_ context.Context, licenseNumber string) (*domain.Pharmacist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pharmacists {
		if p.LicenseNumber == licenseNumber && p.Active {
			c := p
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListActivePharmacists(_ context.Context) ([]domain.Pharmacist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Pharmacist, 0, len(s.pharmacists))
	for _, p := range s.pharmacists {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LicenseNumber < out[j].LicenseNumber })
	return out, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendAuditLocked(entry)
	return nil
}

func (s *Store) appendAuditLocked(entry domain.AuditLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && entry.CreatedAt.After(to) {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func cloneMedicine(m domain.Medicine) domain.Medicine {
	c := m
	c.BrandNames = append([]string(nil), m.BrandNames...)
	return c
}
