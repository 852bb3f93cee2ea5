package store

import (
	"context"
	"errors"
	"time"

	"medscan/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidState        = errors.New("invalid bill state")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrDuplicateBillNumber = errors.New("duplicate bill number")
)

// MedicineFilter narrows ListMedicines. Search matches generic and brand
// names case-insensitively; LowStockOnly keeps CurrentStock < MinStockLevel.
type MedicineFilter struct {
	Search       string
	LowStockOnly bool
}

// ConfirmParams carries everything ConfirmBill needs to run its single
// critical section: verify PENDING, recheck stock, decrement, ledger, audit.
type ConfirmParams struct {
	BillID       string
	PharmacistID string
	Notes        string
	At           time.Time
}

type Repository interface {
	ListMedicines(ctx context.Context, filter MedicineFilter) ([]domain.Medicine, error)
	ListAllMedicines(ctx context.Context) ([]domain.Medicine, error)
	GetMedicineByID(ctx context.Context, id string) (*domain.Medicine, error)
	SetStock(ctx context.Context, medicineID string, qty int, performedBy string) error

	CreatePrescription(ctx context.Context, p domain.Prescription) (*domain.Prescription, error)
	GetPrescriptionByID(ctx context.Context, id string) (*domain.Prescription, error)

	CreateBill(ctx context.Context, bill domain.Bill, items []domain.BillItem) (*domain.Bill, error)
	GetBillByID(ctx context.Context, id string) (*domain.Bill, error)
	ListBillItems(ctx context.Context, billID string) ([]domain.BillItem, error)
	ConfirmBill(ctx context.Context, params ConfirmParams) (*domain.Bill, error)

	ListInventoryTransactions(ctx context.Context, medicineID string, limit int) ([]domain.InventoryTransaction, error)

	GetPharmacistByLicense(ctx context.Context, licenseNumber string) (*domain.Pharmacist, error)
	ListActivePharmacists(ctx context.Context) ([]domain.Pharmacist, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}
