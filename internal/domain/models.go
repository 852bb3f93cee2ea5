package domain

import "time"

// Money values are int64 paise (hundredths of a rupee). Tax rates are int64
// basis points: 500 = 5.00%. Both survive arbitrary summation without drift.

type Medicine struct {
	ID              string     `json:"id"`
	GenericName     string     `json:"generic_name"`
	BrandNames      []string   `json:"brand_names"`
	Strength        string     `json:"strength"`
	Form            string     `json:"form"`
	UnitPriceCents  int64      `json:"unit_price_cents"`
	TaxRateBp       int64      `json:"tax_rate_bp"`
	CurrentStock    int        `json:"current_stock"`
	MinStockLevel   int        `json:"min_stock_level"`
	ReorderQuantity int        `json:"reorder_quantity"`
	ExpiryDate      *time.Time `json:"expiry_date,omitempty"`
	Manufacturer    string     `json:"manufacturer,omitempty"`
	Active          bool       `json:"active"`
}

// ExtractedMedicine is one candidate medicine line produced by the vision
// extractor. Every field is untrusted free text.
type ExtractedMedicine struct {
	GenericName         string `json:"generic_name"`
	BrandName           string `json:"brand_name,omitempty"`
	Strength            string `json:"strength,omitempty"`
	Form                string `json:"form,omitempty"`
	QuantityPrescribed  int    `json:"quantity_prescribed"`
	Frequency           string `json:"frequency,omitempty"`
	Duration            string `json:"duration,omitempty"`
	SpecialInstructions string `json:"special_instructions,omitempty"`
}

// PricedLine is the per-mention scan result returned for human review.
// Unmatched mentions keep zero prices and FoundInInventory=false.
type PricedLine struct {
	ExtractedMedicine
	MedicineID       string `json:"medicine_id,omitempty"`
	FoundInInventory bool   `json:"found_in_inventory"`
	StockAvailable   bool   `json:"stock_available"`
	CurrentStock     int    `json:"current_stock"`
	UnitPriceCents   int64  `json:"unit_price_cents"`
	LineTotalCents   int64  `json:"line_total_cents"`
	TaxAmountCents   int64  `json:"tax_amount_cents"`
	ItemTotalCents   int64  `json:"item_total_cents"`
}

type Prescription struct {
	ID                   string    `json:"id"`
	ImageChecksum        string    `json:"image_checksum"`
	ExtractionPayload    []byte    `json:"-"`
	ExtractionConfidence float64   `json:"extraction_confidence"`
	Readable             bool      `json:"readable"`
	Status               string    `json:"status"`
	CreatedAt            time.Time `json:"created_at"`
}

type Bill struct {
	ID                string     `json:"id"`
	BillNumber        string     `json:"bill_number"`
	PrescriptionID    string     `json:"prescription_id,omitempty"`
	PatientName       string     `json:"patient_name,omitempty"`
	PatientAge        int        `json:"patient_age,omitempty"`
	PatientPhone      string     `json:"patient_phone,omitempty"`
	SubtotalCents     int64      `json:"subtotal_cents"`
	TotalTaxCents     int64      `json:"total_tax_cents"`
	FinalAmountCents  int64      `json:"final_amount_cents"`
	Status            string     `json:"status"`
	ConfirmedBy       string     `json:"confirmed_by,omitempty"`
	ConfirmationNotes string     `json:"confirmation_notes,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type BillItem struct {
	ID              string `json:"id"`
	BillID          string `json:"bill_id"`
	MedicineID      string `json:"medicine_id"`
	Quantity        int    `json:"quantity"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	LineTotalCents  int64  `json:"line_total_cents"`
	TaxAmountCents  int64  `json:"tax_amount_cents"`
	ItemTotalCents  int64  `json:"item_total_cents"`
	DosageFrequency string `json:"dosage_frequency,omitempty"`
	DosageDuration  string `json:"dosage_duration,omitempty"`
}

// InventoryTransaction is an append-only ledger entry recording one stock
// movement with before/after snapshots.
type InventoryTransaction struct {
	ID              string    `json:"id"`
	MedicineID      string    `json:"medicine_id"`
	TransactionType string    `json:"transaction_type"`
	QuantityChange  int       `json:"quantity_change"`
	StockBefore     int       `json:"stock_before"`
	StockAfter      int       `json:"stock_after"`
	BillID          string    `json:"bill_id,omitempty"`
	PerformedBy     string    `json:"performed_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type AuditLog struct {
	ID           string    `json:"id"`
	PharmacistID string    `json:"pharmacist_id,omitempty"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Detail       string    `json:"detail"`
	CreatedAt    time.Time `json:"created_at"`
}

// Pharmacist is an internal persistence model for PIN credentials.
// PINHash is always a bcrypt hash, never a plain PIN.
type Pharmacist struct {
	ID            string
	Name          string
	LicenseNumber string
	PINHash       string
	Active        bool
	CreatedAt     time.Time
}

type PatientMetadata struct {
	PatientName      string  `json:"patient_name,omitempty"`
	PatientAge       int     `json:"patient_age,omitempty"`
	PrescriberName   string  `json:"prescriber_name,omitempty"`
	PrescriptionDate string  `json:"prescription_date,omitempty"`
	DoctorNotes      string  `json:"doctor_notes,omitempty"`
	Confidence       float64 `json:"overall_confidence,omitempty"`
}

type ClinicalAnalysis struct {
	InferredDiagnosis string `json:"inferred_diagnosis,omitempty"`
	PatientAdvice     string `json:"patient_advice,omitempty"`
	PharmacistNotes   string `json:"pharmacist_notes,omitempty"`
}

type ScanResponse struct {
	Status               string            `json:"status"`
	BillID               string            `json:"bill_id"`
	BillNumber           string            `json:"bill_number"`
	ExtractionConfidence float64           `json:"extraction_confidence"`
	Readable             bool              `json:"readable"`
	ExtractionError      string            `json:"extraction_error,omitempty"`
	Medicines            []PricedLine      `json:"medicines"`
	SubtotalCents        int64             `json:"subtotal_cents"`
	TotalTaxCents        int64             `json:"total_tax_cents"`
	FinalAmountCents     int64             `json:"final_amount_cents"`
	DoctorNotes          string            `json:"doctor_notes,omitempty"`
	ClinicalAnalysis     *ClinicalAnalysis `json:"clinical_analysis,omitempty"`
	Warnings             []PricedLine      `json:"warnings"`
}

type ConfirmRequest struct {
	PharmacistPIN string `json:"pharmacist_pin"`
	Notes         string `json:"notes,omitempty"`
}

type ConfirmResponse struct {
	Status     string `json:"status"`
	BillNumber string `json:"bill_number"`
}

type BillDetailResponse struct {
	Bill  Bill       `json:"bill"`
	Items []BillItem `json:"items"`
}

// InventoryItem is the listing view of a Medicine with the derived
// low-stock flag and a display-friendly tax rate.
type InventoryItem struct {
	ID             string   `json:"id"`
	GenericName    string   `json:"generic_name"`
	BrandNames     []string `json:"brand_names"`
	Strength       string   `json:"strength"`
	Form           string   `json:"form"`
	CurrentStock   int      `json:"current_stock"`
	MinStockLevel  int      `json:"min_stock_level"`
	UnitPriceCents int64    `json:"unit_price_cents"`
	TaxRatePercent float64  `json:"tax_rate_percent"`
	StockStatus    string   `json:"stock_status"`
}

type LoginRequest struct {
	LicenseNumber string `json:"license_number"`
	PIN           string `json:"pin"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	PharmacistID string
	Name         string
}

const (
	BillStatusPending   = "PENDING"
	BillStatusConfirmed = "CONFIRMED"
)

const (
	PrescriptionStatusExtracted = "EXTRACTED"
	PrescriptionStatusError     = "ERROR"
)

const (
	TxTypeDispensed  = "DISPENSED"
	TxTypeRestock    = "RESTOCK"
	TxTypeAdjustment = "ADJUSTMENT"
)

const (
	StockStatusLow = "LOW"
	StockStatusOK  = "OK"
)
