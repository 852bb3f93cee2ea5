package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"medscan/internal/billno"
	"medscan/internal/cache"
	"medscan/internal/domain"
	"medscan/internal/export"
	"medscan/internal/extract"
	"medscan/internal/match"
	"medscan/internal/metrics"
	"medscan/internal/pricing"
	"medscan/internal/store"
)

// ErrUnauthorized means the supplied PIN matched no active pharmacist.
var ErrUnauthorized = errors.New("unauthorized")

const billNumberAttempts = 3

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo           store.Repository
	extractor      extract.Extractor
	cache          cache.ExtractionCache
	cacheTTL       time.Duration
	extractTimeout time.Duration
}

func New(repo store.Repository, extractor extract.Extractor, extractionCache cache.ExtractionCache, cacheTTL time.Duration, extractTimeout time.Duration) *Service {
	if extractionCache == nil {
		extractionCache = cache.NoopExtractionCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if extractTimeout <= 0 {
		extractTimeout = 90 * time.Second
	}

	return &Service{
		repo:           repo,
		extractor:      extractor,
		cache:          extractionCache,
		cacheTTL:       cacheTTL,
		extractTimeout: extractTimeout,
	}
}

// Scan runs the whole pipeline on one prescription image: extract (or reuse
// a cached extraction), persist the prescription record, match every mention
// against the catalog, price the matched lines and create a PENDING bill.
// Extraction failures degrade to an empty readable=false result; the bill is
// still created so the workflow stays reviewable.
func (s *Service) Scan(ctx context.Context, image []byte, patientPhone string) (domain.ScanResponse, error) {
	if len(image) == 0 {
		return domain.ScanResponse{}, fmt.Errorf("%w: empty image", store.ErrInvalidInput)
	}

	checksum := sha256.Sum256(image)
	key := "extract:" + hex.EncodeToString(checksum[:])

	result, extractErr := s.extractWithCache(ctx, key, image)
	if extractErr != nil {
		result = extract.Degraded(extractErr)
	}

	rawPayload, err := json.Marshal(result)
	if err != nil {
		return domain.ScanResponse{}, fmt.Errorf("encode extraction: %w", err)
	}

	status := domain.PrescriptionStatusExtracted
	if extractErr != nil {
		status = domain.PrescriptionStatusError
	}
	prescription, err := s.repo.CreatePrescription(ctx, domain.Prescription{
		ImageChecksum:        hex.EncodeToString(checksum[:]),
		ExtractionPayload:    rawPayload,
		ExtractionConfidence: result.Metadata.Confidence,
		Readable:             result.Quality.Readable,
		Status:               status,
	})
	if err != nil {
		return domain.ScanResponse{}, fmt.Errorf("persist prescription: %w", err)
	}

	catalog, err := s.repo.ListAllMedicines(ctx)
	if err != nil {
		return domain.ScanResponse{}, fmt.Errorf("load catalog: %w", err)
	}

	lines := make([]domain.PricedLine, 0, len(result.Medicines))
	warnings := make([]domain.PricedLine, 0)
	items := make([]domain.BillItem, 0, len(result.Medicines))
	var subtotal, totalTax int64
	for _, mention := range result.Medicines {
		// Absent or invalid quantities default to 1, for unmatched lines too.
		if mention.QuantityPrescribed < 1 {
			mention.QuantityPrescribed = 1
		}

		med := match.Resolve(mention, catalog)
		if med == nil {
			metrics.UnmatchedMedicines.Inc()
			line := domain.PricedLine{ExtractedMedicine: mention}
			lines = append(lines, line)
			warnings = append(warnings, line)
			continue
		}

		line := pricing.PriceLine(*med, mention.QuantityPrescribed)
		line.ExtractedMedicine = mention
		lines = append(lines, line)
		if !line.StockAvailable {
			warnings = append(warnings, line)
		}

		subtotal += line.LineTotalCents
		totalTax += line.TaxAmountCents
		items = append(items, domain.BillItem{
			MedicineID:      med.ID,
			Quantity:        line.QuantityPrescribed,
			UnitPriceCents:  line.UnitPriceCents,
			LineTotalCents:  line.LineTotalCents,
			TaxAmountCents:  line.TaxAmountCents,
			ItemTotalCents:  line.ItemTotalCents,
			DosageFrequency: mention.Frequency,
			DosageDuration:  mention.Duration,
		})
	}

	bill := domain.Bill{
		PrescriptionID:   prescription.ID,
		PatientName:      result.Metadata.PatientName,
		PatientAge:       result.Metadata.PatientAge,
		PatientPhone:     strings.TrimSpace(patientPhone),
		SubtotalCents:    subtotal,
		TotalTaxCents:    totalTax,
		FinalAmountCents: subtotal + totalTax,
		Status:           domain.BillStatusPending,
	}

	created, err := s.createBillWithFreshNumber(ctx, bill, items)
	if err != nil {
		metrics.ScansTotal.WithLabelValues("rejected").Inc()
		return domain.ScanResponse{}, err
	}

	outcome := "extracted"
	if extractErr != nil {
		outcome = "degraded"
	}
	metrics.ScansTotal.WithLabelValues(outcome).Inc()

	s.logAudit(ctx, "prescription.scan", "bill", created.ID,
		fmt.Sprintf("bill_number=%s,medicines=%d,warnings=%d", created.BillNumber, len(lines), len(warnings)))

	resp := domain.ScanResponse{
		Status:               "pending_confirmation",
		BillID:               created.ID,
		BillNumber:           created.BillNumber,
		ExtractionConfidence: result.Metadata.Confidence,
		Readable:             result.Quality.Readable,
		ExtractionError:      result.Quality.Error,
		Medicines:            lines,
		SubtotalCents:        subtotal,
		TotalTaxCents:        totalTax,
		FinalAmountCents:     subtotal + totalTax,
		DoctorNotes:          result.Metadata.DoctorNotes,
		ClinicalAnalysis:     result.Clinical,
		Warnings:             warnings,
	}
	return resp, nil
}

func (s *Service) extractWithCache(ctx context.Context, key string, image []byte) (extract.Result, error) {
	if cached, hit, err := s.cache.Get(ctx, key); err == nil && hit {
		metrics.ExtractionCacheHits.Inc()
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: extraction cache get failed: %v", err)
	}

	if s.extractor == nil {
		return extract.Result{}, errors.New("extraction not configured")
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.extractTimeout)
	defer cancel()

	start := time.Now()
	result, _, err := s.extractor.Extract(extractCtx, image)
	metrics.ExtractionSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return extract.Result{}, err
	}

	if err := s.cache.Set(ctx, key, &result, s.cacheTTL); err != nil {
		log.Printf("[service] WARN: extraction cache set failed: %v", err)
	}
	return result, nil
}

func (s *Service) createBillWithFreshNumber(ctx context.Context, bill domain.Bill, items []domain.BillItem) (*domain.Bill, error) {
	var lastErr error
	for attempt := 0; attempt < billNumberAttempts; attempt++ {
		bill.BillNumber = billno.New(time.Now().UTC())
		created, err := s.repo.CreateBill(ctx, bill, items)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicateBillNumber) {
			return nil, fmt.Errorf("create bill: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create bill: %w", lastErr)
}

// Confirm authenticates the PIN against every active pharmacist and, on a
// match, hands the commit to the store's single atomic ConfirmBill. A wrong
// PIN never reveals whether the bill exists.
func (s *Service) Confirm(ctx context.Context, billID string, req domain.ConfirmRequest) (domain.ConfirmResponse, error) {
	pharmacist, err := s.authenticateByPIN(ctx, req.PharmacistPIN)
	if err != nil {
		metrics.ConfirmationsTotal.WithLabelValues("unauthorized").Inc()
		return domain.ConfirmResponse{}, err
	}

	confirmed, err := s.repo.ConfirmBill(ctx, store.ConfirmParams{
		BillID:       billID,
		PharmacistID: pharmacist.ID,
		Notes:        strings.TrimSpace(req.Notes),
		At:           time.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInvalidState):
			metrics.ConfirmationsTotal.WithLabelValues("invalid_state").Inc()
		case errors.Is(err, store.ErrInsufficientStock):
			metrics.ConfirmationsTotal.WithLabelValues("insufficient_stock").Inc()
		default:
			metrics.ConfirmationsTotal.WithLabelValues("error").Inc()
		}
		return domain.ConfirmResponse{}, err
	}

	metrics.ConfirmationsTotal.WithLabelValues("confirmed").Inc()
	return domain.ConfirmResponse{
		Status:     "confirmed",
		BillNumber: confirmed.BillNumber,
	}, nil
}

// authenticateByPIN compares the PIN against each active pharmacist's bcrypt
// hash. Hashes cannot be queried by equality, so this walks the (small) list.
func (s *Service) authenticateByPIN(ctx context.Context, pin string) (*domain.Pharmacist, error) {
	pin = strings.TrimSpace(pin)
	if pin == "" {
		return nil, ErrUnauthorized
	}

	pharmacists, err := s.repo.ListActivePharmacists(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pharmacists: %w", err)
	}
	for i := range pharmacists {
		if bcrypt.CompareHashAndPassword([]byte(pharmacists[i].PINHash), []byte(pin)) == nil {
			return &pharmacists[i], nil
		}
	}
	return nil, ErrUnauthorized
}

// Login verifies license number plus PIN for token issuance.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.Pharmacist, error) {
	license := strings.TrimSpace(req.LicenseNumber)
	pin := strings.TrimSpace(req.PIN)
	if license == "" || pin == "" {
		return nil, ErrUnauthorized
	}

	pharmacist, err := s.repo.GetPharmacistByLicense(ctx, license)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(pharmacist.PINHash), []byte(pin)) != nil {
		return nil, ErrUnauthorized
	}
	return pharmacist, nil
}

func (s *Service) BillDetail(ctx context.Context, billID string) (domain.BillDetailResponse, error) {
	bill, err := s.repo.GetBillByID(ctx, billID)
	if err != nil {
		return domain.BillDetailResponse{}, err
	}
	items, err := s.repo.ListBillItems(ctx, billID)
	if err != nil {
		return domain.BillDetailResponse{}, err
	}
	return domain.BillDetailResponse{Bill: *bill, Items: items}, nil
}

func (s *Service) ListInventory(ctx context.Context, search string, lowStockOnly bool) ([]domain.InventoryItem, error) {
	medicines, err := s.repo.ListMedicines(ctx, store.MedicineFilter{Search: search, LowStockOnly: lowStockOnly})
	if err != nil {
		return nil, err
	}

	items := make([]domain.InventoryItem, 0, len(medicines))
	for _, m := range medicines {
		status := domain.StockStatusOK
		if m.CurrentStock < m.MinStockLevel {
			status = domain.StockStatusLow
		}
		items = append(items, domain.InventoryItem{
			ID:             m.ID,
			GenericName:    m.GenericName,
			BrandNames:     m.BrandNames,
			Strength:       m.Strength,
			Form:           m.Form,
			CurrentStock:   m.CurrentStock,
			MinStockLevel:  m.MinStockLevel,
			UnitPriceCents: m.UnitPriceCents,
			TaxRatePercent: pricing.PercentFromBp(m.TaxRateBp),
			StockStatus:    status,
		})
	}
	return items, nil
}

func (s *Service) SetStock(ctx context.Context, medicineID string, qty int) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrUnauthorized
	}
	if err := s.repo.SetStock(ctx, medicineID, qty, actor.PharmacistID); err != nil {
		return err
	}
	s.logAudit(ctx, "inventory.set_stock", "medicine", medicineID, fmt.Sprintf("qty=%d", qty))
	return nil
}

func (s *Service) InventoryTransactions(ctx context.Context, medicineID string, limit int) ([]domain.InventoryTransaction, error) {
	if medicineID != "" {
		if _, err := s.repo.GetMedicineByID(ctx, medicineID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListInventoryTransactions(ctx, medicineID, limit)
}

func (s *Service) AuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) ExportInventoryXLSX(ctx context.Context) ([]byte, error) {
	return export.InventoryXLSX(ctx, s.repo)
}

func (s *Service) logAudit(ctx context.Context, action string, resourceType string, resourceID string, detail string) {
	actor, _ := ActorFromContext(ctx)

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		PharmacistID: actor.PharmacistID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       detail,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s resource=%s: %v", action, resourceID, err)
	}
}
