package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"medscan/internal/domain"
	"medscan/internal/extract"
	"medscan/internal/store"
	"medscan/internal/store/memory"
)

type stubExtractor struct {
	result extract.Result
	err    error
	calls  int
}

func (e *stubExtractor) Extract(_ context.Context, _ []byte) (extract.Result, []byte, error) {
	e.calls++
	if e.err != nil {
		return extract.Result{}, nil, e.err
	}
	return e.result, []byte(`{}`), nil
}

func hashPIN(t *testing.T, pin string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	return string(h)
}

func newTestService(t *testing.T, ex extract.Extractor) (*Service, *memory.Store, domain.Medicine, domain.Pharmacist) {
	t.Helper()
	repo := memory.New()
	med := repo.PutMedicine(domain.Medicine{
		GenericName:    "Paracetamol",
		BrandNames:     []string{"Crocin", "Dolo"},
		Strength:       "500mg",
		Form:           "Tablet",
		UnitPriceCents: 250,
		TaxRateBp:      500,
		CurrentStock:   150,
		MinStockLevel:  20,
		Active:         true,
	})
	ph := repo.PutPharmacist(domain.Pharmacist{
		Name:          "Admin Pharmacist",
		LicenseNumber: "PHARM-001",
		PINHash:       hashPIN(t, "1234"),
		Active:        true,
	})
	svc := New(repo, ex, nil, time.Hour, 10*time.Second)
	return svc, repo, med, ph
}

func extractionOf(meds ...domain.ExtractedMedicine) extract.Result {
	return extract.Result{
		Metadata:  domain.PatientMetadata{PatientName: "John Doe", Confidence: 0.9},
		Medicines: meds,
		Quality:   extract.Quality{Readable: true},
	}
}

// Dolo is a Paracetamol brand: 10 tablets at 250 paise with 5% tax must
// come out to exactly 2500 + 125 = 2625.
func TestScanMatchesBrandAndPricesExactly(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Dolo", Strength: "500mg", QuantityPrescribed: 10,
	})}
	svc, _, med, _ := newTestService(t, ex)

	resp, err := svc.Scan(context.Background(), []byte("image"), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if resp.Status != "pending_confirmation" {
		t.Errorf("status = %s", resp.Status)
	}
	if len(resp.Medicines) != 1 {
		t.Fatalf("lines = %d, want 1", len(resp.Medicines))
	}
	line := resp.Medicines[0]
	if !line.FoundInInventory || line.MedicineID != med.ID {
		t.Errorf("line did not match catalog entry: %+v", line)
	}
	if line.LineTotalCents != 2500 || line.TaxAmountCents != 125 || line.ItemTotalCents != 2625 {
		t.Errorf("pricing = %d/%d/%d, want 2500/125/2625",
			line.LineTotalCents, line.TaxAmountCents, line.ItemTotalCents)
	}
	if resp.SubtotalCents != 2500 || resp.TotalTaxCents != 125 || resp.FinalAmountCents != 2625 {
		t.Errorf("totals = %d/%d/%d, want 2500/125/2625",
			resp.SubtotalCents, resp.TotalTaxCents, resp.FinalAmountCents)
	}
	if len(resp.Warnings) != 0 {
		t.Errorf("warnings = %+v, want none", resp.Warnings)
	}
}

// Unknown medicines become zero-priced warning lines, never errors.
// An extraction without quantity_prescribed decodes to quantity 0; the scan
// must treat it as 1 and still persist the bill item.
func TestScanDefaultsAbsentQuantityToOne(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(
		domain.ExtractedMedicine{GenericName: "Dolo", Strength: "500mg"},
		domain.ExtractedMedicine{GenericName: "Unknownmed"},
	)}
	svc, repo, med, _ := newTestService(t, ex)

	resp, err := svc.Scan(context.Background(), []byte("image"), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(resp.Medicines) != 2 {
		t.Fatalf("lines = %d, want 2", len(resp.Medicines))
	}
	matched := resp.Medicines[0]
	if matched.QuantityPrescribed != 1 {
		t.Errorf("matched quantity = %d, want 1", matched.QuantityPrescribed)
	}
	if matched.LineTotalCents != 250 || matched.TaxAmountCents != 13 || matched.ItemTotalCents != 263 {
		t.Errorf("matched line priced wrong: %+v", matched)
	}
	if resp.Medicines[1].QuantityPrescribed != 1 {
		t.Errorf("unmatched quantity = %d, want 1", resp.Medicines[1].QuantityPrescribed)
	}

	items, err := repo.ListBillItems(context.Background(), resp.BillID)
	if err != nil {
		t.Fatalf("ListBillItems: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	if items[0].MedicineID != med.ID || items[0].Quantity != 1 {
		t.Errorf("persisted item = %+v, want quantity 1 for %s", items[0], med.ID)
	}
}

func TestScanUnmatchedMedicineBecomesWarning(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(
		domain.ExtractedMedicine{GenericName: "Dolo", QuantityPrescribed: 10},
		domain.ExtractedMedicine{GenericName: "Unknownmed", QuantityPrescribed: 5},
	)}
	svc, _, _, _ := newTestService(t, ex)

	resp, err := svc.Scan(context.Background(), []byte("image"), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(resp.Medicines) != 2 {
		t.Fatalf("lines = %d, want 2", len(resp.Medicines))
	}
	unmatched := resp.Medicines[1]
	if unmatched.FoundInInventory || unmatched.LineTotalCents != 0 || unmatched.ItemTotalCents != 0 {
		t.Errorf("unmatched line must stay zero-priced: %+v", unmatched)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].GenericName != "Unknownmed" {
		t.Errorf("warnings = %+v, want the unmatched line", resp.Warnings)
	}
	// Totals cover only the matched line.
	if resp.FinalAmountCents != 2625 {
		t.Errorf("final = %d, want 2625", resp.FinalAmountCents)
	}
}

func TestScanInsufficientStockWarnsButStillDrafts(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Paracetamol", QuantityPrescribed: 500,
	})}
	svc, repo, med, _ := newTestService(t, ex)

	resp, err := svc.Scan(context.Background(), []byte("image"), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].StockAvailable {
		t.Errorf("want one stock warning, got %+v", resp.Warnings)
	}

	bill, err := repo.GetBillByID(context.Background(), resp.BillID)
	if err != nil {
		t.Fatalf("bill was not persisted: %v", err)
	}
	if bill.Status != domain.BillStatusPending {
		t.Errorf("bill status = %s, want PENDING", bill.Status)
	}

	// Draft creation must not move stock.
	m, _ := repo.GetMedicineByID(context.Background(), med.ID)
	if m.CurrentStock != 150 {
		t.Errorf("stock after draft = %d, want untouched 150", m.CurrentStock)
	}
}

func TestScanDegradesOnExtractionFailure(t *testing.T) {
	ex := &stubExtractor{err: errors.New("vision service unavailable")}
	svc, repo, _, _ := newTestService(t, ex)

	resp, err := svc.Scan(context.Background(), []byte("image"), "")
	if err != nil {
		t.Fatalf("Scan must not fail on extraction error: %v", err)
	}
	if resp.Readable {
		t.Error("degraded scan must report unreadable")
	}
	if resp.ExtractionError == "" {
		t.Error("degraded scan must surface the extraction error")
	}
	if len(resp.Medicines) != 0 || resp.FinalAmountCents != 0 {
		t.Errorf("degraded scan must produce an empty zero-total draft: %+v", resp)
	}

	bill, err := repo.GetBillByID(context.Background(), resp.BillID)
	if err != nil {
		t.Fatalf("degraded scan must still persist a bill: %v", err)
	}
	if bill.Status != domain.BillStatusPending {
		t.Errorf("bill status = %s, want PENDING", bill.Status)
	}
}

func TestScanRejectsEmptyImage(t *testing.T) {
	svc, _, _, _ := newTestService(t, &stubExtractor{result: extractionOf()})
	if _, err := svc.Scan(context.Background(), nil, ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func scanOnce(t *testing.T, svc *Service) domain.ScanResponse {
	t.Helper()
	resp, err := svc.Scan(context.Background(), []byte("image"), "")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return resp
}

func TestConfirmHappyPathDeductsStock(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Paracetamol", QuantityPrescribed: 10,
	})}
	svc, repo, med, ph := newTestService(t, ex)
	resp := scanOnce(t, svc)

	out, err := svc.Confirm(context.Background(), resp.BillID, domain.ConfirmRequest{PharmacistPIN: "1234", Notes: "ok"})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if out.Status != "confirmed" || out.BillNumber != resp.BillNumber {
		t.Errorf("confirm response = %+v", out)
	}

	m, _ := repo.GetMedicineByID(context.Background(), med.ID)
	if m.CurrentStock != 140 {
		t.Errorf("stock = %d, want 140", m.CurrentStock)
	}
	bill, _ := repo.GetBillByID(context.Background(), resp.BillID)
	if bill.ConfirmedBy != ph.ID || bill.ConfirmedAt == nil {
		t.Error("confirmation attribution missing")
	}

	ledger, _ := repo.ListInventoryTransactions(context.Background(), med.ID, 10)
	if len(ledger) != 1 || ledger[0].TransactionType != domain.TxTypeDispensed {
		t.Errorf("ledger = %+v, want one DISPENSED entry", ledger)
	}
}

func TestConfirmWrongPINIsUnauthorized(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Paracetamol", QuantityPrescribed: 10,
	})}
	svc, repo, med, _ := newTestService(t, ex)
	resp := scanOnce(t, svc)

	_, err := svc.Confirm(context.Background(), resp.BillID, domain.ConfirmRequest{PharmacistPIN: "9999"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	bill, _ := repo.GetBillByID(context.Background(), resp.BillID)
	if bill.Status != domain.BillStatusPending {
		t.Error("wrong PIN must leave the bill PENDING")
	}
	m, _ := repo.GetMedicineByID(context.Background(), med.ID)
	if m.CurrentStock != 150 {
		t.Errorf("stock = %d, want untouched 150", m.CurrentStock)
	}
}

func TestConfirmIsAtMostOnce(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Paracetamol", QuantityPrescribed: 10,
	})}
	svc, repo, med, _ := newTestService(t, ex)
	resp := scanOnce(t, svc)

	if _, err := svc.Confirm(context.Background(), resp.BillID, domain.ConfirmRequest{PharmacistPIN: "1234"}); err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	_, err := svc.Confirm(context.Background(), resp.BillID, domain.ConfirmRequest{PharmacistPIN: "1234"})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("second Confirm err = %v, want ErrInvalidState", err)
	}

	m, _ := repo.GetMedicineByID(context.Background(), med.ID)
	if m.CurrentStock != 140 {
		t.Errorf("stock deducted twice: %d, want 140", m.CurrentStock)
	}
}

func TestConfirmConcurrentAttemptsDeductOnce(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Paracetamol", QuantityPrescribed: 10,
	})}
	svc, repo, med, _ := newTestService(t, ex)
	resp := scanOnce(t, svc)

	const attempts = 12
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Confirm(context.Background(), resp.BillID, domain.ConfirmRequest{PharmacistPIN: "1234"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInvalidState) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful confirmations = %d, want 1", succeeded)
	}
	m, _ := repo.GetMedicineByID(context.Background(), med.ID)
	if m.CurrentStock != 140 {
		t.Errorf("stock = %d, want 140", m.CurrentStock)
	}
}

func TestConfirmInsufficientStockAtCommitTime(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Paracetamol", QuantityPrescribed: 10,
	})}
	svc, repo, med, ph := newTestService(t, ex)
	resp := scanOnce(t, svc)

	// Stock drains between scan and confirm.
	if err := repo.SetStock(context.Background(), med.ID, 3, ph.ID); err != nil {
		t.Fatalf("SetStock: %v", err)
	}

	_, err := svc.Confirm(context.Background(), resp.BillID, domain.ConfirmRequest{PharmacistPIN: "1234"})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	bill, _ := repo.GetBillByID(context.Background(), resp.BillID)
	if bill.Status != domain.BillStatusPending {
		t.Error("failed commit must leave the bill PENDING")
	}
}

func TestLogin(t *testing.T) {
	svc, _, _, ph := newTestService(t, &stubExtractor{result: extractionOf()})
	ctx := context.Background()

	got, err := svc.Login(ctx, domain.LoginRequest{LicenseNumber: "PHARM-001", PIN: "1234"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != ph.ID {
		t.Errorf("logged in as %s, want %s", got.ID, ph.ID)
	}

	if _, err := svc.Login(ctx, domain.LoginRequest{LicenseNumber: "PHARM-001", PIN: "0000"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong PIN err = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Login(ctx, domain.LoginRequest{LicenseNumber: "PHARM-404", PIN: "1234"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("unknown license err = %v, want ErrUnauthorized", err)
	}
}

func TestListInventoryLowStockFilter(t *testing.T) {
	svc, repo, _, _ := newTestService(t, &stubExtractor{result: extractionOf()})
	repo.PutMedicine(domain.Medicine{
		GenericName:    "Amoxicillin",
		BrandNames:     []string{"Mox"},
		UnitPriceCents: 1000,
		TaxRateBp:      1200,
		CurrentStock:   5,
		MinStockLevel:  10,
		Active:         true,
	})
	// Stock exactly at the minimum is not low.
	repo.PutMedicine(domain.Medicine{
		GenericName:    "Metformin",
		BrandNames:     []string{"Glycomet"},
		UnitPriceCents: 300,
		TaxRateBp:      500,
		CurrentStock:   25,
		MinStockLevel:  25,
		Active:         true,
	})

	low, err := svc.ListInventory(context.Background(), "", true)
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	if len(low) != 1 || low[0].GenericName != "Amoxicillin" {
		t.Fatalf("low stock = %+v, want only Amoxicillin", low)
	}
	if low[0].StockStatus != domain.StockStatusLow {
		t.Errorf("stock status = %s, want LOW", low[0].StockStatus)
	}
	if low[0].TaxRatePercent != 12.0 {
		t.Errorf("tax percent = %v, want 12", low[0].TaxRatePercent)
	}

	all, err := svc.ListInventory(context.Background(), "metformin", false)
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	if len(all) != 1 || all[0].StockStatus != domain.StockStatusOK {
		t.Fatalf("at-minimum stock = %+v, want status OK", all)
	}
}

func TestBillDetail(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Paracetamol", QuantityPrescribed: 10, Frequency: "1-0-1", Duration: "5 days",
	})}
	svc, _, med, _ := newTestService(t, ex)
	resp := scanOnce(t, svc)

	detail, err := svc.BillDetail(context.Background(), resp.BillID)
	if err != nil {
		t.Fatalf("BillDetail: %v", err)
	}
	if detail.Bill.BillNumber != resp.BillNumber {
		t.Errorf("bill number = %s, want %s", detail.Bill.BillNumber, resp.BillNumber)
	}
	if len(detail.Items) != 1 || detail.Items[0].MedicineID != med.ID {
		t.Fatalf("items = %+v, want one line for the matched medicine", detail.Items)
	}
	if detail.Items[0].DosageFrequency != "1-0-1" || detail.Items[0].DosageDuration != "5 days" {
		t.Error("dosage details were not carried onto the bill item")
	}

	if _, err := svc.BillDetail(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing bill err = %v, want ErrNotFound", err)
	}
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string]extract.Result
	gets int
	hits int
}

func (c *fakeCache) Get(_ context.Context, key string) (*extract.Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if r, ok := c.data[key]; ok {
		c.hits++
		return &r, true, nil
	}
	return nil, false, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value *extract.Result, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string]extract.Result{}
	}
	c.data[key] = *value
	return nil
}

func TestScanUsesExtractionCacheOnRepeat(t *testing.T) {
	ex := &stubExtractor{result: extractionOf(domain.ExtractedMedicine{
		GenericName: "Paracetamol", QuantityPrescribed: 10,
	})}
	repo := memory.NewSeeded()
	c := &fakeCache{}
	svc := New(repo, ex, c, time.Hour, 10*time.Second)

	image := []byte("same-image")
	if _, err := svc.Scan(context.Background(), image, ""); err != nil {
		t.Fatalf("first Scan: %v", err)
	}
	if _, err := svc.Scan(context.Background(), image, ""); err != nil {
		t.Fatalf("second Scan: %v", err)
	}
	if ex.calls != 1 {
		t.Errorf("extractor calls = %d, want 1 (second scan cached)", ex.calls)
	}
	if c.hits != 1 {
		t.Errorf("cache hits = %d, want 1", c.hits)
	}
}
