// Package pricing computes line totals and tax for matched catalog entries.
// All arithmetic is integer fixed-point: paise for money, basis points for
// tax rates, so repeated computation can never drift.
package pricing

import "medscan/internal/domain"

// PriceLine prices quantity units of a matched medicine. Quantities below 1
// are clamped to 1, mirroring the extractor's default.
func PriceLine(med domain.Medicine, quantity int) domain.PricedLine {
	if quantity < 1 {
		quantity = 1
	}

	lineTotal := med.UnitPriceCents * int64(quantity)
	taxAmount := TaxAmount(lineTotal, med.TaxRateBp)

	return domain.PricedLine{
		MedicineID:       med.ID,
		FoundInInventory: true,
		StockAvailable:   med.CurrentStock >= quantity,
		CurrentStock:     med.CurrentStock,
		UnitPriceCents:   med.UnitPriceCents,
		LineTotalCents:   lineTotal,
		TaxAmountCents:   taxAmount,
		ItemTotalCents:   lineTotal + taxAmount,
	}
}

// TaxAmount applies a basis-point rate to an amount in paise, rounding half
// up. 2500 paise at 500 bp (5%) yields exactly 125.
func TaxAmount(amountCents, rateBp int64) int64 {
	if amountCents <= 0 || rateBp <= 0 {
		return 0
	}
	return (amountCents*rateBp + 5000) / 10000
}

// PercentFromBp converts a basis-point rate to a display percentage.
func PercentFromBp(rateBp int64) float64 {
	return float64(rateBp) / 100
}
