// Package export produces XLSX workbooks for back-office use.
package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"medscan/internal/domain"
	"medscan/internal/pricing"
	"medscan/internal/store"
)

// InventoryXLSX renders the current catalog as a workbook. One row per
// medicine, including stock state and the derived low-stock flag.
func InventoryXLSX(ctx context.Context, repo store.Repository) ([]byte, error) {
	medicines, err := repo.ListMedicines(ctx, store.MedicineFilter{})
	if err != nil {
		return nil, fmt.Errorf("query medicines: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Inventory"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defaultIndex, _ := f.GetSheetIndex("Sheet1"); defaultIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Generic Name",
		"Brand Names",
		"Strength",
		"Form",
		"Unit Price",
		"Tax Rate %",
		"Current Stock",
		"Min Stock Level",
		"Reorder Quantity",
		"Stock Status",
		"Manufacturer",
		"Expiry Date",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, m := range medicines {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, m.GenericName)
		write(2, strings.Join(m.BrandNames, ", "))
		write(3, m.Strength)
		write(4, m.Form)
		write(5, float64(m.UnitPriceCents)/100)
		write(6, pricing.PercentFromBp(m.TaxRateBp))
		write(7, m.CurrentStock)
		write(8, m.MinStockLevel)
		write(9, m.ReorderQuantity)
		write(10, stockStatus(m))
		write(11, m.Manufacturer)
		if m.ExpiryDate != nil {
			write(12, m.ExpiryDate.Format("2006-01-02"))
		} else {
			write(12, "")
		}
		row++
	}

	summaryCell, _ := excelize.CoordinatesToCellName(1, row+1)
	_ = f.SetCellValue(sheet, summaryCell, fmt.Sprintf("Exported %d medicines at %s",
		len(medicines), time.Now().UTC().Format(time.RFC3339)))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func stockStatus(m domain.Medicine) string {
	if m.CurrentStock < m.MinStockLevel {
		return domain.StockStatusLow
	}
	return domain.StockStatusOK
}
