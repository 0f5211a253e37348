package ledger

import (
	"fmt"
	"io"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "Products"

// WriteXLSX renders records as a single-sheet workbook. Prices are numeric
// cells and a trailing status column flags placeholder records.
func WriteXLSX(w io.Writer, records []domain.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(xlsxSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}
	index, _ := f.GetSheetIndex(xlsxSheet)
	f.SetActiveSheet(index)

	headers := []string{"Name", "Price", "Unit", "SKU", "Category", "Status"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(xlsxSheet, cell, h)
	}

	for i, r := range records {
		row := i + 2
		status := "ok"
		if r.IsError {
			status = "error"
		}

		var price any
		if r.Price != nil {
			price = *r.Price
		}

		values := []any{r.Name, price, r.Unit, r.SKU, string(r.Category), status}
		for col, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(xlsxSheet, cell, v)
		}
	}

	_ = f.SetColWidth(xlsxSheet, "A", "A", 48) // name
	_ = f.SetColWidth(xlsxSheet, "B", "B", 12) // price
	_ = f.SetColWidth(xlsxSheet, "C", "D", 16) // unit, sku
	_ = f.SetColWidth(xlsxSheet, "E", "E", 18) // category

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
