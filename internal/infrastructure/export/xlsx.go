package export

import (
	"fmt"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Invoices"

// XLSXExporter writes records to a single-sheet workbook with a totals row
type XLSXExporter struct{}

func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

func (e *XLSXExporter) Export(records []entity.InvoiceRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("failed to create amount style: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range records {
		cells := row(r)
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// amount columns G..I get a number format and a SUM row
	lastRow := len(records) + 1
	if len(records) > 0 {
		if err := f.SetCellStyle(sheetName, "G2", fmt.Sprintf("I%d", lastRow), amountStyle); err != nil {
			return nil, fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	totalRow := lastRow + 1
	if err := f.SetCellValue(sheetName, fmt.Sprintf("F%d", totalRow), "合計"); err != nil {
		return nil, fmt.Errorf("failed to write totals label: %w", err)
	}
	for _, col := range []string{"G", "H", "I"} {
		cell := fmt.Sprintf("%s%d", col, totalRow)
		if err := f.SetCellFormula(sheetName, cell, fmt.Sprintf("SUM(%s2:%s%d)", col, col, max(lastRow, 2))); err != nil {
			return nil, fmt.Errorf("failed to write totals formula: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *XLSXExporter) Extension() string { return ".xlsx" }

var _ port.RecordExporter = (*XLSXExporter)(nil)
