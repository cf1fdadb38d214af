package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

// utf8BOM lets spreadsheet applications detect UTF-8 in the CSV
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVExporter writes records as UTF-8 CSV with a header row
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

func (e *CSVExporter) Export(records []entity.InvoiceRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(utf8BOM)

	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range records {
		cells := make([]string, 0, len(headers))
		for _, v := range row(r) {
			switch x := v.(type) {
			case float64:
				cells = append(cells, formatAmount(x))
			case int64:
				cells = append(cells, strconv.FormatInt(x, 10))
			default:
				cells = append(cells, fmt.Sprint(x))
			}
		}
		if err := w.Write(cells); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

func (e *CSVExporter) Extension() string { return ".csv" }

var _ port.RecordExporter = (*CSVExporter)(nil)
