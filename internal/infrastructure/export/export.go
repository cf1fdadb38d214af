package export

import "github.com/garyjia/invoice-vision/internal/application/port"

// Formats returns the exporters keyed by the format name used in requests
func Formats() map[string]port.RecordExporter {
	return map[string]port.RecordExporter{
		"csv":  NewCSVExporter(),
		"xlsx": NewXLSXExporter(),
	}
}
