package port

import (
	"context"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

// VisionRequest is one image submitted for recognition
type VisionRequest struct {
	Image    []byte
	FileName string
	// Model overrides the configured default when non-empty
	Model  string
	APIKey string
}

// Recognition is a successful vision call. Fields are mapped to canonical
// keys but not yet normalized.
type Recognition struct {
	Fields  entity.RawFields
	Version string
	Model   string
	// Trail records every failed combination tried before the successful one
	Trail []string
}

// VisionRecognizer turns an invoice image into raw invoice fields
type VisionRecognizer interface {
	Recognize(ctx context.Context, req VisionRequest) (*Recognition, error)
}

// Page is one rendered page of a document
type Page struct {
	Number int
	Image  []byte
}

// DocumentRenderer splits a document into page images
type DocumentRenderer interface {
	Pages(ctx context.Context, path string) ([]Page, error)
}

// RecordExporter renders an owner's records into a downloadable file
type RecordExporter interface {
	Export(records []entity.InvoiceRecord) ([]byte, error)
	ContentType() string
	Extension() string
}
