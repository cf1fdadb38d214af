package entity

import "time"

// CompletenessStatus summarizes whether a record is usable without manual review
type CompletenessStatus string

const (
	StatusComplete   CompletenessStatus = "COMPLETE"
	StatusIncomplete CompletenessStatus = "INCOMPLETE"
	// StatusError marks a record the upstream model itself flagged as failed.
	// It survives normalization so the record stays visibly distinct.
	StatusError CompletenessStatus = "ERROR"
)

// Sentinel values stored in place of unrecognized fields
const (
	SentinelNotRecognized = "No"
	SentinelInvoiceType   = "其他"
	SentinelCategory      = "雜項"
	SentinelFileName      = "unknown"
)

// Canonical field names shared by the model mapping, the normalizer and the store
const (
	FieldSourceFileName = "source_file_name"
	FieldDate           = "date"
	FieldInvoiceNumber  = "invoice_number"
	FieldSellerName     = "seller_name"
	FieldSellerTaxID    = "seller_tax_id"
	FieldSubtotal       = "subtotal"
	FieldTax            = "tax"
	FieldTotal          = "total"
	FieldInvoiceType    = "invoice_type"
	FieldCategory       = "category_suggestion"
	FieldStatus         = "completeness_status"
)

// DateLayout is the storage form of InvoiceRecord.Date
const DateLayout = "2006/01/02"

// InvoiceRecord is one recognized invoice or receipt (發票/收據)
type InvoiceRecord struct {
	ID                 int64              `json:"id"`
	OwnerIdentity      string             `json:"owner_identity"`
	SourceFileName     string             `json:"source_file_name"`
	Date               string             `json:"date"`
	InvoiceNumber      string             `json:"invoice_number"`
	SellerName         string             `json:"seller_name"`
	SellerTaxID        string             `json:"seller_tax_id"`
	Subtotal           float64            `json:"subtotal"`
	Tax                float64            `json:"tax"`
	Total              float64            `json:"total"`
	InvoiceType        string             `json:"invoice_type"`
	CategorySuggestion string             `json:"category_suggestion"`
	CompletenessStatus CompletenessStatus `json:"completeness_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// RawFields is a loosely typed field mapping keyed by canonical field names
type RawFields map[string]any

// FieldUpdates carries user edits to an existing record
type FieldUpdates map[string]any

// Fields returns the record's user-facing fields as a RawFields mapping.
// Normalizing the result reproduces the record.
func (r *InvoiceRecord) Fields() RawFields {
	return RawFields{
		FieldSourceFileName: r.SourceFileName,
		FieldDate:           r.Date,
		FieldInvoiceNumber:  r.InvoiceNumber,
		FieldSellerName:     r.SellerName,
		FieldSellerTaxID:    r.SellerTaxID,
		FieldSubtotal:       r.Subtotal,
		FieldTax:            r.Tax,
		FieldTotal:          r.Total,
		FieldInvoiceType:    r.InvoiceType,
		FieldCategory:       r.CategorySuggestion,
		FieldStatus:         string(r.CompletenessStatus),
	}
}

// IsComplete reports whether the record passed the completeness check
func (r *InvoiceRecord) IsComplete() bool {
	return r.CompletenessStatus == StatusComplete
}

// InvoiceSummary aggregates an owner's records
type InvoiceSummary struct {
	Count      int                `json:"count"`
	Total      float64            `json:"total"`
	Incomplete int                `json:"incomplete"`
	ByCategory map[string]float64 `json:"by_category"`
}
