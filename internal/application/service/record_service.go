package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/application/session"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/garyjia/invoice-vision/internal/invoice"
)

// editableFields are the fields a user may change. The completeness status is
// derived and recomputed on every edit.
var editableFields = map[string]bool{
	entity.FieldSourceFileName: true,
	entity.FieldDate:           true,
	entity.FieldInvoiceNumber:  true,
	entity.FieldSellerName:     true,
	entity.FieldSellerTaxID:    true,
	entity.FieldSubtotal:       true,
	entity.FieldTax:            true,
	entity.FieldTotal:          true,
	entity.FieldInvoiceType:    true,
	entity.FieldCategory:       true,
}

// ErrUnsupportedFormat is returned by Export for unknown format names
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ExportFile is a rendered export ready for download
type ExportFile struct {
	FileName    string
	ContentType string
	Data        []byte
}

// RecordService serves an owner's stored records
type RecordService struct {
	repo       port.InvoiceRepository
	tx         port.TransactionManager
	normalizer *invoice.Normalizer
	sessions   *session.Manager
	exporters  map[string]port.RecordExporter
	logger     Logger
}

// NewRecordService creates a new RecordService
func NewRecordService(
	repo port.InvoiceRepository,
	tx port.TransactionManager,
	normalizer *invoice.Normalizer,
	sessions *session.Manager,
	exporters map[string]port.RecordExporter,
	logger Logger,
) *RecordService {
	return &RecordService{
		repo:       repo,
		tx:         tx,
		normalizer: normalizer,
		sessions:   sessions,
		exporters:  exporters,
		logger:     logger,
	}
}

func (s *RecordService) List(ctx context.Context, owner string, opts port.ListOptions) ([]entity.InvoiceRecord, error) {
	records, err := s.repo.List(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// Update merges user edits into the stored record, re-normalizes it and saves
// the result. Edited records get a freshly computed status.
func (s *RecordService) Update(ctx context.Context, owner string, id int64, updates entity.FieldUpdates) (*entity.InvoiceRecord, error) {
	for field := range updates {
		if !editableFields[field] {
			return nil, fmt.Errorf("%w: %s", entity.ErrInvalidField, field)
		}
	}

	var updated entity.InvoiceRecord
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx, owner, id)
		if err != nil {
			return err
		}

		merged := current.Fields()
		delete(merged, entity.FieldStatus)
		for field, value := range updates {
			merged[field] = value
		}

		updated = s.normalizer.Normalize(merged)
		updated.ID = current.ID
		updated.OwnerIdentity = owner
		updated.CreatedAt = current.CreatedAt

		return s.repo.Update(ctx, owner, id, entity.FieldUpdates(updated.Fields()))
	})
	if err != nil {
		s.logger.Error("Failed to update record", "owner", owner, "id", id, "error", err)
		return nil, fmt.Errorf("update record %d: %w", id, err)
	}

	updated.UpdatedAt = time.Now().UTC()
	s.logger.Info("Record updated", "owner", owner, "id", id, "status", string(updated.CompletenessStatus))
	return &updated, nil
}

// Delete removes stored records and releases held ones. Negative ids refer to
// records held in the owner's session.
func (s *RecordService) Delete(ctx context.Context, owner string, ids []int64) (int64, error) {
	var stored, held []int64
	for _, id := range ids {
		if id < 0 {
			held = append(held, id)
		} else {
			stored = append(stored, id)
		}
	}

	var removed int64
	if len(held) > 0 {
		if sess, ok := s.sessions.Lookup(owner); ok {
			removed += int64(sess.Release(held))
		}
	}

	n, err := s.repo.Delete(ctx, owner, stored)
	if err != nil {
		return removed, fmt.Errorf("delete records: %w", err)
	}
	removed += n

	s.logger.Info("Records deleted", "owner", owner, "requested", len(ids), "removed", removed)
	return removed, nil
}

// Held returns the records kept in memory after persistence failed
func (s *RecordService) Held(owner string) []entity.InvoiceRecord {
	sess, ok := s.sessions.Lookup(owner)
	if !ok {
		return nil
	}
	return sess.Held()
}

func (s *RecordService) Summary(ctx context.Context, owner string) (*entity.InvoiceSummary, error) {
	summary, err := s.repo.Summary(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("summarize records: %w", err)
	}
	return summary, nil
}

// Export renders all of the owner's stored records in format
func (s *RecordService) Export(ctx context.Context, owner, format string) (*ExportFile, error) {
	exporter, ok := s.exporters[format]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}

	records, err := s.repo.List(ctx, owner, port.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("export records: %w", err)
	}

	data, err := exporter.Export(records)
	if err != nil {
		return nil, fmt.Errorf("export records: %w", err)
	}

	return &ExportFile{
		FileName:    "invoices" + exporter.Extension(),
		ContentType: exporter.ContentType(),
		Data:        data,
	}, nil
}
