package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/garyjia/invoice-vision/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const invoiceColumns = `id, owner_identity, source_file_name, invoice_date, invoice_number,
	seller_name, seller_tax_id, subtotal, tax, total, invoice_type,
	category_suggestion, completeness_status, created_at, updated_at`

// columnKind tells Update how to validate a value before binding it
type columnKind int

const (
	textColumn columnKind = iota
	amountColumn
)

type updatableColumn struct {
	name string
	kind columnKind
}

// updatableColumns whitelists the fields a caller may change and maps them to columns
var updatableColumns = map[string]updatableColumn{
	entity.FieldSourceFileName: {"source_file_name", textColumn},
	entity.FieldDate:           {"invoice_date", textColumn},
	entity.FieldInvoiceNumber:  {"invoice_number", textColumn},
	entity.FieldSellerName:     {"seller_name", textColumn},
	entity.FieldSellerTaxID:    {"seller_tax_id", textColumn},
	entity.FieldSubtotal:       {"subtotal", amountColumn},
	entity.FieldTax:            {"tax", amountColumn},
	entity.FieldTotal:          {"total", amountColumn},
	entity.FieldInvoiceType:    {"invoice_type", textColumn},
	entity.FieldCategory:       {"category_suggestion", textColumn},
	entity.FieldStatus:         {"completeness_status", textColumn},
}

// InvoiceRepository implements port.InvoiceRepository on SQLite
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Insert stores a record under owner and assigns its id
func (r *InvoiceRepository) Insert(ctx context.Context, owner string, rec *entity.InvoiceRecord) (int64, error) {
	if owner == "" {
		return 0, fmt.Errorf("failed to insert invoice: owner identity is required")
	}

	query := `
		INSERT INTO invoices (
			owner_identity, source_file_name, invoice_date, invoice_number,
			seller_name, seller_tax_id, subtotal, tax, total, invoice_type,
			category_suggestion, completeness_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := r.now().UTC()
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		owner,
		rec.SourceFileName,
		rec.Date,
		rec.InvoiceNumber,
		rec.SellerName,
		rec.SellerTaxID,
		rec.Subtotal,
		rec.Tax,
		rec.Total,
		rec.InvoiceType,
		rec.CategorySuggestion,
		string(rec.CompletenessStatus),
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to insert invoice",
			zap.String("owner", owner),
			zap.String("invoice_number", rec.InvoiceNumber),
			zap.Error(err))
		return 0, fmt.Errorf("failed to insert invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	rec.OwnerIdentity = owner
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return id, nil
}

// Find returns the owner's records with the given invoice number and date
func (r *InvoiceRepository) Find(ctx context.Context, owner, invoiceNumber, date string) ([]entity.InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE owner_identity = ? AND invoice_number = ? AND invoice_date = ?
		ORDER BY id
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, owner, invoiceNumber, date)
	if err != nil {
		r.logger.Error("Failed to find invoices", zap.String("owner", owner), zap.Error(err))
		return nil, fmt.Errorf("failed to find invoices: %w", err)
	}
	defer rows.Close()

	return scanInvoices(rows)
}

// Get retrieves one of the owner's records by id
func (r *InvoiceRepository) Get(ctx context.Context, owner string, id int64) (*entity.InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE owner_identity = ? AND id = ?
	`

	rec, err := scanInvoice(r.getExecutor(ctx).QueryRowContext(ctx, query, owner, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get invoice", zap.String("owner", owner), zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return rec, nil
}

// List returns the owner's records, newest first
func (r *InvoiceRepository) List(ctx context.Context, owner string, opts port.ListOptions) ([]entity.InvoiceRecord, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE owner_identity = ?`
	args := []any{owner}

	if opts.Status != "" {
		query += ` AND completeness_status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.String("owner", owner), zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	return scanInvoices(rows)
}

// Update applies whitelisted field updates to one of the owner's records
func (r *InvoiceRepository) Update(ctx context.Context, owner string, id int64, updates entity.FieldUpdates) error {
	if len(updates) == 0 {
		return nil
	}

	fields := make([]string, 0, len(updates))
	for field := range updates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+3)
	for _, field := range fields {
		col, ok := updatableColumns[field]
		if !ok {
			return fmt.Errorf("%w: %s", entity.ErrInvalidField, field)
		}
		value, err := bindValue(col.kind, updates[field])
		if err != nil {
			return fmt.Errorf("%w: %s: %v", entity.ErrInvalidField, field, err)
		}
		sets = append(sets, col.name+" = ?")
		args = append(args, value)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, r.now().UTC(), owner, id)

	query := `UPDATE invoices SET ` + strings.Join(sets, ", ") + ` WHERE owner_identity = ? AND id = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update invoice", zap.String("owner", owner), zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// Delete removes the owner's records with the given ids
func (r *InvoiceRepository) Delete(ctx context.Context, owner string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, owner)
	for _, id := range ids {
		args = append(args, id)
	}

	query := `DELETE FROM invoices WHERE owner_identity = ? AND id IN (` + placeholders + `)`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to delete invoices", zap.String("owner", owner), zap.Error(err))
		return 0, fmt.Errorf("failed to delete invoices: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected, nil
}

// Summary aggregates the owner's records
func (r *InvoiceRepository) Summary(ctx context.Context, owner string) (*entity.InvoiceSummary, error) {
	summary := &entity.InvoiceSummary{ByCategory: make(map[string]float64)}

	totals := `
		SELECT COUNT(*), COALESCE(SUM(total), 0),
			COALESCE(SUM(CASE WHEN completeness_status != ? THEN 1 ELSE 0 END), 0)
		FROM invoices
		WHERE owner_identity = ?
	`
	err := r.getExecutor(ctx).QueryRowContext(ctx, totals, string(entity.StatusComplete), owner).
		Scan(&summary.Count, &summary.Total, &summary.Incomplete)
	if err != nil {
		r.logger.Error("Failed to summarize invoices", zap.String("owner", owner), zap.Error(err))
		return nil, fmt.Errorf("failed to summarize invoices: %w", err)
	}

	byCategory := `
		SELECT category_suggestion, COALESCE(SUM(total), 0)
		FROM invoices
		WHERE owner_identity = ?
		GROUP BY category_suggestion
	`
	rows, err := r.getExecutor(ctx).QueryContext(ctx, byCategory, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var total float64
		if err := rows.Scan(&category, &total); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		summary.ByCategory[category] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category totals: %w", err)
	}

	return summary, nil
}

// getExecutor returns the transaction carried by ctx, if any
func (r *InvoiceRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFrom(ctx, r.db)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*entity.InvoiceRecord, error) {
	var rec entity.InvoiceRecord
	var status string
	err := row.Scan(
		&rec.ID,
		&rec.OwnerIdentity,
		&rec.SourceFileName,
		&rec.Date,
		&rec.InvoiceNumber,
		&rec.SellerName,
		&rec.SellerTaxID,
		&rec.Subtotal,
		&rec.Tax,
		&rec.Total,
		&rec.InvoiceType,
		&rec.CategorySuggestion,
		&status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.CompletenessStatus = entity.CompletenessStatus(status)
	return &rec, nil
}

func scanInvoices(rows *sql.Rows) ([]entity.InvoiceRecord, error) {
	var records []entity.InvoiceRecord
	for rows.Next() {
		rec, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	return records, nil
}

func bindValue(kind columnKind, v any) (any, error) {
	switch kind {
	case amountColumn:
		switch n := v.(type) {
		case float64:
			if n < 0 {
				return nil, fmt.Errorf("negative amount %v", n)
			}
			return n, nil
		case int:
			if n < 0 {
				return nil, fmt.Errorf("negative amount %d", n)
			}
			return float64(n), nil
		case int64:
			if n < 0 {
				return nil, fmt.Errorf("negative amount %d", n)
			}
			return float64(n), nil
		default:
			return nil, fmt.Errorf("amount must be numeric, got %T", v)
		}
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	}
}

// Verify interface compliance
var _ port.InvoiceRepository = (*InvoiceRepository)(nil)
