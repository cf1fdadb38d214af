package port

import (
	"context"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

// ListOptions narrows an owner's record listing
type ListOptions struct {
	Status entity.CompletenessStatus
	Limit  int
	Offset int
}

// InvoiceRepository is the tenant-scoped persistence collaborator.
// Every method takes the owner identity; there is no unscoped access.
type InvoiceRepository interface {
	// Insert stores rec under owner and returns the assigned id
	Insert(ctx context.Context, owner string, rec *entity.InvoiceRecord) (int64, error)

	// Find returns the owner's records matching invoice number and date
	Find(ctx context.Context, owner, invoiceNumber, date string) ([]entity.InvoiceRecord, error)

	// Get returns entity.ErrNotFound when the id does not belong to owner
	Get(ctx context.Context, owner string, id int64) (*entity.InvoiceRecord, error)

	List(ctx context.Context, owner string, opts ListOptions) ([]entity.InvoiceRecord, error)

	// Update applies field updates to one record. Unknown fields are rejected.
	Update(ctx context.Context, owner string, id int64, updates entity.FieldUpdates) error

	// Delete removes the given ids and returns how many were removed
	Delete(ctx context.Context, owner string, ids []int64) (int64, error)

	Summary(ctx context.Context, owner string) (*entity.InvoiceSummary, error)
}

// UserRepository defines persistence operations for local accounts
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
