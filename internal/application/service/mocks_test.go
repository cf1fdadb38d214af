package service

import (
	"context"
	"sync"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/stretchr/testify/mock"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type mockRecognizer struct {
	mock.Mock
}

func (m *mockRecognizer) Recognize(ctx context.Context, req port.VisionRequest) (*port.Recognition, error) {
	args := m.Called(ctx, req)
	rec, _ := args.Get(0).(*port.Recognition)
	return rec, args.Error(1)
}

// memoryInvoiceRepo is an owner-scoped in-memory port.InvoiceRepository
type memoryInvoiceRepo struct {
	mu        sync.Mutex
	nextID    int64
	records   map[int64]entity.InvoiceRecord
	insertErr error
	inserts   int
}

func newMemoryInvoiceRepo() *memoryInvoiceRepo {
	return &memoryInvoiceRepo{records: make(map[int64]entity.InvoiceRecord)}
}

func (r *memoryInvoiceRepo) Insert(ctx context.Context, owner string, rec *entity.InvoiceRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserts++
	if r.insertErr != nil {
		return 0, r.insertErr
	}
	r.nextID++
	rec.ID = r.nextID
	rec.OwnerIdentity = owner
	r.records[rec.ID] = *rec
	return rec.ID, nil
}

func (r *memoryInvoiceRepo) Find(ctx context.Context, owner, invoiceNumber, date string) ([]entity.InvoiceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.InvoiceRecord
	for id := int64(1); id <= r.nextID; id++ {
		rec, ok := r.records[id]
		if ok && rec.OwnerIdentity == owner && rec.InvoiceNumber == invoiceNumber && rec.Date == date {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryInvoiceRepo) Get(ctx context.Context, owner string, id int64) (*entity.InvoiceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.OwnerIdentity != owner {
		return nil, entity.ErrNotFound
	}
	return &rec, nil
}

func (r *memoryInvoiceRepo) List(ctx context.Context, owner string, opts port.ListOptions) ([]entity.InvoiceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.InvoiceRecord
	for id := r.nextID; id >= 1; id-- {
		rec, ok := r.records[id]
		if ok && rec.OwnerIdentity == owner {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memoryInvoiceRepo) Update(ctx context.Context, owner string, id int64, updates entity.FieldUpdates) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.OwnerIdentity != owner {
		return entity.ErrNotFound
	}
	for field, v := range updates {
		switch field {
		case entity.FieldSourceFileName:
			rec.SourceFileName = v.(string)
		case entity.FieldDate:
			rec.Date = v.(string)
		case entity.FieldInvoiceNumber:
			rec.InvoiceNumber = v.(string)
		case entity.FieldSellerName:
			rec.SellerName = v.(string)
		case entity.FieldSellerTaxID:
			rec.SellerTaxID = v.(string)
		case entity.FieldSubtotal:
			rec.Subtotal = v.(float64)
		case entity.FieldTax:
			rec.Tax = v.(float64)
		case entity.FieldTotal:
			rec.Total = v.(float64)
		case entity.FieldInvoiceType:
			rec.InvoiceType = v.(string)
		case entity.FieldCategory:
			rec.CategorySuggestion = v.(string)
		case entity.FieldStatus:
			rec.CompletenessStatus = entity.CompletenessStatus(v.(string))
		default:
			return entity.ErrInvalidField
		}
	}
	r.records[id] = rec
	return nil
}

func (r *memoryInvoiceRepo) Delete(ctx context.Context, owner string, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if rec, ok := r.records[id]; ok && rec.OwnerIdentity == owner {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *memoryInvoiceRepo) Summary(ctx context.Context, owner string) (*entity.InvoiceSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &entity.InvoiceSummary{ByCategory: map[string]float64{}}
	for _, rec := range r.records {
		if rec.OwnerIdentity != owner {
			continue
		}
		s.Count++
		s.Total += rec.Total
		s.ByCategory[rec.CategorySuggestion] += rec.Total
		if !rec.IsComplete() {
			s.Incomplete++
		}
	}
	return s, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memoryUserRepo struct {
	users map[string]entity.User
}

func (r *memoryUserRepo) Create(ctx context.Context, user *entity.User) error {
	if r.users == nil {
		r.users = map[string]entity.User{}
	}
	if _, ok := r.users[user.Username]; ok {
		return entity.ErrUserExists
	}
	user.ID = int64(len(r.users) + 1)
	r.users[user.Username] = *user
	return nil
}

func (r *memoryUserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return &u, nil
}
