package invoice

import "github.com/garyjia/invoice-vision/internal/domain/entity"

// HistoryView answers "is there already an invoice with this number and date
// for this owner". Implementations decide how the records are stored.
type HistoryView interface {
	FindDuplicate(owner, invoiceNumber, date string) (id int64, found bool)
}

// RecordList is an in-memory HistoryView scanned linearly
type RecordList []entity.InvoiceRecord

// FindDuplicate returns the first record of owner matching number and date
func (l RecordList) FindDuplicate(owner, invoiceNumber, date string) (int64, bool) {
	for i := range l {
		r := &l[i]
		if r.OwnerIdentity != owner {
			continue
		}
		if r.InvoiceNumber == invoiceNumber && r.Date == date {
			return r.ID, true
		}
	}
	return 0, false
}

// MultiView consults several views in order
type MultiView []HistoryView

// FindDuplicate returns the first match across all views
func (m MultiView) FindDuplicate(owner, invoiceNumber, date string) (int64, bool) {
	for _, v := range m {
		if v == nil {
			continue
		}
		if id, ok := v.FindDuplicate(owner, invoiceNumber, date); ok {
			return id, true
		}
	}
	return 0, false
}

// IsDuplicate reports whether (owner, invoiceNumber, date) is already in view.
// Unrecognized invoice numbers never match, so illegible invoices can always
// be uploaded again.
func IsDuplicate(invoiceNumber, date, owner string, view HistoryView) (bool, int64) {
	if IsNotRecognized(invoiceNumber) || view == nil {
		return false, 0
	}
	id, ok := view.FindDuplicate(owner, invoiceNumber, date)
	if !ok {
		return false, 0
	}
	return true, id
}
