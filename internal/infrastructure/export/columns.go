package export

import (
	"strconv"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

// headers are the column titles shared by every export format
var headers = []string{
	"ID", "檔名", "日期", "發票號碼", "賣方名稱", "統一編號",
	"銷售額", "稅額", "總計", "發票類型", "類別", "狀態",
}

func row(r entity.InvoiceRecord) []any {
	return []any{
		r.ID,
		r.SourceFileName,
		r.Date,
		r.InvoiceNumber,
		r.SellerName,
		r.SellerTaxID,
		r.Subtotal,
		r.Tax,
		r.Total,
		r.InvoiceType,
		r.CategorySuggestion,
		string(r.CompletenessStatus),
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
