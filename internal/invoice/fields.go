package invoice

import (
	"sort"
	"strings"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
)

// fieldAliases lists, per canonical field, the keys a model may use for it.
// Earlier aliases win when several are present with a usable value.
var fieldAliases = map[string][]string{
	entity.FieldDate:          {"date", "invoice_date", "日期", "發票日期", "開立日期", "开票日期"},
	entity.FieldInvoiceNumber: {"invoice_number", "invoice_no", "invoice_num", "number", "發票號碼", "發票編號", "号码", "發票號"},
	entity.FieldSellerName:    {"seller_name", "seller", "vendor", "store_name", "賣方名稱", "賣方", "商店名稱", "销售方名称"},
	entity.FieldSellerTaxID:   {"seller_tax_id", "tax_id", "seller_id", "vat_number", "賣方統編", "統一編號", "統編", "销售方税号"},
	entity.FieldSubtotal:      {"subtotal", "amount_without_tax", "sales_amount", "銷售額", "未稅金額", "小計"},
	entity.FieldTax:           {"tax", "tax_amount", "稅額", "營業稅", "税额"},
	entity.FieldTotal:         {"total", "total_amount", "amount", "總計", "總額", "總金額", "合計", "价税合计"},
	entity.FieldInvoiceType:   {"invoice_type", "type", "發票類型", "類型", "憑證類型"},
	entity.FieldCategory:      {"category_suggestion", "category", "suggested_category", "類別建議", "類別", "分類"},
	entity.FieldStatus:        {"completeness_status", "status", "狀態"},
}

// MapFields maps a recovered model object onto canonical field names.
// Keys are matched case-insensitively; fields with no alias present are
// left out so the normalizer applies their sentinel.
func MapFields(obj map[string]any) entity.RawFields {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// keys differing only in case collapse; the first usable value in sorted order wins
	lowered := make(map[string]any, len(obj))
	for _, k := range keys {
		key := strings.ToLower(strings.TrimSpace(k))
		if prev, seen := lowered[key]; seen && (!isBlank(prev) || isBlank(obj[k])) {
			continue
		}
		lowered[key] = obj[k]
	}

	fields := make(entity.RawFields, len(fieldAliases))
	for canonical, aliases := range fieldAliases {
		var fallback any
		found := false
		for _, alias := range aliases {
			v, ok := lowered[strings.ToLower(alias)]
			if !ok {
				continue
			}
			if !found {
				fallback, found = v, true
			}
			if !isBlank(v) {
				fields[canonical] = v
				break
			}
		}
		if _, set := fields[canonical]; !set && found {
			fields[canonical] = fallback
		}
	}
	return fields
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}
