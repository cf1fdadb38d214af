package invoice

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// rocYearOffset converts a Republic of China (民國) year to the Gregorian year
const rocYearOffset = 1911

var (
	// 113/05/01, 2024-05-01, 民國113年5月1日, 2024.5.1
	separatedDate = regexp.MustCompile(`^(民國|民国)?\s*(\d{2,4})\s*[/\-.年]\s*(\d{1,2})\s*[/\-.月]\s*(\d{1,2})\s*日?$`)
	// 20240501 or 1130501
	compactDate = regexp.MustCompile(`^()(\d{3,4})(\d{2})(\d{2})$`)

	// a number, optionally grouped in thousands: 1,050 or 1234.50 or -3
	amountRun = regexp.MustCompile(`-?\d{1,3}(?:[,，]\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?`)

	statusWord = regexp.MustCompile(`[a-z]+`)
)

// notAvailable holds lower-cased markers a model uses for "could not read"
var notAvailable = map[string]struct{}{
	"":        {},
	"null":    {},
	"nil":     {},
	"none":    {},
	"n/a":     {},
	"na":      {},
	"no":      {},
	"unknown": {},
	"-":       {},
	"--":      {},
	"無":       {},
	"无":       {},
	"未知":      {},
	"不明":      {},
	"未提供":     {},
	"無法辨識":    {},
}

// errorWords and errorMarkers flag an upstream status that reports a failed
// recognition. A marker preceded by a negation does not count.
var (
	errorWords    = map[string]struct{}{"error": {}, "errors": {}, "fail": {}, "failed": {}, "failure": {}}
	negationWords = map[string]struct{}{"no": {}, "not": {}, "without": {}, "zero": {}, "non": {}}
	errorMarkers  = []string{"錯誤", "错误", "失敗", "失败"}
	negations     = []string{"無", "无", "沒有", "没有", "未", "不", "非", "無任何", "沒有任何", "没有任何"}
)

// Normalizer coalesces raw model fields into a complete InvoiceRecord
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer creates a normalizer; now supplies "today" for date fallback
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// Normalize never fails: every field ends up with a real value or its sentinel,
// amounts are non-negative numbers, and the completeness status is recomputed.
// Normalizing the Fields() of its own output yields the same record.
func (n *Normalizer) Normalize(raw entity.RawFields) entity.InvoiceRecord {
	rec := entity.InvoiceRecord{
		SourceFileName:     textOrSentinel(raw[entity.FieldSourceFileName], entity.SentinelFileName),
		Date:               NormalizeDate(stringValue(raw[entity.FieldDate]), n.now()),
		InvoiceNumber:      textOrSentinel(raw[entity.FieldInvoiceNumber], entity.SentinelNotRecognized),
		SellerName:         textOrSentinel(raw[entity.FieldSellerName], entity.SentinelNotRecognized),
		SellerTaxID:        textOrSentinel(raw[entity.FieldSellerTaxID], entity.SentinelNotRecognized),
		Subtotal:           ParseAmount(raw[entity.FieldSubtotal]),
		Tax:                ParseAmount(raw[entity.FieldTax]),
		Total:              ParseAmount(raw[entity.FieldTotal]),
		InvoiceType:        textOrSentinel(raw[entity.FieldInvoiceType], entity.SentinelInvoiceType),
		CategorySuggestion: textOrSentinel(raw[entity.FieldCategory], entity.SentinelCategory),
	}
	rec.CompletenessStatus = ResolveStatus(&rec, stringValue(raw[entity.FieldStatus]))
	return rec
}

// ResolveStatus computes the completeness status of rec. The upstream claim is
// ignored unless it reports an error, in which case the record stays flagged.
func ResolveStatus(rec *entity.InvoiceRecord, upstream string) entity.CompletenessStatus {
	if signalsError(upstream) {
		return entity.StatusError
	}
	if IsNotRecognized(rec.Date) ||
		IsNotRecognized(rec.InvoiceNumber) ||
		IsNotRecognized(rec.SellerName) ||
		rec.Total == 0 {
		return entity.StatusIncomplete
	}
	return entity.StatusComplete
}

// IsNotRecognized reports whether v is empty, a sentinel or a "not available" marker
func IsNotRecognized(v string) bool {
	_, ok := notAvailable[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// NormalizeDate converts s to YYYY/MM/DD. Three-digit years and years marked
// 民國 are ROC calendar years and are shifted by 1911; other two-digit years
// are read as 20xx. Anything unparseable falls back to today.
func NormalizeDate(s string, today time.Time) string {
	s = strings.TrimSpace(s)

	m := separatedDate.FindStringSubmatch(s)
	if m == nil {
		m = compactDate.FindStringSubmatch(s)
	}
	if m != nil {
		rocMarked := m[1] != ""
		year, _ := strconv.Atoi(m[2])
		month, _ := strconv.Atoi(m[3])
		day, _ := strconv.Atoi(m[4])
		switch {
		case len(m[2]) == 3, rocMarked && len(m[2]) < 4:
			year += rocYearOffset
		case len(m[2]) == 2:
			year += 2000
		}
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Year() == year && int(t.Month()) == month && t.Day() == day {
			return t.Format(entity.DateLayout)
		}
	}

	return today.Format(entity.DateLayout)
}

// ParseAmount coerces a currency-like value to a non-negative float.
// Currency symbols, words and thousands separators are ignored. The text must
// hold exactly one number; none or several (as in "1,050 (tax 50)") yield 0.
func ParseAmount(v any) float64 {
	var d decimal.Decimal
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		d = decimal.NewFromFloat(t)
	case float32:
		d = decimal.NewFromFloat32(t)
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case json.Number:
		parsed, err := decimal.NewFromString(t.String())
		if err != nil {
			return 0
		}
		d = parsed
	case string:
		runs := amountRun.FindAllString(t, 2)
		if len(runs) != 1 {
			return 0
		}
		cleaned := strings.NewReplacer(",", "", "，", "").Replace(runs[0])
		parsed, err := decimal.NewFromString(cleaned)
		if err != nil {
			return 0
		}
		d = parsed
	default:
		return 0
	}

	if d.IsNegative() {
		return 0
	}
	f, _ := d.Round(2).Float64()
	return f
}

func textOrSentinel(v any, sentinel string) string {
	s := stringValue(v)
	if IsNotRecognized(s) {
		return sentinel
	}
	return s
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func signalsError(status string) bool {
	s := strings.ToLower(status)

	words := statusWord.FindAllString(s, -1)
	for i, w := range words {
		if _, ok := errorWords[w]; !ok {
			continue
		}
		if i > 0 {
			if _, negated := negationWords[words[i-1]]; negated {
				continue
			}
		}
		if i+1 < len(words) && words[i+1] == "free" {
			continue
		}
		return true
	}

	for _, marker := range errorMarkers {
		rest := s
		for {
			idx := strings.Index(rest, marker)
			if idx < 0 {
				break
			}
			if !hasNegationSuffix(rest[:idx]) {
				return true
			}
			rest = rest[idx+len(marker):]
		}
	}
	return false
}

func hasNegationSuffix(prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	for _, neg := range negations {
		if strings.HasSuffix(prefix, neg) {
			return true
		}
	}
	return false
}
