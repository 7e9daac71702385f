// Package normalize converts raw aggregator payloads into the canonical
// tabular representation consumed by the reasoning graph.
//
// The canonical schema is strict: every record carries an account ID, a
// fixed-precision decimal amount (two fractional digits, negative for
// outflows), an ISO currency tag, a timestamp, a category, and a merchant
// name. Records missing a required field are dropped and counted, never
// silently coerced to zero or empty values.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// AmountPrecision is the fixed number of fractional digits in canonical
// amounts.
const AmountPrecision = 2

// DefaultCurrency tags records whose payload carries no currency code.
const DefaultCurrency = "USD"

// Result is the outcome of normalizing one payload. Dropped counts the
// records rejected for schema violations; Problems retains one SchemaError
// per rejected record so steps can flag incompleteness.
type Result struct {
	Records  []domain.TransactionRecord
	Dropped  int
	Problems []*domain.SchemaError
}

// Complete reports whether every input record survived normalization.
func (r Result) Complete() bool { return r.Dropped == 0 }

// Option configures normalization.
type Option func(*normalizer)

// WithInvertSign flips amount signs. Plaid-style aggregators report
// positive amounts for outflows; the canonical convention is negative.
func WithInvertSign() Option {
	return func(n *normalizer) { n.invertSign = true }
}

type normalizer struct {
	invertSign bool
}

// Field aliases across aggregator dialects. First match wins.
var (
	amountKeys   = []string{"amount", "transaction_amount"}
	dateKeys     = []string{"date", "datetime", "timestamp"}
	merchantKeys = []string{"merchant_name", "name", "description"}
	accountKeys  = []string{"account_id", "accountId"}
	currencyKeys = []string{"iso_currency_code", "currency", "unofficial_currency_code"}
)

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"}

// Normalize maps raw aggregator rows onto the canonical schema. It is a
// pure function of its input; the only failure mode for individual records
// is dropping them, reported in the Result.
func Normalize(raw []domain.RawTransaction, opts ...Option) Result {
	n := &normalizer{}
	for _, opt := range opts {
		opt(n)
	}

	res := Result{Records: make([]domain.TransactionRecord, 0, len(raw))}
	for i, row := range raw {
		rec, serr := n.record(i, row)
		if serr != nil {
			res.Dropped++
			res.Problems = append(res.Problems, serr)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

// Coerce converts a step-produced or cache-roundtripped value back into raw
// rows. Cached gateway results arrive as []any of map[string]any after a
// JSON roundtrip. Fails with a payload-level SchemaError for any other shape.
func Coerce(v any) ([]domain.RawTransaction, error) {
	switch rows := v.(type) {
	case []domain.RawTransaction:
		return rows, nil
	case []map[string]any:
		out := make([]domain.RawTransaction, len(rows))
		for i, m := range rows {
			out[i] = domain.RawTransaction(m)
		}
		return out, nil
	case []any:
		out := make([]domain.RawTransaction, 0, len(rows))
		for i, e := range rows {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, &domain.SchemaError{Field: "payload", Index: i, Reason: fmt.Sprintf("expected object, got %T", e)}
			}
			out = append(out, domain.RawTransaction(m))
		}
		return out, nil
	default:
		return nil, &domain.SchemaError{Field: "payload", Index: -1, Reason: fmt.Sprintf("expected list of records, got %T", v)}
	}
}

func (n *normalizer) record(idx int, row domain.RawTransaction) (domain.TransactionRecord, *domain.SchemaError) {
	var rec domain.TransactionRecord

	accountID, ok := firstString(row, accountKeys)
	if !ok {
		return rec, &domain.SchemaError{Field: "account_id", Index: idx, Reason: "required field absent"}
	}

	rawAmount, ok := first(row, amountKeys)
	if !ok {
		return rec, &domain.SchemaError{Field: "amount", Index: idx, Reason: "required field absent"}
	}
	amount, err := parseAmount(rawAmount)
	if err != nil {
		return rec, &domain.SchemaError{Field: "amount", Index: idx, Reason: err.Error()}
	}
	if n.invertSign {
		amount = amount.Neg()
	}

	rawDate, ok := firstString(row, dateKeys)
	if !ok {
		return rec, &domain.SchemaError{Field: "date", Index: idx, Reason: "required field absent"}
	}
	ts, err := parseDate(rawDate)
	if err != nil {
		return rec, &domain.SchemaError{Field: "date", Index: idx, Reason: err.Error()}
	}

	merchant, ok := firstString(row, merchantKeys)
	if !ok || merchant == "" {
		return rec, &domain.SchemaError{Field: "merchant", Index: idx, Reason: "required field absent"}
	}

	currency, ok := firstString(row, currencyKeys)
	if !ok || currency == "" {
		currency = DefaultCurrency
	}

	rec = domain.TransactionRecord{
		AccountID: accountID,
		Amount:    amount.Round(AmountPrecision),
		Currency:  strings.ToUpper(currency),
		Timestamp: ts,
		Category:  category(row),
		Merchant:  merchant,
	}
	return rec, nil
}

func parseAmount(v any) (decimal.Decimal, error) {
	switch a := v.(type) {
	case float64:
		return decimal.NewFromFloat(a), nil
	case int:
		return decimal.NewFromInt(int64(a)), nil
	case int64:
		return decimal.NewFromInt(a), nil
	case json.Number:
		return decimal.NewFromString(a.String())
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(a))
		if err != nil {
			return decimal.Zero, fmt.Errorf("unparseable amount %q", a)
		}
		return d, nil
	case decimal.Decimal:
		return a, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported amount type %T", v)
	}
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// category resolves the primary category. Plaid reports a JSON array of
// category strings; other dialects a plain string or a nested
// personal_finance_category object.
func category(row domain.RawTransaction) string {
	switch c := row["category"].(type) {
	case string:
		if c != "" {
			return c
		}
	case []string:
		if len(c) > 0 {
			return c[0]
		}
	case []any:
		if len(c) > 0 {
			if s, ok := c[0].(string); ok && s != "" {
				return s
			}
		}
	}
	if pfc, ok := row["personal_finance_category"].(map[string]any); ok {
		if p, ok := pfc["primary"].(string); ok && p != "" {
			return p
		}
	}
	return "Uncategorized"
}

func first(row domain.RawTransaction, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func firstString(row domain.RawTransaction, keys []string) (string, bool) {
	v, ok := first(row, keys)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
