package normalize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// CategoryBreakdown sums amounts per category.
func CategoryBreakdown(records []domain.TransactionRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		out[r.Category] = out[r.Category].Add(r.Amount)
	}
	return out
}

// MonthlyTrend sums amounts per calendar month, keyed "2006-01".
func MonthlyTrend(records []domain.TransactionRecord) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, r := range records {
		key := r.Timestamp.Format("2006-01")
		out[key] = out[key].Add(r.Amount)
	}
	return out
}

// Total sums all amounts.
func Total(records []domain.TransactionRecord) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		sum = sum.Add(r.Amount)
	}
	return sum
}

// TotalFor sums amounts for a single category, matched case-insensitively.
func TotalFor(records []domain.TransactionRecord, category string) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range records {
		if strings.EqualFold(r.Category, category) {
			sum = sum.Add(r.Amount)
		}
	}
	return sum
}

// FormatBreakdown renders a breakdown map as deterministic "key: amount"
// lines sorted by key, suitable for prompts and answers.
func FormatBreakdown(breakdown map[string]decimal.Decimal) string {
	keys := make([]string, 0, len(breakdown))
	for k := range breakdown {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, breakdown[k].StringFixed(AmountPrecision))
	}
	return strings.TrimRight(b.String(), "\n")
}
