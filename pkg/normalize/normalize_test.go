package normalize_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/normalize"
)

func row(overrides map[string]any) domain.RawTransaction {
	r := domain.RawTransaction{
		"account_id": "acc-1",
		"amount":     -12.34,
		"date":       "2026-08-15",
		"name":       "Blue Bottle",
		"category":   "Coffee",
	}
	for k, v := range overrides {
		if v == nil {
			delete(r, k)
			continue
		}
		r[k] = v
	}
	return r
}

func TestNormalize_CanonicalRecord(t *testing.T) {
	res := normalize.Normalize([]domain.RawTransaction{row(nil)})
	require.True(t, res.Complete())
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "acc-1", rec.AccountID)
	assert.Equal(t, "-12.34", rec.Amount.StringFixed(2))
	assert.Equal(t, "USD", rec.Currency)
	assert.Equal(t, "2026-08-15", rec.Timestamp.Format("2006-01-02"))
	assert.Equal(t, "Coffee", rec.Category)
	assert.Equal(t, "Blue Bottle", rec.Merchant)
}

func TestNormalize_AmountDialects(t *testing.T) {
	cases := map[string]struct {
		amount any
		want   string
	}{
		"float":          {-3.999, "-4.00"},
		"integer":        {-7, "-7.00"},
		"string":         {"-42.10", "-42.10"},
		"padded string":  {" -5.25 ", "-5.25"},
		"decimal":       {decimal.RequireFromString("-1.5"), "-1.50"},
		"rounded":       {-2.345, "-2.35"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := normalize.Normalize([]domain.RawTransaction{row(map[string]any{"amount": tc.amount})})
			require.Len(t, res.Records, 1)
			assert.Equal(t, tc.want, res.Records[0].Amount.StringFixed(2))
		})
	}
}

func TestNormalize_DropsIncompleteRecords(t *testing.T) {
	rows := []domain.RawTransaction{
		row(nil),
		row(map[string]any{"amount": nil}),
		row(map[string]any{"date": nil}),
		row(map[string]any{"name": nil, "merchant_name": nil, "description": nil}),
		row(map[string]any{"amount": "not-a-number"}),
	}

	res := normalize.Normalize(rows)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 4, res.Dropped)
	assert.False(t, res.Complete())
	require.Len(t, res.Problems, 4)

	// Problems identify the offending record and field; nothing is
	// zero-coerced.
	assert.Equal(t, "amount", res.Problems[0].Field)
	assert.Equal(t, 1, res.Problems[0].Index)
	assert.Equal(t, "date", res.Problems[1].Field)
	assert.Equal(t, "merchant", res.Problems[2].Field)
	assert.Equal(t, "amount", res.Problems[3].Field)
}

func TestNormalize_InvertSign(t *testing.T) {
	// Plaid convention: positive amounts are outflows.
	res := normalize.Normalize(
		[]domain.RawTransaction{row(map[string]any{"amount": 25.00})},
		normalize.WithInvertSign(),
	)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "-25.00", res.Records[0].Amount.StringFixed(2))
}

func TestNormalize_FieldAliases(t *testing.T) {
	r := domain.RawTransaction{
		"accountId":         "acc-2",
		"transaction_amount": "-9.99",
		"datetime":          "2026-08-15T10:30:00Z",
		"merchant_name":     "Shell",
		"iso_currency_code": "eur",
	}
	res := normalize.Normalize([]domain.RawTransaction{r})
	require.Len(t, res.Records, 1)

	rec := res.Records[0]
	assert.Equal(t, "acc-2", rec.AccountID)
	assert.Equal(t, "EUR", rec.Currency)
	assert.Equal(t, "Shell", rec.Merchant)
	assert.Equal(t, 10, rec.Timestamp.Hour())
}

func TestNormalize_CategoryShapes(t *testing.T) {
	cases := map[string]struct {
		category any
		extra    map[string]any
		want     string
	}{
		"plain string": {"Groceries", nil, "Groceries"},
		"string array": {[]string{"Food and Drink", "Coffee"}, nil, "Food and Drink"},
		"json array":   {[]any{"Travel", "Air"}, nil, "Travel"},
		"absent":       {nil, nil, "Uncategorized"},
		"pfc object": {nil,
			map[string]any{"personal_finance_category": map[string]any{"primary": "FOOD_AND_DRINK"}},
			"FOOD_AND_DRINK"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			overrides := map[string]any{"category": tc.category}
			for k, v := range tc.extra {
				overrides[k] = v
			}
			res := normalize.Normalize([]domain.RawTransaction{row(overrides)})
			require.Len(t, res.Records, 1)
			assert.Equal(t, tc.want, res.Records[0].Category)
		})
	}
}

func TestCoerce_Shapes(t *testing.T) {
	native := []domain.RawTransaction{row(nil)}
	got, err := normalize.Coerce(native)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Cache roundtrip shape.
	roundtripped := []any{map[string]any{"account_id": "a"}}
	got, err = normalize.Coerce(roundtripped)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = normalize.Coerce("not a list")
	var serr *domain.SchemaError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, -1, serr.Index)

	_, err = normalize.Coerce([]any{"not an object"})
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 0, serr.Index)
}
