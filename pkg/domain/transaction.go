package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuthContext carries the aggregator credentials scoped to one user's bank
// connection. The access token is opaque to the engine.
type AuthContext struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
}

// DateRange bounds a transaction query. Zero values mean unbounded.
type DateRange struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Account is a normalized bank account as returned by the data gateway.
type Account struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	Subtype          string          `json:"subtype,omitempty"`
	BalanceAvailable decimal.Decimal `json:"balance_available"`
	BalanceCurrent   decimal.Decimal `json:"balance_current"`
	Currency         string          `json:"currency"`
}

// RawTransaction is an aggregator payload row before normalization. Field
// names and value types vary per aggregator; the normalizer owns the
// mapping to the canonical schema.
type RawTransaction map[string]any

// TransactionRecord is the canonical post-normalization schema. Amounts are
// fixed-precision decimals (two fractional digits), negative for outflows,
// and always tagged with an ISO currency code.
type TransactionRecord struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Timestamp time.Time       `json:"timestamp"`
	Category  string          `json:"category"`
	Merchant  string          `json:"merchant"`
}
