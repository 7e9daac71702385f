// Package staticdata is a fixture data gateway backed by a CSV file. It
// stands in for a real aggregator in development, demos, and tests, the way
// a seed script would populate a database.
package staticdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// DefaultAccountID tags fixture rows that carry no account column.
const DefaultAccountID = "fixture-account"

// csv date layouts seen in bank exports.
var dateLayouts = []string{"2006-01-02", "01/02/2006", "01/02/06"}

// Gateway implements ports.DataGateway over an in-memory fixture set.
type Gateway struct {
	rows     []domain.RawTransaction
	accounts []domain.Account
}

// New creates a gateway serving the given rows.
func New(rows []domain.RawTransaction) *Gateway {
	g := &Gateway{rows: rows}
	g.accounts = []domain.Account{{
		ID:             DefaultAccountID,
		Name:           "Demo Checking",
		Type:           "depository",
		Subtype:        "checking",
		BalanceCurrent: balanceOf(rows),
		Currency:       "USD",
	}}
	return g
}

// Load reads fixture transactions from a CSV export. Expected header:
// Date, Description, Amount, Category (extra columns are ignored; a
// missing Category yields uncategorized rows).
func Load(path string) (*Gateway, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads fixture transactions from CSV data.
func Parse(r io.Reader) (*Gateway, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read fixture header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "amount"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("fixture missing %q column", required)
		}
	}

	var rows []domain.RawTransaction
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read fixture line %d: %w", line, err)
		}

		row := domain.RawTransaction{
			"account_id": DefaultAccountID,
			"date":       isoDate(field(record, col, "date")),
			"amount":     field(record, col, "amount"),
		}
		if name := field(record, col, "description"); name != "" {
			row["name"] = name
		}
		if cat := field(record, col, "category"); cat != "" {
			row["category"] = cat
		}
		rows = append(rows, row)
	}
	return New(rows), nil
}

// FetchAccounts returns the single demo account.
func (g *Gateway) FetchAccounts(ctx context.Context, auth domain.AuthContext) ([]domain.Account, error) {
	return append([]domain.Account(nil), g.accounts...), nil
}

// FetchTransactions filters the fixture rows to the requested range.
func (g *Gateway) FetchTransactions(ctx context.Context, auth domain.AuthContext, r domain.DateRange) ([]domain.RawTransaction, error) {
	out := make([]domain.RawTransaction, 0, len(g.rows))
	for _, row := range g.rows {
		ts, err := parseDate(row["date"])
		if err != nil {
			continue
		}
		if r.Contains(ts) {
			out = append(out, row)
		}
	}
	return out, nil
}

func field(record []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func isoDate(s string) string {
	t, err := parseDate(s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02")
}

func parseDate(v any) (time.Time, error) {
	s, _ := v.(string)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable fixture date %q", s)
}

func balanceOf(rows []domain.RawTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, row := range rows {
		s, _ := row["amount"].(string)
		if d, err := decimal.NewFromString(s); err == nil {
			sum = sum.Add(d)
		}
	}
	return sum.Round(2)
}
