package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/normalize"
)

// spendingSummaryStep is a direct entry for surfaces that already know the
// query is a spending question, skipping classification.
func spendingSummaryStep() domain.StepDefinition {
	return domain.StepDefinition{
		Name:       SpendingSummary,
		Inputs:     []string{VarQuery},
		Outputs:    []string{VarQueryType},
		Successors: []string{AnalyzeSpending},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			delta := domain.Delta{Set: domain.Vars{VarQueryType: QueryTypeSummary}}
			return delta, domain.Next(AnalyzeSpending), nil
		},
	}
}

// analyzeSpendingStep fetches the transaction window from the gateway,
// normalizes it, and precomputes the aggregates the analysis prompt and the
// final answer need. Gateway failure routes to the degraded answer.
func analyzeSpendingStep(opts Options) domain.StepDefinition {
	return domain.StepDefinition{
		Name:         AnalyzeSpending,
		Inputs:       []string{VarQuery},
		Outputs:      []string{VarRowCount, VarDroppedCount, VarTotal, VarBreakdown, VarTrend, VarSampleLines, VarPromptLines},
		Capabilities: []domain.CapabilityKind{domain.CapabilityGateway},
		Successors:   []string{Insights, DegradedAnswer},
		Prepare: func(snap *domain.Snapshot) ([]domain.CapabilityRequest, error) {
			end := time.Now().UTC().Truncate(24 * time.Hour)
			return []domain.CapabilityRequest{{
				Name: "transactions",
				Kind: domain.CapabilityGateway,
				Gateway: &domain.GatewayRequest{
					Op:   domain.GatewayTransactions,
					Auth: authFrom(snap, opts),
					Range: domain.DateRange{
						Start: end.Add(-opts.lookback()),
						End:   end.Add(24 * time.Hour),
					},
				},
			}}, nil
		},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			res := calls["transactions"]
			if !res.OK() {
				return failureDelta(res.Failure), domain.Next(DegradedAnswer), nil
			}

			raw, err := normalize.Coerce(res.Value)
			if err != nil {
				return domain.Delta{}, domain.Directive{}, fmt.Errorf("step %s: %w", AnalyzeSpending, err)
			}

			var normOpts []normalize.Option
			if opts.InvertSign {
				normOpts = append(normOpts, normalize.WithInvertSign())
			}
			result := normalize.Normalize(raw, normOpts...)

			delta := domain.Delta{Set: domain.Vars{
				VarRowCount:     len(result.Records),
				VarDroppedCount: result.Dropped,
				VarTotal:        normalize.Total(result.Records).StringFixed(normalize.AmountPrecision),
				VarBreakdown:    normalize.FormatBreakdown(normalize.CategoryBreakdown(result.Records)),
				VarTrend:        normalize.FormatBreakdown(normalize.MonthlyTrend(result.Records)),
				VarSampleLines:  sampleLines(result.Records, opts.SampleRows),
				VarPromptLines:  sampleLines(result.Records, opts.PromptRows),
			}}
			return delta, domain.Next(Insights), nil
		},
	}
}

// authFrom prefers credentials carried on the session over graph defaults.
func authFrom(snap *domain.Snapshot, opts Options) domain.AuthContext {
	auth := domain.AuthContext{UserID: opts.UserID, AccessToken: opts.AccessToken}
	if v := snap.String("user_id"); v != "" {
		auth.UserID = v
	}
	if v := snap.String("access_token"); v != "" {
		auth.AccessToken = v
	}
	return auth
}

// sampleLines formats up to limit transactions the way the final answer
// echoes them.
func sampleLines(records []domain.TransactionRecord, limit int) []string {
	if len(records) > limit {
		records = records[:limit]
	}
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		verb := "received"
		if rec.Amount.IsNegative() {
			verb = "spent"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s - $%s %s",
			rec.Timestamp.Format("2006-01-02"),
			rec.Merchant,
			rec.Amount.Abs().StringFixed(normalize.AmountPrecision),
			verb,
		))
	}
	return lines
}
