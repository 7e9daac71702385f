package steps_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-ai/pennywise/pkg/domain"
	"github.com/pennywise-ai/pennywise/pkg/ports"
	"github.com/pennywise-ai/pennywise/pkg/registry"
	"github.com/pennywise-ai/pennywise/pkg/steps"
)

func builtinRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	steps.MustRegister(reg, steps.Options{UserID: "demo"})
	return reg
}

func snapshotWith(vars domain.Vars) *domain.Snapshot {
	snap := domain.NewSnapshot("session-test")
	for k, v := range vars {
		snap.Vars[k] = v
	}
	return snap
}

func modelResult(content string) domain.CallResult {
	return domain.CallResult{Value: ports.ModelOutput{Content: content}}
}

func TestRegister_GraphIsClosed(t *testing.T) {
	reg := builtinRegistry(t)
	require.NoError(t, reg.Validate())

	for _, name := range []string{
		steps.Classify, steps.SpendingSummary, steps.BalanceInquiry,
		steps.AnalyzeSpending, steps.Insights, steps.GeneralChat,
		steps.DegradedAnswer, steps.FormatResponse,
	} {
		_, err := reg.Resolve(name)
		assert.NoError(t, err, name)
	}
}

func TestClassify_RoutesSpendingQueries(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.Classify)
	require.NoError(t, err)

	snap := snapshotWith(domain.Vars{steps.VarQuery: "how much did I spend on coffee?"})

	reqs, err := def.Prepare(snap)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.CapabilityModel, reqs[0].Kind)
	assert.Contains(t, reqs[0].Model.Prompt, "how much did I spend on coffee?")

	delta, directive, err := def.Run(context.Background(), snap,
		domain.CallResults{"classification": modelResult("Transaction\n")})
	require.NoError(t, err)
	assert.Equal(t, steps.QueryTypeTransaction, delta.Set[steps.VarQueryType])
	require.Equal(t, domain.DirectiveFanOut, directive.Kind)

	// The post-step snapshot carries the classification the candidates score on.
	post := snap.Next("", delta)
	viable, _ := directive.Candidates[0].Score(post)
	assert.True(t, viable)
	assert.Equal(t, steps.AnalyzeSpending, directive.Candidates[0].Step)
}

func TestClassify_UnknownLabelFallsBackToGeneral(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.Classify)
	require.NoError(t, err)

	snap := snapshotWith(domain.Vars{steps.VarQuery: "hello"})
	delta, directive, err := def.Run(context.Background(), snap,
		domain.CallResults{"classification": modelResult("banana")})
	require.NoError(t, err)
	assert.Equal(t, steps.QueryTypeGeneral, delta.Set[steps.VarQueryType])

	post := snap.Next("", delta)
	viable, _ := directive.Candidates[0].Score(post)
	assert.False(t, viable)
}

func TestClassify_ModelFailureDegrades(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.Classify)
	require.NoError(t, err)

	failure := domain.NewCapabilityError(domain.FailureUpstreamUnavailable, assert.AnError)
	delta, directive, err := def.Run(context.Background(),
		snapshotWith(domain.Vars{steps.VarQuery: "hi"}),
		domain.CallResults{"classification": {Failure: failure}})
	require.NoError(t, err)
	assert.Equal(t, domain.Next(steps.DegradedAnswer), directive)
	assert.Equal(t, true, delta.Set[steps.VarDegraded])
	assert.NotEmpty(t, delta.Set[steps.VarFailureReason])
}

func TestAnalyzeSpending_NormalizesAndAggregates(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.AnalyzeSpending)
	require.NoError(t, err)

	raw := []any{
		map[string]any{
			"account_id": "a1", "amount": -42.00, "date": "2026-08-02",
			"name": "Trader Joe's", "category": "Groceries",
		},
		map[string]any{
			"account_id": "a1", "amount": -12.50, "date": "2026-08-10",
			"name": "Blue Bottle", "category": "Coffee",
		},
		map[string]any{
			// No amount: dropped, never zero-coerced.
			"account_id": "a1", "date": "2026-08-11", "name": "Mystery",
		},
	}

	snap := snapshotWith(domain.Vars{steps.VarQuery: "where did my money go?"})
	delta, directive, err := def.Run(context.Background(), snap,
		domain.CallResults{"transactions": {Value: raw}})
	require.NoError(t, err)
	assert.Equal(t, domain.Next(steps.Insights), directive)

	assert.Equal(t, 2, delta.Set[steps.VarRowCount])
	assert.Equal(t, 1, delta.Set[steps.VarDroppedCount])
	assert.Equal(t, "-54.50", delta.Set[steps.VarTotal])
	assert.Contains(t, delta.Set[steps.VarBreakdown], "Groceries: -42.00")
	assert.Contains(t, delta.Set[steps.VarBreakdown], "Coffee: -12.50")

	lines, ok := delta.Set[steps.VarSampleLines].([]string)
	require.True(t, ok)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Trader Joe's")
	assert.Contains(t, lines[0], "$42.00 spent")
}

func TestAnalyzeSpending_PrepareBoundsDateRange(t *testing.T) {
	reg := registry.New()
	steps.MustRegister(reg, steps.Options{UserID: "demo", LookbackDays: 7})
	def, err := reg.Resolve(steps.AnalyzeSpending)
	require.NoError(t, err)

	reqs, err := def.Prepare(snapshotWith(domain.Vars{steps.VarQuery: "spending"}))
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	r := reqs[0].Gateway.Range
	assert.Equal(t, "demo", reqs[0].Gateway.Auth.UserID)
	assert.InDelta(t, 8*24*time.Hour, r.End.Sub(r.Start), float64(time.Hour))
}

func TestInsights_WritesAnalysis(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.Insights)
	require.NoError(t, err)

	snap := snapshotWith(domain.Vars{
		steps.VarQuery:     "where did my money go?",
		steps.VarRowCount:  2,
		steps.VarTotal:     "-54.50",
		steps.VarBreakdown: "Coffee: -12.50\nGroceries: -42.00",
	})

	reqs, err := def.Prepare(snap)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Model.Prompt, "-54.50")
	assert.Contains(t, reqs[0].Model.Prompt, "Groceries: -42.00")

	delta, directive, err := def.Run(context.Background(), snap,
		domain.CallResults{"analysis": modelResult("Most of it went to groceries.")})
	require.NoError(t, err)
	assert.Equal(t, domain.Next(steps.FormatResponse), directive)
	assert.Equal(t, "Most of it went to groceries.", delta.Set[steps.VarAnalysis])
}

func TestInsights_PromptRowsCapsTransactionLines(t *testing.T) {
	reg := registry.New()
	steps.MustRegister(reg, steps.Options{UserID: "demo", PromptRows: 1})

	analyze, err := reg.Resolve(steps.AnalyzeSpending)
	require.NoError(t, err)

	raw := []any{
		map[string]any{
			"account_id": "a1", "amount": -42.00, "date": "2026-08-02",
			"name": "Trader Joe's", "category": "Groceries",
		},
		map[string]any{
			"account_id": "a1", "amount": -12.50, "date": "2026-08-10",
			"name": "Blue Bottle", "category": "Coffee",
		},
	}

	snap := snapshotWith(domain.Vars{steps.VarQuery: "where did my money go?"})
	delta, _, err := analyze.Run(context.Background(), snap,
		domain.CallResults{"transactions": {Value: raw}})
	require.NoError(t, err)

	promptLines, ok := delta.Set[steps.VarPromptLines].([]string)
	require.True(t, ok)
	require.Len(t, promptLines, 1)
	// The answer's sample listing keeps its own, separate cap.
	assert.Len(t, delta.Set[steps.VarSampleLines], 2)

	insights, err := reg.Resolve(steps.Insights)
	require.NoError(t, err)
	reqs, err := insights.Prepare(snap.Next("", delta))
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Model.Prompt, "Trader Joe's")
	assert.NotContains(t, reqs[0].Model.Prompt, "Blue Bottle")
}

func TestGeneralChat_ContextExcludesCurrentQuery(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.GeneralChat)
	require.NoError(t, err)

	snap := snapshotWith(domain.Vars{steps.VarQuery: "any savings tips?"})
	snap.Messages = []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello! how can I help?"},
		{Role: domain.RoleUser, Content: "any savings tips?"},
	}

	reqs, err := def.Prepare(snap)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	// The prompt carries the query; the context stops before the message the
	// engine seeded for this turn so the model never sees it twice.
	assert.Equal(t, "any savings tips?", reqs[0].Model.Prompt)
	require.Len(t, reqs[0].Model.Context, 2)
	assert.Equal(t, "hello! how can I help?", reqs[0].Model.Context[1].Content)
}

func TestFormatResponse_EchoesSmallSamples(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.FormatResponse)
	require.NoError(t, err)

	snap := snapshotWith(domain.Vars{
		steps.VarAnalysis:    "Most of it went to groceries.",
		steps.VarRowCount:    2,
		steps.VarSampleLines: []string{"- 2026-08-02: Trader Joe's - $42.00 spent"},
	})

	delta, directive, err := def.Run(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Terminal(), directive)

	answer, _ := delta.Set[steps.VarAnswer].(string)
	assert.Contains(t, answer, "Most of it went to groceries.")
	assert.Contains(t, answer, "Trader Joe's")
	require.Len(t, delta.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, delta.Messages[0].Role)
}

func TestFormatResponse_LargeResultSetsSummarized(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.FormatResponse)
	require.NoError(t, err)

	snap := snapshotWith(domain.Vars{
		steps.VarAnalysis: "You spent a lot.",
		steps.VarRowCount: 120,
	})

	delta, _, err := def.Run(context.Background(), snap, nil)
	require.NoError(t, err)
	answer, _ := delta.Set[steps.VarAnswer].(string)
	assert.Contains(t, answer, "120 transactions")
}

func TestDegradedAnswer_NamesMissingData(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.DegradedAnswer)
	require.NoError(t, err)

	snap := snapshotWith(domain.Vars{
		steps.VarFailureReason: "the data provider is currently unavailable",
	})
	delta, directive, err := def.Run(context.Background(), snap, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Next(steps.FormatResponse), directive)

	analysis, _ := delta.Set[steps.VarAnalysis].(string)
	assert.Contains(t, analysis, "currently unavailable")
	assert.Contains(t, analysis, "incomplete")
}

func TestBalanceInquiry_FormatsBalances(t *testing.T) {
	reg := builtinRegistry(t)
	def, err := reg.Resolve(steps.BalanceInquiry)
	require.NoError(t, err)

	accounts := []map[string]any{
		{"id": "a1", "name": "Checking", "type": "depository", "balance_current": "1204.55", "currency": "USD"},
	}
	delta, directive, err := def.Run(context.Background(),
		snapshotWith(domain.Vars{steps.VarQuery: "what's my balance?"}),
		domain.CallResults{"accounts": {Value: accounts}})
	require.NoError(t, err)
	assert.Equal(t, domain.Next(steps.FormatResponse), directive)

	analysis, _ := delta.Set[steps.VarAnalysis].(string)
	assert.Contains(t, analysis, "Checking")
	assert.Contains(t, analysis, "1204.55 USD")
}
