package steps

import (
	"fmt"

	"github.com/pennywise-ai/pennywise/internal/runtime"
	"github.com/pennywise-ai/pennywise/pkg/registry"
)

// Step names of the built-in graph. Classify is the general chat entry;
// SpendingSummary and BalanceInquiry are direct entries for task-specific
// surfaces.
const (
	Classify        = "classify"
	SpendingSummary = "spending-summary"
	BalanceInquiry  = "balance-inquiry"
	AnalyzeSpending = "analyze-spending"
	Insights        = "insights"
	GeneralChat     = "general-chat"
	DegradedAnswer  = "degraded-answer"
	FormatResponse  = "format-response"
)

// Snapshot variables the graph reads and writes. VarQuery and VarAnswer
// are owned by the engine; the rest are internal to the graph.
const (
	VarQuery         = runtime.QueryVar
	VarAnswer        = runtime.AnswerVar
	VarQueryType     = "query_type"
	VarAnalysis      = "analysis"
	VarDegraded      = "degraded"
	VarFailureReason = "failure_reason"
	VarRowCount      = "row_count"
	VarDroppedCount  = "dropped_count"
	VarTotal         = "total"
	VarBreakdown     = "category_breakdown"
	VarTrend         = "monthly_trend"
	VarSampleLines   = "sample_lines"
	VarPromptLines   = "prompt_lines"
)

// Query classifications produced by the classify step.
const (
	QueryTypeTransaction = "transaction"
	QueryTypeSummary     = "summary"
	QueryTypeGeneral     = "general"
)

// Register installs the built-in graph into the registry. The registry is
// left unfrozen so callers can add their own steps before freezing.
func Register(reg *registry.Registry, opts Options) error {
	opts = opts.withDefaults()

	defs := []struct {
		name string
		fn   func(Options) error
	}{
		{Classify, func(o Options) error { return reg.Register(classifyStep(o)) }},
		{SpendingSummary, func(o Options) error { return reg.Register(spendingSummaryStep()) }},
		{BalanceInquiry, func(o Options) error { return reg.Register(balanceInquiryStep(o)) }},
		{AnalyzeSpending, func(o Options) error { return reg.Register(analyzeSpendingStep(o)) }},
		{Insights, func(o Options) error { return reg.Register(insightsStep(o)) }},
		{GeneralChat, func(o Options) error { return reg.Register(generalChatStep()) }},
		{DegradedAnswer, func(o Options) error { return reg.Register(degradedAnswerStep()) }},
		{FormatResponse, func(o Options) error { return reg.Register(formatResponseStep(o)) }},
	}
	for _, d := range defs {
		if err := d.fn(opts); err != nil {
			return fmt.Errorf("registering %s: %w", d.name, err)
		}
	}
	return nil
}

// MustRegister is Register for boot paths where a failure is programmer error.
func MustRegister(reg *registry.Registry, opts Options) {
	if err := Register(reg, opts); err != nil {
		panic(err)
	}
}
