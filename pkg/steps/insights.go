package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

const insightsPromptFmt = `User asked: %q

Transactions analyzed: %d (%d rows dropped for missing fields)
Net total: %s
By category:
%s
By month:
%s
Recent transactions:
%s

Provide a brief, insightful analysis of this data. Focus on:
- a direct answer to the user's question
- key patterns or trends
- actionable insights if applicable

Keep it conversational and helpful.`

func insightsStep(opts Options) domain.StepDefinition {
	return domain.StepDefinition{
		Name:         Insights,
		Inputs:       []string{VarQuery, VarRowCount, VarTotal, VarBreakdown, VarTrend, VarPromptLines},
		Outputs:      []string{VarAnalysis},
		Capabilities: []domain.CapabilityKind{domain.CapabilityModel},
		Successors:   []string{FormatResponse, DegradedAnswer},
		Prepare: func(snap *domain.Snapshot) ([]domain.CapabilityRequest, error) {
			prompt := fmt.Sprintf(insightsPromptFmt,
				snap.String(VarQuery),
				varInt(snap, VarRowCount),
				varInt(snap, VarDroppedCount),
				snap.String(VarTotal),
				orNone(snap.String(VarBreakdown)),
				orNone(snap.String(VarTrend)),
				orNone(strings.Join(varStrings(snap, VarPromptLines), "\n")),
			)
			return []domain.CapabilityRequest{{
				Name:  "analysis",
				Kind:  domain.CapabilityModel,
				Model: &domain.ModelRequest{Prompt: prompt},
			}}, nil
		},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			res := calls["analysis"]
			if !res.OK() {
				return failureDelta(res.Failure), domain.Next(DegradedAnswer), nil
			}
			content, err := modelContent(res.Value)
			if err != nil {
				return domain.Delta{}, domain.Directive{}, err
			}
			delta := domain.Delta{Set: domain.Vars{VarAnalysis: strings.TrimSpace(content)}}
			return delta, domain.Next(FormatResponse), nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
