package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

const classifyPrompt = `Classify this user query into one of these categories:
- "transaction": questions about specific transactions, spending, or financial data
- "summary": questions asking for aggregations, trends, or analysis
- "general": general conversation, greetings, or non-financial questions

User query: %q

Respond with just the category name.`

func classifyStep(opts Options) domain.StepDefinition {
	return domain.StepDefinition{
		Name:         Classify,
		Inputs:       []string{VarQuery},
		Outputs:      []string{VarQueryType},
		Capabilities: []domain.CapabilityKind{domain.CapabilityModel},
		Successors:   []string{AnalyzeSpending, GeneralChat, DegradedAnswer},
		Prepare: func(snap *domain.Snapshot) ([]domain.CapabilityRequest, error) {
			return []domain.CapabilityRequest{{
				Name: "classification",
				Kind: domain.CapabilityModel,
				Model: &domain.ModelRequest{
					Prompt: fmt.Sprintf(classifyPrompt, snap.String(VarQuery)),
				},
			}}, nil
		},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			res := calls["classification"]
			if !res.OK() {
				return failureDelta(res.Failure), domain.Next(DegradedAnswer), nil
			}

			content, err := modelContent(res.Value)
			if err != nil {
				return domain.Delta{}, domain.Directive{}, err
			}
			queryType := strings.ToLower(strings.TrimSpace(content))
			switch queryType {
			case QueryTypeTransaction, QueryTypeSummary, QueryTypeGeneral:
			default:
				queryType = QueryTypeGeneral
			}

			delta := domain.Delta{Set: domain.Vars{VarQueryType: queryType}}
			directive := domain.FanOut(domain.PolicyFirstSuccess,
				domain.Candidate{
					Step: AnalyzeSpending,
					Score: func(snap *domain.Snapshot) (bool, float64) {
						qt := snap.String(VarQueryType)
						return qt == QueryTypeTransaction || qt == QueryTypeSummary, 1
					},
				},
				domain.Candidate{Step: GeneralChat},
			)
			return delta, directive, nil
		},
	}
}
