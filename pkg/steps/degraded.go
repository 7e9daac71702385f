package steps

import (
	"context"
	"fmt"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// degradedAnswerStep produces an explicit incompleteness notice when a
// capability stayed down through its retries. It needs no capabilities of
// its own, so it can always run.
func degradedAnswerStep() domain.StepDefinition {
	return domain.StepDefinition{
		Name:       DegradedAnswer,
		Inputs:     []string{VarQuery, VarFailureReason},
		Outputs:    []string{VarAnalysis},
		Successors: []string{FormatResponse},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			reason := snap.String(VarFailureReason)
			if reason == "" {
				reason = "an external service did not respond"
			}
			analysis := fmt.Sprintf(
				"I couldn't fully answer that right now: %s. "+
					"This answer is incomplete; please try again in a moment.",
				reason,
			)
			delta := domain.Delta{Set: domain.Vars{
				VarAnalysis: analysis,
				VarDegraded: true,
			}}
			return delta, domain.Next(FormatResponse), nil
		},
	}
}
