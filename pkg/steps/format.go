package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// formatResponseStep is the single terminal step. It composes the final
// answer from the analysis and, for small result sets, echoes the
// transactions themselves, then records the assistant message.
func formatResponseStep(opts Options) domain.StepDefinition {
	return domain.StepDefinition{
		Name:    FormatResponse,
		Inputs:  []string{VarAnalysis, VarRowCount, VarSampleLines},
		Outputs: []string{VarAnswer},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			var b strings.Builder
			b.WriteString(snap.String(VarAnalysis))

			rows := varInt(snap, VarRowCount)
			sample := varStrings(snap, VarSampleLines)
			if !varBool(snap, VarDegraded) && rows > 0 {
				if rows <= opts.SampleRows && len(sample) > 0 {
					b.WriteString("\n\nHere's the data I found:\n")
					b.WriteString(strings.Join(sample, "\n"))
				} else {
					fmt.Fprintf(&b, "\n\n(Showing analysis of %d transactions)", rows)
				}
				if dropped := varInt(snap, VarDroppedCount); dropped > 0 {
					fmt.Fprintf(&b, "\n(%d records were missing required fields and were excluded)", dropped)
				}
			}

			answer := strings.TrimSpace(b.String())
			delta := domain.Delta{
				Set:      domain.Vars{VarAnswer: answer},
				Messages: []domain.Message{{Role: domain.RoleAssistant, Content: answer}},
			}
			return delta, domain.Terminal(), nil
		},
	}
}
