package steps

import (
	"context"
	"strings"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

const chatSystemPrompt = `You are PennyWise, a friendly financial assistant.
While the user isn't asking about specific transactions right now, you can
still provide general financial advice and maintain a helpful conversation.
Keep responses concise and friendly.`

// priorMessages returns the conversation before this turn's user message.
// The engine appends that message to the snapshot when the turn starts and
// the prompt already carries its text, so passing it again as context would
// show the model the same query twice.
func priorMessages(snap *domain.Snapshot) []domain.Message {
	msgs := snap.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Role == domain.RoleUser && msgs[n-1].Content == snap.String(VarQuery) {
		return msgs[:n-1]
	}
	return msgs
}

func generalChatStep() domain.StepDefinition {
	return domain.StepDefinition{
		Name:         GeneralChat,
		Inputs:       []string{VarQuery},
		Outputs:      []string{VarAnalysis},
		Capabilities: []domain.CapabilityKind{domain.CapabilityModel},
		Successors:   []string{FormatResponse, DegradedAnswer},
		Prepare: func(snap *domain.Snapshot) ([]domain.CapabilityRequest, error) {
			return []domain.CapabilityRequest{{
				Name: "reply",
				Kind: domain.CapabilityModel,
				Model: &domain.ModelRequest{
					System:  chatSystemPrompt,
					Prompt:  snap.String(VarQuery),
					Context: priorMessages(snap),
				},
			}}, nil
		},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			res := calls["reply"]
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
