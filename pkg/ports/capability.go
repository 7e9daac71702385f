package ports

import (
	"context"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// DataGateway is the financial-data aggregator capability. Implementations
// map transport failures onto *domain.CapabilityError so the engine can
// decide on retries and transition functions can branch on failure kinds.
type DataGateway interface {
	FetchAccounts(ctx context.Context, auth domain.AuthContext) ([]domain.Account, error)
	FetchTransactions(ctx context.Context, auth domain.AuthContext, r domain.DateRange) ([]domain.RawTransaction, error)
}

// ModelOutput is the result of one language-model completion.
type ModelOutput struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// ModelClient is the language-model capability.
type ModelClient interface {
	Complete(ctx context.Context, req domain.ModelRequest) (ModelOutput, error)
}
