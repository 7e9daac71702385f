package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// balanceInquiryStep is a direct entry that answers from account balances
// alone, without the model in the loop.
func balanceInquiryStep(opts Options) domain.StepDefinition {
	return domain.StepDefinition{
		Name:         BalanceInquiry,
		Inputs:       []string{VarQuery},
		Outputs:      []string{VarAnalysis},
		Capabilities: []domain.CapabilityKind{domain.CapabilityGateway},
		Successors:   []string{FormatResponse, DegradedAnswer},
		Prepare: func(snap *domain.Snapshot) ([]domain.CapabilityRequest, error) {
			return []domain.CapabilityRequest{{
				Name: "accounts",
				Kind: domain.CapabilityGateway,
				Gateway: &domain.GatewayRequest{
					Op:   domain.GatewayAccounts,
					Auth: authFrom(snap, opts),
				},
			}}, nil
		},
		Run: func(ctx context.Context, snap *domain.Snapshot, calls domain.CallResults) (domain.Delta, domain.Directive, error) {
			res := calls["accounts"]
			if !res.OK() {
				return failureDelta(res.Failure), domain.Next(DegradedAnswer), nil
			}

			var accounts []domain.Account
			if err := decodeValue(res.Value, &accounts); err != nil {
				return domain.Delta{}, domain.Directive{}, err
			}

			var b strings.Builder
			if len(accounts) == 0 {
				b.WriteString("I couldn't find any linked accounts.")
			} else {
				b.WriteString("Here are your current balances:\n")
				for _, acct := range accounts {
					fmt.Fprintf(&b, "- %s (%s): %s %s\n",
						acct.Name, acct.Type, acct.BalanceCurrent.StringFixed(2), acct.Currency)
				}
			}

			delta := domain.Delta{Set: domain.Vars{VarAnalysis: strings.TrimRight(b.String(), "\n")}}
			return delta, domain.Next(FormatResponse), nil
		},
	}
}
