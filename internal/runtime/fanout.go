package runtime

import (
	"fmt"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// selectBranch resolves a fan-out directive against the post-step snapshot.
// Candidates are evaluated in declared priority order; a nil Score means
// unconditionally viable.
func selectBranch(d domain.Directive, snap *domain.Snapshot) (string, error) {
	if len(d.Candidates) == 0 {
		return "", fmt.Errorf("%w: fan-out with no candidates", domain.ErrNoViableBranch)
	}

	switch d.Policy {
	case domain.PolicyFirstSuccess, "":
		for _, c := range d.Candidates {
			if c.Score == nil {
				return c.Step, nil
			}
			if viable, _ := c.Score(snap); viable {
				return c.Step, nil
			}
		}
	case domain.PolicyHighestConfidence:
		best := ""
		bestScore := -1.0
		for _, c := range d.Candidates {
			viable, confidence := true, 0.0
			if c.Score != nil {
				viable, confidence = c.Score(snap)
			}
			// Strict comparison keeps declared order as the tie-breaker.
			if viable && confidence > bestScore {
				best, bestScore = c.Step, confidence
			}
		}
		if best != "" {
			return best, nil
		}
	default:
		return "", fmt.Errorf("unknown selection policy %q", d.Policy)
	}

	return "", fmt.Errorf("%w: no candidate satisfied policy %q", domain.ErrNoViableBranch, d.Policy)
}
