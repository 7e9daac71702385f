package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

func scored(step string, viable bool, confidence float64) domain.Candidate {
	return domain.Candidate{
		Step: step,
		Score: func(*domain.Snapshot) (bool, float64) {
			return viable, confidence
		},
	}
}

func TestSelectBranch_FirstSuccessShortCircuits(t *testing.T) {
	snap := domain.NewSnapshot("s")
	d := domain.FanOut(domain.PolicyFirstSuccess,
		scored("a", false, 0.9),
		scored("b", true, 0.1),
		scored("c", true, 0.8),
	)

	step, err := selectBranch(d, snap)
	require.NoError(t, err)
	assert.Equal(t, "b", step)
}

func TestSelectBranch_NilScoreIsAlwaysViable(t *testing.T) {
	snap := domain.NewSnapshot("s")
	d := domain.FanOut(domain.PolicyFirstSuccess,
		scored("a", false, 0),
		domain.Candidate{Step: "fallback"},
	)

	step, err := selectBranch(d, snap)
	require.NoError(t, err)
	assert.Equal(t, "fallback", step)
}

func TestSelectBranch_HighestConfidence(t *testing.T) {
	snap := domain.NewSnapshot("s")
	d := domain.FanOut(domain.PolicyHighestConfidence,
		scored("a", true, 0.4),
		scored("b", true, 0.9),
		scored("c", false, 1.0),
	)

	step, err := selectBranch(d, snap)
	require.NoError(t, err)
	assert.Equal(t, "b", step)
}

func TestSelectBranch_TiesKeepDeclaredOrder(t *testing.T) {
	snap := domain.NewSnapshot("s")
	d := domain.FanOut(domain.PolicyHighestConfidence,
		scored("first", true, 0.5),
		scored("second", true, 0.5),
	)

	step, err := selectBranch(d, snap)
	require.NoError(t, err)
	assert.Equal(t, "first", step)
}

func TestSelectBranch_NoViableCandidate(t *testing.T) {
	snap := domain.NewSnapshot("s")

	_, err := selectBranch(domain.FanOut(domain.PolicyFirstSuccess, scored("a", false, 0)), snap)
	assert.ErrorIs(t, err, domain.ErrNoViableBranch)

	_, err = selectBranch(domain.FanOut(domain.PolicyFirstSuccess), snap)
	assert.ErrorIs(t, err, domain.ErrNoViableBranch)
}

func TestSelectBranch_UnknownPolicy(t *testing.T) {
	snap := domain.NewSnapshot("s")
	_, err := selectBranch(domain.FanOut("coin-flip", scored("a", true, 1)), snap)
	assert.Error(t, err)
}
