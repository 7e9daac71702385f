package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

func TestSnapshot_NextDerivesWithoutMutating(t *testing.T) {
	base := domain.NewSnapshot("s1")
	base.Vars["query"] = "original"
	base.Messages = []domain.Message{{Role: domain.RoleUser, Content: "hi"}}

	next := base.Next("classify", domain.Delta{
		Set:      domain.Vars{"query_type": "general", "query": "rewritten"},
		Messages: []domain.Message{{Role: domain.RoleAssistant, Content: "hello"}},
	})

	assert.Equal(t, uint64(2), next.Version)
	assert.Equal(t, "classify", next.Cursor)
	assert.Equal(t, "rewritten", next.String("query"))
	assert.Equal(t, "general", next.String("query_type"))
	require.Len(t, next.Messages, 2)

	// The predecessor is untouched.
	assert.Equal(t, uint64(1), base.Version)
	assert.Equal(t, "original", base.String("query"))
	assert.Len(t, base.Messages, 1)
	assert.NotContains(t, base.Vars, "query_type")
}

func TestSnapshot_ChainVersionsStrictlyIncrease(t *testing.T) {
	snap := domain.NewSnapshot("s1")
	for i := 0; i < 5; i++ {
		next := snap.Next("step", domain.Delta{})
		assert.Equal(t, snap.Version+1, next.Version)
		snap = next
	}
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	snap := domain.NewSnapshot("s1")
	snap.Vars["total"] = "-54.50"

	cp := snap.Clone()
	cp.Vars["total"] = "0.00"
	cp.Messages = append(cp.Messages, domain.Message{Role: domain.RoleUser, Content: "x"})

	assert.Equal(t, "-54.50", snap.String("total"))
	assert.Empty(t, snap.Messages)
}

func TestSnapshot_StringOnMissingOrNonString(t *testing.T) {
	snap := domain.NewSnapshot("s1")
	snap.Vars["count"] = 3

	assert.Equal(t, "", snap.String("absent"))
	assert.Equal(t, "", snap.String("count"))
}
