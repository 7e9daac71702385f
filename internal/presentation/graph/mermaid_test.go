package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pennywise-ai/pennywise/internal/presentation/graph"
	"github.com/pennywise-ai/pennywise/pkg/registry"
	"github.com/pennywise-ai/pennywise/pkg/steps"
)

func TestGenerateMermaid_BuiltinGraph(t *testing.T) {
	reg := registry.New()
	steps.MustRegister(reg, steps.Options{})

	out := graph.GenerateMermaid(reg.Steps(), nil)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	// Capability steps render as subroutines, with their kinds annotated.
	assert.Contains(t, out, `classify[["classify <br/> language-model"]]`)
	// The terminal step renders as a circle.
	assert.Contains(t, out, `format_response(("format-response"))`)
	// Edges follow declared successors.
	assert.Contains(t, out, "classify --> analyze_spending")
	assert.Contains(t, out, "insights --> format_response")
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	reg := registry.New()
	steps.MustRegister(reg, steps.Options{})

	out := graph.GenerateMermaid(reg.Steps(), &graph.Overlay{
		VisitedSteps: []string{"classify", "classify", "analyze-spending"},
		CurrentStep:  "insights",
	})

	assert.Equal(t, 1, strings.Count(out, "class classify visited;"))
	assert.Contains(t, out, "class analyze_spending visited;")
	assert.Contains(t, out, "class insights current;")
}
