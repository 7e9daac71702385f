// Package graph renders the registered step graph for inspection.
package graph

import (
	"fmt"
	"strings"

	"github.com/pennywise-ai/pennywise/pkg/domain"
)

// Overlay highlights the path one session actually took.
type Overlay struct {
	VisitedSteps []string
	CurrentStep  string
}

// GenerateMermaid produces a Mermaid flowchart of the step definitions.
// Steps with capabilities render as subroutines, terminal steps as circles.
func GenerateMermaid(defs []domain.StepDefinition, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, def := range defs {
		safeID := sanitizeMermaidID(def.Name)

		opener, closer := "[", "]"
		switch {
		case len(def.Successors) == 0:
			opener, closer = "((", "))"
		case len(def.Capabilities) > 0:
			opener, closer = "[[", "]]"
		}

		label := def.Name
		if len(def.Capabilities) > 0 {
			kinds := make([]string, 0, len(def.Capabilities))
			for _, k := range def.Capabilities {
				kinds = append(kinds, string(k))
			}
			label = fmt.Sprintf("%s <br/> %s", def.Name, strings.Join(kinds, ", "))
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, succ := range def.Successors {
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, sanitizeMermaidID(succ))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, step := range overlay.VisitedSteps {
			safeID := sanitizeMermaidID(step)
			if safeID == "" || visited[safeID] {
				continue
			}
			visited[safeID] = true
			fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
		}
		if overlay.CurrentStep != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentStep))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(id)
}
