package main

import (
	"fmt"

	"github.com/spf13/cobra"

	pennywise "github.com/pennywise-ai/pennywise"
	"github.com/pennywise-ai/pennywise/internal/presentation/graph"
	"github.com/pennywise-ai/pennywise/pkg/steps"
)

// graphCmd renders the step graph without touching any backend: it builds
// the registry alone and prints a Mermaid diagram.
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the step graph visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of the orchestration step graph.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := pennywise.New(
			pennywise.WithStepOptions(steps.Options{}),
		)
		if err != nil {
			return err
		}
		fmt.Print(graph.GenerateMermaid(agent.Steps(), nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
