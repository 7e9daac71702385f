package main

import (
	"github.com/spf13/cobra"

	"github.com/pennywise-ai/pennywise/pkg/adapters/mcptool"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long:  `Exposes the agent as an MCP server so tool-calling clients can open sessions and ask financial questions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		agent, err := buildAgent(cfg, logger)
		if err != nil {
			return err
		}

		return mcptool.NewServer(agent, logger).ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
