package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	pennywise "github.com/pennywise-ai/pennywise"
	"github.com/pennywise-ai/pennywise/pkg/domain"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage sessions",
	Long:  `List, inspect, and remove conversation sessions in the configured store.`,
}

func sessionAgent(cmd *cobra.Command) (*pennywise.Agent, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return buildAgent(cfg, newLogger(cfg))
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := sessionAgent(cmd)
		if err != nil {
			return err
		}

		ids, err := agent.Sessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, id := range ids {
			info, err := agent.Session(cmd.Context(), id)
			if err != nil {
				fmt.Printf("- %s (unreadable: %v)\n", id, err)
				continue
			}
			fmt.Printf("- %s  v%d  %d messages  last active %s\n",
				id, info.Version, info.Messages, info.LastActivity.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the snapshot history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := sessionAgent(cmd)
		if err != nil {
			return err
		}

		history, err := agent.History(cmd.Context(), domain.SessionID(args[0]))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>...",
	Short: "Remove one or more sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := sessionAgent(cmd)
		if err != nil {
			return err
		}

		var failed bool
		for _, raw := range args {
			if err := agent.CloseSession(cmd.Context(), domain.SessionID(raw)); err != nil {
				fmt.Printf("Error removing %q: %v\n", raw, err)
				failed = true
				continue
			}
			fmt.Printf("Removed session %q\n", raw)
		}
		if failed {
			return fmt.Errorf("some sessions could not be removed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd)
	sessionCmd.AddCommand(sessionInspectCmd)
	sessionCmd.AddCommand(sessionRmCmd)
}
