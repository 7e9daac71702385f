package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pennywise-ai/pennywise/internal/presentation/tui"
	"github.com/pennywise-ai/pennywise/pkg/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long:  `Opens a conversational session in the terminal. Answers are rendered as Markdown when stdout is a terminal.`,
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

		ctx := cmd.Context()
		var sessionID domain.SessionID
		if resume, _ := cmd.Flags().GetString("session"); resume != "" {
			sessionID = domain.SessionID(resume)
			if _, err := agent.Session(ctx, sessionID); err != nil {
				return fmt.Errorf("resume session: %w", err)
			}
		} else {
			sessionID, err = agent.CreateSession(ctx)
			if err != nil {
				return err
			}
		}

		interactive := term.IsTerminal(int(os.Stdout.Fd()))
		render := func(s string) (string, error) { return s, nil }
		if interactive {
			tui.PrintBanner()
			fmt.Printf("session %s (type 'exit' to quit)\n\n", sessionID)
			render = tui.NewRenderer()
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			if interactive {
				fmt.Print("you> ")
			}
			if !scanner.Scan() {
				break
			}
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
			if input == "exit" || input == "quit" {
				break
			}

			res, err := agent.Turn(ctx, sessionID, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}

			out, err := render(res.Answer)
			if err != nil {
				out = res.Answer
			}
			fmt.Println(out)
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("session", "s", "", "Resume an existing session by ID")
}
