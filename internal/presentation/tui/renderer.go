// Package tui renders assistant answers for the interactive chat command.
package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown answers with
// glamour, matching the terminal's light or dark background.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		// Fall back to plain text when the terminal cannot be probed.
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
