package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the chat banner.
func PrintBanner() {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  ____                        __        ___         ", "#34d399"},
		{" |  _ \\ ___ _ __  _ __  _   _\\ \\      / (_)___  ___ ", "#2dd4bf"},
		{" | |_) / _ \\ '_ \\| '_ \\| | | |\\ \\ /\\ / /| / __|/ _ \\", "#22d3ee"},
		{" |  __/  __/ | | | | | | |_| | \\ V  V / | \\__ \\  __/", "#38bdf8"},
		{" |_|   \\___|_| |_|_| |_|\\__, |  \\_/\\_/  |_|___/\\___|", "#60a5fa"},
		{"                        |___/                       ", "#818cf8"},
	}

	fmt.Println()
	for _, l := range lines {
		fmt.Println(termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Println("  your money, explained")
	fmt.Println()
}
