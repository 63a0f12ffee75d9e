package tui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// NewRenderer returns a function that renders markdown for out.
// Terminals get glamour output; pipes and files get the markdown unchanged.
func NewRenderer(out *os.File) func(string) (string, error) {
	if out == nil || !term.IsTerminal(int(out.Fd())) {
		return plain
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return plain
	}
	return r.Render
}

func plain(markdown string) (string, error) {
	return markdown, nil
}
