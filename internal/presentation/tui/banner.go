package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the issueflow banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	lines := []struct {
		text, color string
	}{
		{" _                        __ _               ", "#818cf8"},
		{"(_)___ ___ _   _  ___   / _| | _____      __", "#a78bfa"},
		{"| / __/ __| | | |/ _ \\ | |_| |/ _ \\ \\ /\\ / /", "#c084fc"},
		{"| \\__ \\__ \\ |_| |  __/ |  _| | (_) \\ V  V / ", "#e879f9"},
		{"|_|___/___/\\__,_|\\___| |_| |_|\\___/ \\_/\\_/  ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
