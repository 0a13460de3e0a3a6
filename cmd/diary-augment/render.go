package main

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// display decides how the final diary is printed. An empty style prints plain text.
type display struct {
	style string
	width int
}

// resolveDisplay maps the -render flag to a display. "auto" renders only on a terminal.
func resolveDisplay(render string, isTerminal bool, width int) display {
	if width < 1 {
		width = 80
	}
	switch render {
	case "", "plain":
		return display{}
	case "auto":
		if !isTerminal {
			return display{}
		}
		return display{style: "dark", width: width}
	default:
		return display{style: render, width: width}
	}
}

func (d display) format(text string) string {
	if d.style == "" {
		return text
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(d.style),
		glamour.WithWordWrap(d.width),
	)
	if err != nil {
		return text
	}
	// Diary line breaks are meaningful; keep them as hard breaks.
	out, err := r.Render(strings.ReplaceAll(text, "\n", "  \n"))
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
