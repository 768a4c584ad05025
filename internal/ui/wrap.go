package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"
)

// TerminalWidth returns the column width of the terminal attached to f,
// or 80 when f is not a terminal.
func TerminalWidth(f *os.File) int {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// WrapIndent word-wraps text to fit width and prefixes every line with
// indent. The indent's display width counts against the total width.
func WrapIndent(text string, width int, indent string) string {
	inner := width - ANSILen(indent)
	if inner < 1 {
		inner = 1
	}

	wrapped := wordwrap.String(text, inner)
	lines := strings.Split(wrapped, "\n")
	for i, l := range lines {
		lines[i] = indent + l
	}
	return strings.Join(lines, "\n")
}

// TruncateANSI shortens a styled line to width columns, preserving escape
// sequences and appending an ellipsis when truncation happens.
func TruncateANSI(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if ANSILen(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}
