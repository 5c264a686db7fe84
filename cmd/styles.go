package cmd

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Rosé Pine Moon palette.
// https://rosepinetheme.com/palette/
var (
	colorMuted = lipgloss.Color("#6e6a86")
	colorText  = lipgloss.Color("#e0def4")

	colorLove = lipgloss.Color("#eb6f92") // error
	colorGold = lipgloss.Color("#f6c177") // status transitions
	colorFoam = lipgloss.Color("#9ccfd8") // operations
	colorIris = lipgloss.Color("#c4a7e7") // entity identifiers
)

var (
	styleHeading = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleEntity  = lipgloss.NewStyle().Foreground(colorIris).Bold(true)
	styleOp      = lipgloss.NewStyle().Foreground(colorFoam)
	styleStatus  = lipgloss.NewStyle().Foreground(colorGold)
	styleError   = lipgloss.NewStyle().Foreground(colorLove)
)

// stylingEnabled reports whether output should be colored. Piped output
// stays plain so scripts and tests see the bare format.
func stylingEnabled() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// paint renders s with the style when stdout is a terminal. Styling is
// applied after column padding so ANSI sequences never shift alignment.
func paint(style lipgloss.Style, s string) string {
	if !stylingEnabled() {
		return s
	}
	return style.Render(s)
}
