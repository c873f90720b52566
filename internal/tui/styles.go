package tui

import "github.com/charmbracelet/lipgloss"

// Color constants matching the dark dashboard theme
const (
	ColorBg     = "#0d1117"
	ColorCard   = "#161b22"
	ColorBorder = "#30363d"
	ColorBlue   = "#58a6ff"
	ColorGreen  = "#3fb950"
	ColorRed    = "#f85149"
	ColorYellow = "#d29922"
	ColorGray   = "#8b949e"
	ColorText   = "#c9d1d9"
	ColorBright = "#f0f6fc"
)

// Styles holds all lipgloss styles for the search console
type Styles struct {
	// Text styles
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style

	// Status badges
	StatusFailed lipgloss.Style
	StatusWarn   lipgloss.Style

	// Chunk display
	CodeBlock lipgloss.Style

	// Borders
	Border       lipgloss.Style
	ActiveBorder lipgloss.Style

	// Pane labels
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
}

// DefaultStyles creates the default style set
func DefaultStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(ColorBright)).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorText)),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Italic(true),

		StatusFailed: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorRed)).
			Foreground(lipgloss.Color(ColorBg)).
			Padding(0, 1).
			Bold(true),

		StatusWarn: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorYellow)).
			Foreground(lipgloss.Color(ColorBg)).
			Padding(0, 1).
			Bold(true),

		CodeBlock: lipgloss.NewStyle().
			Background(lipgloss.Color(ColorCard)).
			Foreground(lipgloss.Color(ColorText)).
			Padding(0, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)),

		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1),

		ActiveBorder: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBlue)).
			Padding(0, 1),

		Tab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorGray)).
			Padding(0, 2),

		ActiveTab: lipgloss.NewStyle().
			Foreground(lipgloss.Color(ColorBlue)).
			Bold(true).
			Padding(0, 2),
	}
}

// ScoreColor returns a styled badge based on the similarity score
// Green for >=0.8, yellow for >=0.5, red for <0.5
func ScoreColor(score float64) lipgloss.Style {
	style := lipgloss.NewStyle().
		Padding(0, 1).
		Bold(true)

	if score >= 0.8 {
		return style.
			Background(lipgloss.Color(ColorGreen)).
			Foreground(lipgloss.Color(ColorBg))
	} else if score >= 0.5 {
		return style.
			Background(lipgloss.Color(ColorYellow)).
			Foreground(lipgloss.Color(ColorBg))
	} else {
		return style.
			Background(lipgloss.Color(ColorRed)).
			Foreground(lipgloss.Color(ColorBg))
	}
}
