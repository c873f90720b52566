package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the interactive search console and blocks until the user
// quits.
func Run(searcher Searcher, topK int) error {
	p := tea.NewProgram(NewSearchModel(searcher, topK), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("search console: %w", err)
	}
	return nil
}
