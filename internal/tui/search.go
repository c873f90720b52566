package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/soliscan/soliscan/internal/vector"
)

// searchTimeout bounds one embedding round-trip plus the index query.
const searchTimeout = 30 * time.Second

// maxContentLines caps the chunk preview per result.
const maxContentLines = 12

// Searcher is the slice of the ingestion service the console needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]vector.SearchResult, error)
	Stats(ctx context.Context) (vector.IndexStats, error)
}

type Pane int

const (
	PaneQuery Pane = iota
	PaneResults
)

type SearchModel struct {
	searcher Searcher
	topK     int

	styles    *Styles
	textInput textinput.Model
	viewport  viewport.Model
	help      help.Model
	keys      keyMap

	activePane Pane
	query      string // last executed query
	results    []vector.SearchResult
	stats      vector.IndexStats
	hasStats   bool
	searching  bool
	err        error

	width    int
	height   int
	quitting bool
}

type keyMap struct {
	Search key.Binding
	Tab    key.Binding
	Up     key.Binding
	Down   key.Binding
	Quit   key.Binding
}

func (km keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		km.Search,
		km.Tab,
		km.Up,
		km.Down,
		km.Quit,
	}
}

func (km keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{km.Search, km.Tab},
		{km.Up, km.Down, km.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Search: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "search"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "switch pane"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Messages produced by the async commands.

type resultsMsg struct {
	query   string
	results []vector.SearchResult
}

type searchErrMsg struct{ err error }

type statsMsg struct{ stats vector.IndexStats }

func NewSearchModel(searcher Searcher, topK int) SearchModel {
	ti := textinput.New()
	ti.Placeholder = "reentrancy guard on withdraw..."
	ti.Width = 60
	ti.Focus()

	vp := viewport.New(0, 0)

	return SearchModel{
		searcher:   searcher,
		topK:       topK,
		styles:     DefaultStyles(),
		textInput:  ti,
		viewport:   vp,
		help:       help.New(),
		keys:       newKeyMap(),
		activePane: PaneQuery,
		width:      80,
		height:     24,
	}
}

func (m SearchModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchStats())
}

// fetchStats loads index statistics for the top bar. Failures leave the
// bar without a vector count rather than surfacing an error.
func (m SearchModel) fetchStats() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()

		stats, err := m.searcher.Stats(ctx)
		if err != nil {
			return nil
		}
		return statsMsg{stats: stats}
	}
}

func (m SearchModel) runSearch(query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
		defer cancel()

		results, err := m.searcher.Search(ctx, query, m.topK)
		if err != nil {
			return searchErrMsg{err: err}
		}
		return resultsMsg{query: query, results: results}
	}
}

func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = msg.Height - 9
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.viewport.SetContent(m.renderResults())
		return m, nil

	case statsMsg:
		m.stats = msg.stats
		m.hasStats = true
		return m, nil

	case resultsMsg:
		m.searching = false
		m.err = nil
		m.query = msg.query
		m.results = msg.results
		m.viewport.SetContent(m.renderResults())
		m.viewport.GotoTop()
		return m, nil

	case searchErrMsg:
		m.searching = false
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

		if m.activePane == PaneQuery {
			switch msg.String() {
			case "enter":
				query := strings.TrimSpace(m.textInput.Value())
				if query == "" || m.searching {
					return m, nil
				}
				m.searching = true
				m.err = nil
				return m, m.runSearch(query)

			case "tab":
				m.activePane = PaneResults
				m.textInput.Blur()
				return m, nil

			case "esc":
				m.quitting = true
				return m, tea.Quit

			default:
				m.textInput, cmd = m.textInput.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "tab", "/":
			m.activePane = PaneQuery
			m.textInput.Focus()
			return m, textinput.Blink

		case "q", "esc":
			m.quitting = true
			return m, tea.Quit

		default:
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m SearchModel) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderTopBar(),
		m.renderQuery(),
		m.renderStatus(),
		m.renderViewport(),
		m.renderBottom(),
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m SearchModel) renderTopBar() string {
	title := m.styles.Title.Render("Soliscan Search")
	if !m.hasStats {
		return title
	}

	badge := m.styles.Subtitle.Render(
		fmt.Sprintf("%d vectors, dim %d", m.stats.Vectors, m.stats.Dimension))
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", badge)
}

func (m SearchModel) renderQuery() string {
	label := m.styles.Tab.Render("Query")
	if m.activePane == PaneQuery {
		label = m.styles.ActiveTab.Render("Query")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, label, m.textInput.View())
}

func (m SearchModel) renderStatus() string {
	switch {
	case m.searching:
		return m.styles.Subtitle.Render(fmt.Sprintf("Searching %q...", m.textInput.Value()))
	case m.err != nil:
		return m.styles.StatusFailed.Render("Error") + " " + m.styles.Subtitle.Render(m.err.Error())
	case m.query != "":
		return m.styles.Subtitle.Render(fmt.Sprintf("%d matches for %q", len(m.results), m.query))
	default:
		return m.styles.Help.Render("Type a query and press enter")
	}
}

func (m SearchModel) renderViewport() string {
	style := m.styles.Border
	if m.activePane == PaneResults {
		style = m.styles.ActiveBorder
	}
	return style.Render(m.viewport.View())
}

func (m SearchModel) renderBottom() string {
	return m.styles.Help.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
}

func (m SearchModel) renderResults() string {
	if len(m.results) == 0 {
		if m.query == "" {
			return m.styles.Help.Render("Results will appear here.")
		}
		return m.styles.Help.Render("No matches.")
	}

	blocks := make([]string, 0, len(m.results))
	for i, res := range m.results {
		blocks = append(blocks, m.renderResult(i, res))
	}
	return strings.Join(blocks, "\n\n")
}

func (m SearchModel) renderResult(i int, res vector.SearchResult) string {
	score := ScoreColor(float64(res.Score)).Render(fmt.Sprintf("%.3f", res.Score))
	header := fmt.Sprintf("#%d %s %s", i+1, score,
		m.styles.Subtitle.Render(resultLocation(res.Metadata)))

	lines := []string{header}
	if detail := resultDetail(res.Metadata); detail != "" {
		lines = append(lines, m.styles.Help.Render(detail))
	}
	if tags := res.Metadata["security_patterns"]; tags != "" {
		lines = append(lines, m.styles.StatusWarn.Render(tags))
	}
	lines = append(lines, m.styles.CodeBlock.Render(truncateContent(res.Content, maxContentLines)))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// resultLocation formats "path (chunk n/total)" from chunk metadata. The
// stored chunk index is zero-based; the display is one-based.
func resultLocation(meta map[string]string) string {
	path := meta["file_path"]
	if path == "" {
		path = "(unknown source)"
	}

	idx, total := meta["chunk_index"], meta["total_chunks"]
	if idx != "" && total != "" {
		if n, err := strconv.Atoi(idx); err == nil {
			return fmt.Sprintf("%s (chunk %d/%s)", path, n+1, total)
		}
	}
	return path
}

// resultDetail summarizes contract structure from chunk metadata.
func resultDetail(meta map[string]string) string {
	var parts []string
	if c := meta["contracts"]; c != "" {
		parts = append(parts, "contracts: "+c)
	}
	if f := meta["functions"]; f != "" {
		parts = append(parts, "functions: "+f)
	}
	if p := meta["pragma"]; p != "" {
		parts = append(parts, "pragma "+p)
	}
	return strings.Join(parts, "  ")
}

// truncateContent limits a chunk preview to maxLines lines.
func truncateContent(content string, maxLines int) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) <= maxLines {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[:maxLines], "\n") +
		fmt.Sprintf("\n... (%d more lines)", len(lines)-maxLines)
}
