package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"inbox2excel/internal/export"
	"inbox2excel/internal/extraction"
)

// KeyMap represents the key bindings for the record preview
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Details key.Binding
	Help    key.Binding
	Quit    key.Binding
	Back    key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Details: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
	}
}

// RecordPreview is an interactive table of extracted records
type RecordPreview struct {
	table       table.Model
	records     []extraction.Record
	columns     []string
	keys        KeyMap
	useColor    bool
	showHelp    bool
	showDetails bool
	quitting    bool
}

// NewRecordPreview creates a preview table for records
func NewRecordPreview(records []extraction.Record, noColor bool) *RecordPreview {
	cols := export.Columns(records)
	header := export.Header(cols)

	columns := make([]table.Column, len(header))
	for i, title := range header {
		columns[i] = table.Column{
			Title: title,
			Width: columnWidth(i, title, records, cols),
		}
	}

	rows := make([]table.Row, len(records))
	for i, rec := range records {
		row := export.Row(rec, cols)
		for j := range row {
			row[j] = oneLine(row[j])
		}
		rows[i] = row
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	useColor := !noColor && isatty.IsTerminal(os.Stdout.Fd()) &&
		termenv.NewOutput(os.Stdout).Profile != termenv.Ascii

	if useColor {
		s := table.DefaultStyles()
		s.Header = s.Header.
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true)
		s.Selected = s.Selected.
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(false)
		t.SetStyles(s)
	}

	return &RecordPreview{
		table:    t,
		records:  records,
		columns:  cols,
		keys:     DefaultKeyMap(),
		useColor: useColor,
	}
}

// Init initializes the preview
func (m *RecordPreview) Init() tea.Cmd {
	return nil
}

// Update handles messages and updates the model
func (m *RecordPreview) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showDetails {
			switch {
			case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Details):
				m.showDetails = false
				return m, nil
			case key.Matches(msg, m.keys.Quit):
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil
		case key.Matches(msg, m.keys.Details):
			if len(m.records) > 0 {
				m.showDetails = true
			}
			return m, nil
		case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
			m.table, cmd = m.table.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		return m, nil
	}

	return m, nil
}

// View renders the preview
func (m *RecordPreview) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	if m.showHelp {
		b.WriteString(m.helpView())
		b.WriteString("\n")
	}

	if m.showDetails {
		b.WriteString(m.detailsView())
	} else {
		b.WriteString(m.table.View())
	}
	b.WriteString("\n")
	b.WriteString(m.statusLine())

	return b.String()
}

func (m *RecordPreview) helpView() string {
	help := strings.Builder{}
	help.WriteString("Help:\n")
	help.WriteString("  ↑/k         - Move up\n")
	help.WriteString("  ↓/j         - Move down\n")
	help.WriteString("  enter       - Show all fields of the selected email\n")
	help.WriteString("  ?           - Toggle help\n")
	help.WriteString("  q/ctrl+c    - Quit\n")
	return help.String()
}

func (m *RecordPreview) detailsView() string {
	rec := m.records[m.table.Cursor()]

	label := lipgloss.NewStyle()
	if m.useColor {
		label = label.Bold(true).Foreground(lipgloss.Color("12"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", label.Render("Subject:"), rec.Subject)
	fmt.Fprintf(&b, "%s %s\n", label.Render("Sender:"), rec.Sender)
	fmt.Fprintf(&b, "%s %s\n", label.Render("Date:"), rec.Date.Format(export.DateLayout))
	for _, col := range m.columns {
		value, _ := rec.ExtractedData.Get(col)
		fmt.Fprintf(&b, "%s %s\n", label.Render(col+":"), value)
	}
	return b.String()
}

func (m *RecordPreview) statusLine() string {
	if m.showDetails {
		return "Details | Press esc to return to the table"
	}
	if len(m.records) == 0 {
		return "No emails matched"
	}
	return fmt.Sprintf("Email %d of %d | Press ? for help", m.table.Cursor()+1, len(m.records))
}

// columnWidth sizes a column from its title and a sample of its values
func columnWidth(i int, title string, records []extraction.Record, cols []string) int {
	width := len(title)

	samples := min(len(records), 10)
	for r := 0; r < samples; r++ {
		value := oneLine(export.Row(records[r], cols)[i])
		if n := len([]rune(value)); n > width {
			width = n
		}
	}

	return min(max(width, 8), 40)
}

// RunRecordPreview shows records in a full-screen interactive table
func RunRecordPreview(records []extraction.Record, noColor bool) error {
	p := tea.NewProgram(NewRecordPreview(records, noColor), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
