package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/tui-campuschat/internal/storage"
)

const maxHistory = 50 // Max conversations to load

// ConversationLister reads the anonymous conversation log.
type ConversationLister interface {
	RecentConversations(limit int) ([]storage.Conversation, error)
}

type historyMsg struct {
	conversations []storage.Conversation
	err           error
}

func loadHistory(lister ConversationLister) tea.Cmd {
	return func() tea.Msg {
		convs, err := lister.RecentConversations(maxHistory)
		return historyMsg{conversations: convs, err: err}
	}
}

// HistoryModel shows recent conversations. Only anonymous metadata is stored,
// so there is nothing here that identifies anyone.
type HistoryModel struct {
	conversations []storage.Conversation
	err           error
	loaded        bool
	table         table.Model
	width         int
	height        int
}

// NewHistoryModel creates an empty history view.
func NewHistoryModel(width, height int) HistoryModel {
	m := HistoryModel{width: width, height: height}
	m.table = m.createTable()
	return m
}

// createTable creates a new table sized to the current window.
func (m HistoryModel) createTable() table.Model {
	columns := []table.Column{
		{Title: "Started", Width: 14},
		{Title: "Length", Width: 8},
		{Title: "Pair", Width: 16},
		{Title: "Msgs", Width: 6},
		{Title: "Ended by", Width: 11},
	}

	// Give spare width to the pair column
	if spare := m.width - 4 - 65; spare > 0 {
		columns[2].Width += min(spare, 16)
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(m.height-10, 3)), // Leave room for header, help, and margins
	)

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

	return t
}

// SetConversations replaces the table contents.
func (m HistoryModel) SetConversations(convs []storage.Conversation, err error) HistoryModel {
	m.conversations = convs
	m.err = err
	m.loaded = true
	m.updateTableRows()
	return m
}

// Resize rebuilds the table for a new window size.
func (m HistoryModel) Resize(width, height int) HistoryModel {
	m.width = width
	m.height = height
	m.table = m.createTable()
	m.updateTableRows()
	return m
}

func (m *HistoryModel) updateTableRows() {
	rows := make([]table.Row, len(m.conversations))
	for i, c := range m.conversations {
		rows[i] = table.Row{
			c.StartedAt.Local().Format("Jan 02 15:04"),
			formatDuration(time.Duration(c.DurationSecs) * time.Second),
			fmt.Sprintf("%s / %s", c.AttributeA, c.AttributeB),
			fmt.Sprintf("%d", c.Messages),
			c.EndReason,
		}
	}
	m.table.SetRows(rows)
	m.table.GotoTop()
}

// Update passes scrolling keys to the table.
func (m HistoryModel) Update(msg tea.Msg) (HistoryModel, tea.Cmd) {
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the table or a status line.
func (m HistoryModel) View() string {
	header := titleStyle.Render(centerText("RECENT CONVERSATIONS", m.width))

	var body string
	switch {
	case !m.loaded:
		body = subtleStyle.Render("Loading...")
	case m.err != nil:
		body = errorStyle.Render("Could not load conversations: " + m.err.Error())
	case len(m.conversations) == 0:
		body = subtleStyle.Italic(true).Padding(2, 4).Render("No conversations recorded yet.")
	default:
		body = boxStyle.Render(m.table.View())
	}

	return header + "\n\n" + body + "\n"
}

// formatDuration renders a short duration like 4m05s.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
