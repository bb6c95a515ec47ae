package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/tui-campuschat/internal/matchmaking"
)

const (
	statsRefresh  = 2 * time.Second
	maxMessageLen = 1000
)

// Backend is the part of the coordinator the chat client talks to.
type Backend interface {
	Send(msg matchmaking.CoordinatorMessage)
	Stats() matchmaking.Stats
}

// ChatState represents where the client is in the chat flow.
type ChatState int

const (
	ChatStateRegister    ChatState = iota // Entering identity and attribute
	ChatStateWaiting                      // Queued for a partner
	ChatStateChatting                     // Paired with a stranger
	ChatStatePartnerLeft                  // Partner left, idle until asked to rematch
	ChatStateHistory                      // Browsing recent conversations
	ChatStateClosed                       // Closed by the server
)

type lineKind int

const (
	lineNotice lineKind = iota
	lineSelf
	lineStranger
)

type transcriptEntry struct {
	kind lineKind
	text string
}

// sessionClosedMsg is delivered once the coordinator closed this session.
type sessionClosedMsg struct {
	displaced bool
}

type statsMsg matchmaking.Stats

// ChatModel is the Bubble Tea model for one terminal chat client.
type ChatModel struct {
	backend Backend
	session *matchmaking.ChannelSession
	labels  matchmaking.AttributeLabels
	lister  ConversationLister

	state      ChatState
	identity   textinput.Model
	attr       matchmaking.Attribute
	input      textinput.Model
	transcript viewport.Model
	lines      []transcriptEntry
	spinner    spinner.Model
	history    HistoryModel
	help       help.Model
	keys       ChatKeyMap

	// Last registration sent, reused to ask for a new partner.
	registeredIdentity string
	registeredAttr     matchmaking.Attribute

	stats     matchmaking.Stats
	errMsg    string
	pending   bool // Register sent, no answer yet
	displaced bool
	width     int
	height    int
	quitting  bool
}

// NewChatModel creates a chat client bound to one coordinator session.
// lister may be nil, which disables the recent chats screen.
func NewChatModel(
	backend Backend,
	session *matchmaking.ChannelSession,
	labels matchmaking.AttributeLabels,
	lister ConversationLister,
	width, height int,
) ChatModel {
	identity := textinput.New()
	identity.Placeholder = "you@college.edu"
	identity.CharLimit = 254
	identity.Prompt = "Email: "
	identity.Focus()

	input := textinput.New()
	input.Placeholder = "Type a message"
	input.CharLimit = maxMessageLen
	input.Prompt = "> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	h := help.New()
	h.ShowAll = false

	m := ChatModel{
		backend:    backend,
		session:    session,
		labels:     labels,
		lister:     lister,
		state:      ChatStateRegister,
		identity:   identity,
		attr:       matchmaking.AttributeA,
		input:      input,
		transcript: viewport.New(width, 1),
		spinner:    sp,
		history:    NewHistoryModel(width, height),
		help:       h,
		keys:       DefaultChatKeyMap(),
	}
	m.resize(width, height)
	return m
}

// Init starts listening for coordinator events.
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), textinput.Blink)
}

// waitForEvent returns a command that waits for the next coordinator event.
func (m ChatModel) waitForEvent() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		select {
		case evt := <-s.Events():
			return evt
		case <-s.Done():
		}
		closed := sessionClosedMsg{}
		for _, evt := range s.Pending() {
			if _, ok := evt.(matchmaking.DisplacedEvent); ok {
				closed.displaced = true
			}
		}
		return closed
	}
}

func (m ChatModel) fetchStats(delay time.Duration) tea.Cmd {
	b := m.backend
	if delay <= 0 {
		return func() tea.Msg { return statsMsg(b.Stats()) }
	}
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return statsMsg(b.Stats())
	})
}

// Update handles messages.
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case matchmaking.ErrorEvent:
		m.errMsg = msg.Message
		m.pending = false
		return m, m.waitForEvent()
	case matchmaking.WaitingEvent:
		m.state = ChatStateWaiting
		m.errMsg = ""
		m.pending = false
		m.identity.Blur()
		m.input.Blur()
		return m, tea.Batch(m.waitForEvent(), m.spinner.Tick, m.fetchStats(0))
	case matchmaking.ChatStartedEvent:
		m.state = ChatStateChatting
		m.errMsg = ""
		m.pending = false
		m.lines = nil
		m.addLine(lineNotice, "You're now chatting with a random stranger. Say hi!")
		m.identity.Blur()
		m.input.Reset()
		return m, tea.Batch(m.waitForEvent(), m.input.Focus())
	case matchmaking.ChatMessageEvent:
		if m.state == ChatStateChatting {
			m.addLine(lineStranger, msg.Text)
		}
		return m, m.waitForEvent()
	case matchmaking.PartnerLeftEvent:
		m.state = ChatStatePartnerLeft
		m.addLine(lineNotice, "Stranger has left the chat.")
		m.input.Blur()
		return m, m.waitForEvent()
	case matchmaking.DisplacedEvent:
		m.displaced = true
		return m, m.waitForEvent()
	case sessionClosedMsg:
		m.state = ChatStateClosed
		m.displaced = m.displaced || msg.displaced
		return m, nil
	case statsMsg:
		m.stats = matchmaking.Stats(msg)
		if m.state == ChatStateWaiting {
			return m, m.fetchStats(statsRefresh)
		}
		return m, nil
	case historyMsg:
		m.history = m.history.SetConversations(msg.conversations, msg.err)
		return m, nil
	case spinner.TickMsg:
		if m.state != ChatStateWaiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateInputs(msg)
}

// updateInputs forwards cursor blinks and similar to the focused input.
func (m ChatModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.state {
	case ChatStateRegister:
		m.identity, cmd = m.identity.Update(msg)
	case ChatStateChatting:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}

	switch m.state {
	case ChatStateRegister:
		return m.handleRegisterKey(msg)
	case ChatStateChatting:
		return m.handleChatKey(msg)
	case ChatStatePartnerLeft:
		return m.handlePartnerLeftKey(msg)
	case ChatStateHistory:
		return m.handleHistoryKey(msg)
	case ChatStateClosed:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m ChatModel) handleRegisterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		if m.pending {
			return m, nil
		}
		return m.register(m.identity.Value(), m.attr), nil
	case key.Matches(msg, m.keys.SwitchAttr):
		m.attr = m.attr.Complement()
		return m, nil
	case key.Matches(msg, m.keys.History):
		if m.lister == nil {
			return m, nil
		}
		m.state = ChatStateHistory
		m.identity.Blur()
		return m, loadHistory(m.lister)
	}

	var cmd tea.Cmd
	m.identity, cmd = m.identity.Update(msg)
	return m, cmd
}

func (m ChatModel) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.backend.Send(matchmaking.ChatMessageMsg{SessionID: m.session.ID(), Text: text})
		m.addLine(lineSelf, text)
		m.input.Reset()
		return m, nil
	case key.Matches(msg, m.keys.Next):
		m.backend.Send(matchmaking.NextMsg{SessionID: m.session.ID()})
		m.addLine(lineNotice, "You left the chat. Looking for someone new...")
		return m, nil
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) handlePartnerLeftKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		if m.pending {
			return m, nil
		}
		return m.register(m.registeredIdentity, m.registeredAttr), nil
	case key.Matches(msg, m.keys.Back):
		m.state = ChatStateRegister
		m.errMsg = ""
		return m, m.identity.Focus()
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ChatModel) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Back) {
		m.state = ChatStateRegister
		return m, m.identity.Focus()
	}
	var cmd tea.Cmd
	m.history, cmd = m.history.Update(msg)
	return m, cmd
}

// register asks the coordinator to (re)register this session.
// The server validates the identity and answers with an event.
func (m ChatModel) register(identity string, attr matchmaking.Attribute) ChatModel {
	m.backend.Send(matchmaking.RegisterMsg{
		SessionID: m.session.ID(),
		Identity:  identity,
		Attribute: m.labels.Label(attr),
	})
	m.registeredIdentity = identity
	m.registeredAttr = attr
	m.pending = true
	m.errMsg = ""
	return m
}

func (m *ChatModel) addLine(kind lineKind, text string) {
	m.lines = append(m.lines, transcriptEntry{kind: kind, text: text})
	m.refreshTranscript()
}

func (m *ChatModel) refreshTranscript() {
	wrap := lipgloss.NewStyle().Width(max(m.transcript.Width, 1))
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		rendered[i] = wrap.Render(transcriptLine(l.kind, l.text))
	}
	m.transcript.SetContent(strings.Join(rendered, "\n"))
	m.transcript.GotoBottom()
}

func (m *ChatModel) resize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width

	// Title, blank, box borders, input and help take eight rows.
	m.transcript.Width = max(width-4, 10)
	m.transcript.Height = max(height-8, 3)
	m.input.Width = max(width-8, 10)
	m.identity.Width = max(min(width-12, 48), 10)
	m.history = m.history.Resize(width, height)
	m.refreshTranscript()
}

// View renders the current state.
func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(centerText("CAMPUS CHAT", m.width)))
	b.WriteString("\n\n")

	switch m.state {
	case ChatStateRegister:
		b.WriteString(m.viewRegister())
	case ChatStateWaiting:
		b.WriteString(m.viewWaiting())
	case ChatStateChatting, ChatStatePartnerLeft:
		b.WriteString(m.viewChat())
	case ChatStateHistory:
		b.WriteString(m.history.View())
	case ChatStateClosed:
		b.WriteString(m.viewClosed())
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(subtleStyle.Render(m.help.View(stateKeys{keys: m.keys, state: m.state})))
	return b.String()
}

func (m ChatModel) viewRegister() string {
	var b strings.Builder

	b.WriteString(centerText("Talk to a random student from another college.", m.width))
	b.WriteString("\n\n")
	b.WriteString(centerText(m.identity.View(), m.width))
	b.WriteString("\n\n")

	options := make([]string, 0, 2)
	for _, a := range []matchmaking.Attribute{matchmaking.AttributeA, matchmaking.AttributeB} {
		label := m.labels.Label(a)
		if a == m.attr {
			options = append(options, activeOptionStyle.Render(label))
		} else {
			options = append(options, optionStyle.Render(label))
		}
	}
	b.WriteString(centerText("I am: "+strings.Join(options, " "), m.width))
	b.WriteString("\n")

	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(centerText(errorStyle.Render(m.errMsg), m.width))
		b.WriteString("\n")
	}
	if m.pending {
		b.WriteString("\n")
		b.WriteString(centerText(subtleStyle.Render("Checking..."), m.width))
		b.WriteString("\n")
	}

	return b.String()
}

func (m ChatModel) viewWaiting() string {
	var b strings.Builder

	b.WriteString(centerText(m.spinner.View()+" Looking for a stranger...", m.width))
	b.WriteString("\n\n")

	waiting := m.stats.WaitingA + m.stats.WaitingB
	line := fmt.Sprintf("%d online  |  %d waiting  |  %d chatting", m.stats.Online, waiting, m.stats.Paired)
	b.WriteString(centerText(subtleStyle.Render(line), m.width))
	b.WriteString("\n")

	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(centerText(errorStyle.Render(m.errMsg), m.width))
		b.WriteString("\n")
	}

	return b.String()
}

func (m ChatModel) viewChat() string {
	var b strings.Builder

	b.WriteString(boxStyle.Render(m.transcript.View()))
	b.WriteString("\n")

	if m.state == ChatStatePartnerLeft {
		prompt := "Press Enter to find someone new."
		if m.pending {
			prompt = "Looking for someone new..."
		}
		b.WriteString(noticeStyle.Render(prompt))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	if m.errMsg != "" {
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}

	return b.String()
}

func (m ChatModel) viewClosed() string {
	var b strings.Builder

	msg := "Disconnected by the server."
	if m.displaced {
		msg = "You signed in from another connection. This one has been closed."
	}
	b.WriteString(centerText(noticeStyle.Render(msg), m.width))
	b.WriteString("\n\n")
	b.WriteString(centerText(subtleStyle.Render("Press any key to exit."), m.width))

	return b.String()
}

// State returns the current chat state.
func (m ChatModel) State() ChatState {
	return m.state
}

// IsQuitting returns true if the user asked to leave.
func (m ChatModel) IsQuitting() bool {
	return m.quitting
}
