package tui

import "github.com/charmbracelet/bubbles/key"

// ChatKeyMap defines the key bindings for the chat client.
type ChatKeyMap struct {
	Submit     key.Binding
	Next       key.Binding
	SwitchAttr key.Binding
	History    key.Binding
	Up         key.Binding
	Down       key.Binding
	Back       key.Binding
	Quit       key.Binding
}

// ShortHelp returns key bindings for the short help view.
func (k ChatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Next, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k ChatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Next, k.SwitchAttr},
		{k.History, k.Back, k.Quit},
	}
}

// DefaultChatKeyMap returns default key bindings.
func DefaultChatKeyMap() ChatKeyMap {
	return ChatKeyMap{
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Next: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "next stranger"),
		),
		SwitchAttr: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "switch gender"),
		),
		History: key.NewBinding(
			key.WithKeys("f2"),
			key.WithHelp("f2", "recent chats"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "pgup"),
			key.WithHelp("up", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "pgdown"),
			key.WithHelp("down", "scroll down"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}

// stateKeys narrows the key map to the bindings that apply in one state.
type stateKeys struct {
	keys  ChatKeyMap
	state ChatState
}

func (s stateKeys) ShortHelp() []key.Binding {
	k := s.keys
	switch s.state {
	case ChatStateRegister:
		submit := k.Submit
		submit.SetHelp("enter", "find a stranger")
		return []key.Binding{submit, k.SwitchAttr, k.History, k.Quit}
	case ChatStateWaiting:
		return []key.Binding{k.Quit}
	case ChatStateChatting:
		return []key.Binding{k.Submit, k.Next, k.Up, k.Down, k.Quit}
	case ChatStatePartnerLeft:
		submit := k.Submit
		submit.SetHelp("enter", "find someone new")
		return []key.Binding{submit, k.Back, k.Quit}
	case ChatStateHistory:
		return []key.Binding{k.Up, k.Down, k.Back, k.Quit}
	}
	return []key.Binding{k.Quit}
}

func (s stateKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{s.ShortHelp()}
}
