package matchmaking

// SessionEvent represents an event sent from the coordinator to a session.
type SessionEvent interface {
	sessionEvent()
}

// ErrorEvent reports a user-correctable problem (e.g., rejected identity).
type ErrorEvent struct {
	Message string
}

func (ErrorEvent) sessionEvent() {}

// WaitingEvent is sent when a participant is queued for a partner.
type WaitingEvent struct{}

func (WaitingEvent) sessionEvent() {}

// ChatStartedEvent is sent to both participants when they are paired.
type ChatStartedEvent struct {
	PartnerID      SessionID
	ConversationID ConversationID
}

func (ChatStartedEvent) sessionEvent() {}

// ChatMessageEvent carries a message from the partner, verbatim.
type ChatMessageEvent struct {
	Text string
}

func (ChatMessageEvent) sessionEvent() {}

// PartnerLeftEvent is sent when the partner disconnected or asked for someone new.
type PartnerLeftEvent struct{}

func (PartnerLeftEvent) sessionEvent() {}

// DisplacedEvent is sent right before a session is closed because the same
// identity registered from another connection. Only sent when enabled.
type DisplacedEvent struct{}

func (DisplacedEvent) sessionEvent() {}

// CoordinatorMessage represents a message from a transport to the coordinator.
type CoordinatorMessage interface {
	coordinatorMessage()
}

// ConnectMsg makes a new connection addressable. No participant exists yet.
type ConnectMsg struct {
	Session SessionHandle
}

func (ConnectMsg) coordinatorMessage() {}

// RegisterMsg requests registration and matching.
// Attribute is the raw label received from the client.
type RegisterMsg struct {
	SessionID SessionID
	Identity  string
	Attribute string
}

func (RegisterMsg) coordinatorMessage() {}

// ChatMessageMsg relays text to the sender's partner.
type ChatMessageMsg struct {
	SessionID SessionID
	Text      string
}

func (ChatMessageMsg) coordinatorMessage() {}

// NextMsg ends the current conversation and looks for a new partner.
type NextMsg struct {
	SessionID SessionID
}

func (NextMsg) coordinatorMessage() {}

// SessionDisconnectedMsg is sent when a connection closes.
type SessionDisconnectedMsg struct {
	SessionID SessionID
}

func (SessionDisconnectedMsg) coordinatorMessage() {}

// statsMsg asks the coordinator goroutine for a Stats snapshot.
type statsMsg struct {
	reply chan Stats
}

func (statsMsg) coordinatorMessage() {}
