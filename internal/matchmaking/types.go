// Package matchmaking is the session engine of the chat server: it tracks
// connected participants, pairs them across two attribute pools, relays
// messages between partners and cleans up after departures.
//
// All participant state is owned by a single Coordinator goroutine. Transports
// talk to it by sending CoordinatorMessage values and receive SessionEvent
// values through their SessionHandle.
package matchmaking

import (
	"fmt"
	"strings"
	"time"
)

// SessionID uniquely identifies one live connection (SSH session, WebSocket).
// Partners reference each other by SessionID, never by pointer.
type SessionID string

// ConversationID identifies one pairing from chatStart to its end.
type ConversationID string

// Attribute is the binary classifier used for pairing.
// Participants are only matched with the complementary attribute.
type Attribute int

const (
	// AttributeNone is the zero value and never valid for a participant.
	AttributeNone Attribute = iota
	AttributeA
	AttributeB
)

// Complement returns the attribute a participant is matched against.
func (a Attribute) Complement() Attribute {
	switch a {
	case AttributeA:
		return AttributeB
	case AttributeB:
		return AttributeA
	default:
		return AttributeNone
	}
}

// Valid reports whether a is AttributeA or AttributeB.
func (a Attribute) Valid() bool {
	return a == AttributeA || a == AttributeB
}

func (a Attribute) String() string {
	switch a {
	case AttributeA:
		return "a"
	case AttributeB:
		return "b"
	default:
		return "none"
	}
}

// AttributeLabels maps the two attributes to their wire/display labels.
type AttributeLabels struct {
	A string
	B string
}

// DefaultAttributeLabels returns the labels the browser client sends.
func DefaultAttributeLabels() AttributeLabels {
	return AttributeLabels{A: "male", B: "female"}
}

// Parse resolves a label (or the canonical "a"/"b") to an attribute.
// Matching is case-insensitive.
func (l AttributeLabels) Parse(s string) (Attribute, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "a", strings.ToLower(l.A):
		return AttributeA, nil
	case "b", strings.ToLower(l.B):
		return AttributeB, nil
	}
	return AttributeNone, fmt.Errorf("unknown attribute %q (expected %s or %s)", s, l.A, l.B)
}

// Label returns the display label for an attribute.
func (l AttributeLabels) Label(a Attribute) string {
	switch a {
	case AttributeA:
		return l.A
	case AttributeB:
		return l.B
	default:
		return ""
	}
}

// State is a participant's position in the protocol state machine.
type State int

const (
	StateUnregistered State = iota // Connected, no participant record
	StateWaiting                   // Registered, unpaired (queued or idle)
	StatePaired                    // Registered with a live partner
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateWaiting:
		return "waiting"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// Participant is the coordinator's record of one registered session.
type Participant struct {
	ID        SessionID
	Identity  string // Normalized identity
	Attribute Attribute
	Partner   SessionID // Empty when unpaired

	conversation *conversation // Shared with the partner while paired
}

// Paired reports whether the participant currently has a partner.
func (p *Participant) Paired() bool {
	return p.Partner != ""
}

// conversation tracks one pairing for the conversation log.
// Both participants of a pair point to the same value.
type conversation struct {
	id        ConversationID
	startedAt time.Time
	attrs     [2]Attribute
	messages  int
}

// EndReason describes why a conversation ended.
type EndReason int

const (
	EndReasonNext       EndReason = iota // One side asked for a new partner
	EndReasonDisconnect                  // One side's connection closed
	EndReasonDisplaced                   // One side was evicted by a newer login
	EndReasonReregister                  // One side registered again on the same connection
)

func (r EndReason) String() string {
	switch r {
	case EndReasonNext:
		return "next"
	case EndReasonDisconnect:
		return "disconnect"
	case EndReasonDisplaced:
		return "displaced"
	case EndReasonReregister:
		return "reregister"
	default:
		return "unknown"
	}
}

// ConversationSaver persists finished conversations.
// This allows the coordinator to log conversations without depending on the storage package.
type ConversationSaver interface {
	SaveConversation(record ConversationRecord) error
}

// ConversationRecord is the anonymous summary of a finished conversation.
// It carries no identities and no message text.
type ConversationRecord struct {
	ConversationID string
	AttributeA     string // Label of the first participant's attribute
	AttributeB     string // Label of the second participant's attribute
	Messages       int
	EndReason      string
	StartedAt      time.Time
	DurationSecs   int
}

// Stats is a point-in-time view of the coordinator.
type Stats struct {
	Online        int // Connected sessions, registered or not
	Registered    int
	WaitingA      int
	WaitingB      int
	Paired        int // Participants with a partner (two per conversation)
	Conversations int // Conversations started since the coordinator was created
}
