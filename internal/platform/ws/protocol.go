package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vovakirdan/tui-campuschat/internal/matchmaking"
)

// Frame types, named after the browser client's events.
const (
	TypeRegister    = "register"
	TypeMessage     = "message"
	TypeNext        = "next"
	TypeError       = "error"
	TypeWaiting     = "waiting"
	TypeChatStart   = "chatStart"
	TypePartnerLeft = "partnerLeft"
	TypeDisplaced   = "displaced"
)

var errUnknownType = errors.New("unknown frame type")

// Frame is one JSON text frame in either direction.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RegisterData accepts both the browser client's field names and neutral ones.
type RegisterData struct {
	Email     string `json:"email,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Identity  string `json:"identity,omitempty"`
	Attribute string `json:"attribute,omitempty"`
}

// ChatStartData is the payload of a chatStart frame.
type ChatStartData struct {
	PartnerID string `json:"partnerId"`
}

// decodeFrame turns an inbound frame into a coordinator message for the given session.
func decodeFrame(id matchmaking.SessionID, f Frame) (matchmaking.CoordinatorMessage, error) {
	switch f.Type {
	case TypeRegister:
		var d RegisterData
		if err := json.Unmarshal(f.Data, &d); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
		ident := d.Identity
		if ident == "" {
			ident = d.Email
		}
		attr := d.Attribute
		if attr == "" {
			attr = d.Gender
		}
		return matchmaking.RegisterMsg{SessionID: id, Identity: ident, Attribute: attr}, nil

	case TypeMessage:
		var text string
		if err := json.Unmarshal(f.Data, &text); err != nil {
			return nil, fmt.Errorf("message: %w", err)
		}
		return matchmaking.ChatMessageMsg{SessionID: id, Text: text}, nil

	case TypeNext:
		return matchmaking.NextMsg{SessionID: id}, nil
	}

	return nil, fmt.Errorf("%w: %q", errUnknownType, f.Type)
}

// encodeEvent turns a coordinator event into an outbound frame.
func encodeEvent(evt matchmaking.SessionEvent) (Frame, error) {
	switch e := evt.(type) {
	case matchmaking.ErrorEvent:
		return frameWith(TypeError, e.Message)
	case matchmaking.WaitingEvent:
		return Frame{Type: TypeWaiting}, nil
	case matchmaking.ChatStartedEvent:
		return frameWith(TypeChatStart, ChatStartData{PartnerID: string(e.PartnerID)})
	case matchmaking.ChatMessageEvent:
		return frameWith(TypeMessage, e.Text)
	case matchmaking.PartnerLeftEvent:
		return Frame{Type: TypePartnerLeft}, nil
	case matchmaking.DisplacedEvent:
		return Frame{Type: TypeDisplaced}, nil
	}
	return Frame{}, fmt.Errorf("%w: %T", errUnknownType, evt)
}

func frameWith(typ string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: typ, Data: raw}, nil
}
