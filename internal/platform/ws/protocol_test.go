package ws

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/vovakirdan/tui-campuschat/internal/matchmaking"
)

func TestDecodeRegister(t *testing.T) {
	tests := []struct {
		name string
		data string
		want matchmaking.RegisterMsg
	}{
		{
			name: "browser fields",
			data: `{"email":"a@x.edu","gender":"male"}`,
			want: matchmaking.RegisterMsg{SessionID: "s", Identity: "a@x.edu", Attribute: "male"},
		},
		{
			name: "neutral fields",
			data: `{"identity":"b@x.edu","attribute":"b"}`,
			want: matchmaking.RegisterMsg{SessionID: "s", Identity: "b@x.edu", Attribute: "b"},
		},
		{
			name: "neutral wins",
			data: `{"email":"a@x.edu","identity":"b@x.edu","gender":"male","attribute":"female"}`,
			want: matchmaking.RegisterMsg{SessionID: "s", Identity: "b@x.edu", Attribute: "female"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := decodeFrame("s", Frame{Type: TypeRegister, Data: json.RawMessage(tt.data)})
			if err != nil {
				t.Fatalf("decodeFrame failed: %v", err)
			}
			if msg != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, msg)
			}
		})
	}
}

func TestDecodeMessageAndNext(t *testing.T) {
	msg, err := decodeFrame("s", Frame{Type: TypeMessage, Data: json.RawMessage(`"hi <b>there</b>"`)})
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if got := msg.(matchmaking.ChatMessageMsg); got.Text != "hi <b>there</b>" {
		t.Errorf("Expected text to pass through verbatim, got %q", got.Text)
	}

	msg, err = decodeFrame("s", Frame{Type: TypeNext})
	if err != nil {
		t.Fatalf("decodeFrame failed: %v", err)
	}
	if _, ok := msg.(matchmaking.NextMsg); !ok {
		t.Errorf("Expected NextMsg, got %T", msg)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := decodeFrame("s", Frame{Type: "typing"}); !errors.Is(err, errUnknownType) {
		t.Errorf("Expected errUnknownType, got %v", err)
	}
	if _, err := decodeFrame("s", Frame{Type: TypeMessage, Data: json.RawMessage(`42`)}); err == nil {
		t.Error("Expected error for non-string message")
	}
	if _, err := decodeFrame("s", Frame{Type: TypeRegister}); err == nil {
		t.Error("Expected error for register without data")
	}
}

func TestEncodeEvents(t *testing.T) {
	tests := []struct {
		evt  matchmaking.SessionEvent
		want string
	}{
		{matchmaking.ErrorEvent{Message: "nope"}, `{"type":"error","data":"nope"}`},
		{matchmaking.WaitingEvent{}, `{"type":"waiting"}`},
		{matchmaking.ChatStartedEvent{PartnerID: "p1", ConversationID: "c1"}, `{"type":"chatStart","data":{"partnerId":"p1"}}`},
		{matchmaking.ChatMessageEvent{Text: "yo"}, `{"type":"message","data":"yo"}`},
		{matchmaking.PartnerLeftEvent{}, `{"type":"partnerLeft"}`},
		{matchmaking.DisplacedEvent{}, `{"type":"displaced"}`},
	}

	for _, tt := range tests {
		f, err := encodeEvent(tt.evt)
		if err != nil {
			t.Fatalf("encodeEvent(%T) failed: %v", tt.evt, err)
		}
		got, err := json.Marshal(f)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Errorf("encodeEvent(%T): expected %s, got %s", tt.evt, tt.want, got)
		}
	}
}
