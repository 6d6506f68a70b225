package collab

import (
	"encoding/json"

	"github.com/mapwright/mapwright/internal/view"
)

// Message is the frame exchanged with presentation and editor surfaces.
// Seq numbers outbound room traffic so a surface can detect a gap and ask
// for a refresh.
type Message struct {
	Type     string          `json:"type"`
	Room     string          `json:"room,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	ViewerID string          `json:"viewerId,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Editor      bool   `json:"editor"`
}

type WelcomePayload struct {
	ClientID    string      `json:"clientId"`
	Room        string      `json:"room"`
	Participant Participant `json:"participant"`
}

type PresenceStatePayload struct {
	Participants []Participant `json:"participants"`
}

type PresenceJoinPayload struct {
	Participant Participant `json:"participant"`
}

type PresenceLeavePayload struct {
	ViewerID string `json:"viewerId"`
}

type StatusPayload = view.Status

type ErrorPayload struct {
	Message string `json:"message"`
}

const (
	TypePresenceState = "presence.state"
	TypePresenceJoin  = "presence.join"
	TypePresenceLeave = "presence.leave"
	TypeError         = "error"

	// Connection
	TypeWelcome = "welcome"

	// Document sync
	TypeDocSync = "doc.sync"

	// Presentation surface
	TypePresentationStatus  = "presentation.status"
	TypePresentationRefresh = "presentation.refresh"

	// Editor surface; payloads are protocol envelopes.
	TypeEditorCommand      = "editor.command"
	TypeEditorNotification = "editor.notification"
)

func newMessage(typ string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: typ, Payload: raw}, nil
}
