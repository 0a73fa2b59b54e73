package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mmcdole/tagflow/internal/domain"
)

// Message types sent by the server
const (
	TypeNotification = "notification"
	TypePong         = "pong"
	TypeStatus       = "status"
	TypeProgress     = "operation_progress"
	TypeError        = "error"
)

// Notification actions
const (
	ActionUpdate      = "update"
	ActionDelete      = "delete"
	ActionMoveToTrash = "move_to_trash"
	ActionRestore     = "restore"
)

// Envelope is one server message
type Envelope struct {
	Type      string
	Data      json.RawMessage
	Timestamp time.Time
	MessageID string
}

type envelopeJSON struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
	MessageID json.RawMessage `json:"message_id"`
}

// UnmarshalJSON accepts numeric or string timestamps and message ids
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Type == "" {
		return fmt.Errorf("envelope has no type")
	}
	ts, err := domain.ParseTimestamp(raw.Timestamp)
	if err != nil {
		return fmt.Errorf("envelope timestamp: %w", err)
	}
	var id domain.VideoID // Same string-or-number rule
	if len(raw.MessageID) > 0 {
		if err := json.Unmarshal(raw.MessageID, &id); err != nil {
			return fmt.Errorf("envelope message_id: %w", err)
		}
	}
	*e = Envelope{Type: raw.Type, Data: raw.Data, Timestamp: ts, MessageID: string(id)}
	return nil
}

// Notification is the payload of a "notification" envelope
type Notification struct {
	VideoID   domain.VideoID
	Action    string
	Changes   domain.VideoChanges
	Timestamp time.Time // Falls back to the envelope timestamp
	Raw       json.RawMessage
}

type notificationJSON struct {
	VideoID   domain.VideoID      `json:"video_id"`
	Action    string              `json:"action"`
	Changes   domain.VideoChanges `json:"changes"`
	Timestamp json.RawMessage     `json:"timestamp"`
}

// ParseNotification decodes the data of a notification envelope
func ParseNotification(env Envelope) (Notification, error) {
	var raw notificationJSON
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return Notification{}, fmt.Errorf("notification payload: %w", err)
	}
	if raw.VideoID == "" || raw.Action == "" {
		return Notification{}, fmt.Errorf("notification needs video_id and action")
	}
	ts, err := domain.ParseTimestamp(raw.Timestamp)
	if err != nil {
		return Notification{}, fmt.Errorf("notification timestamp: %w", err)
	}
	if ts.IsZero() {
		ts = env.Timestamp
	}
	return Notification{
		VideoID:   raw.VideoID,
		Action:    raw.Action,
		Changes:   raw.Changes,
		Timestamp: ts,
		Raw:       env.Data,
	}, nil
}

// request is a client action
type request struct {
	Action      string `json:"action"`
	OperationID string `json:"operation_id,omitempty"`
}
