package realtime

import (
	"encoding/json"
	"fmt"
)

// Server event types the bridge dispatches on. Everything else is logged and
// ignored.
const (
	TypeSessionCreated = "session.created"
	TypeSessionUpdated = "session.updated"
	TypeError          = "error"

	// The audio delta event was renamed between API revisions; both names
	// carry the same payload and are treated identically.
	TypeOutputAudioDelta = "response.output_audio.delta"
	TypeAudioDelta       = "response.audio.delta"
)

// Kind is the closed set of server event variants the bridge reacts to.
type Kind int

const (
	KindOther Kind = iota
	KindSessionCreated
	KindSessionUpdated
	KindAudioDelta
	KindError
)

// APIError is the error object attached to upstream error events.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	EventID string `json:"event_id"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s (%s)", e.Message, e.Code)
	}
	return "realtime: " + e.Message
}

// ServerEvent is one parsed upstream message.
type ServerEvent struct {
	Kind  Kind
	Type  string
	Delta string // base64 audio frame for audio delta events
	Err   *APIError
	Raw   json.RawMessage
}

// ParseServerEvent decodes a raw upstream message into its variant. Messages
// of unknown type are returned as KindOther so the caller can log them.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var raw struct {
		Type  string    `json:"type"`
		Delta string    `json:"delta"`
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return ServerEvent{}, fmt.Errorf("realtime: parse event: %w", err)
	}

	ev := ServerEvent{Type: raw.Type, Raw: data}
	switch {
	case raw.Type == TypeError || raw.Error != nil:
		ev.Kind = KindError
		ev.Err = raw.Error
		if ev.Err == nil {
			ev.Err = &APIError{Message: "unspecified upstream error"}
		}
	case raw.Type == TypeSessionCreated:
		ev.Kind = KindSessionCreated
	case raw.Type == TypeSessionUpdated:
		ev.Kind = KindSessionUpdated
	case raw.Type == TypeOutputAudioDelta || raw.Type == TypeAudioDelta:
		ev.Kind = KindAudioDelta
		ev.Delta = raw.Delta
	default:
		ev.Kind = KindOther
	}
	return ev, nil
}
