// Package events defines the call lifecycle events voicegate emits for
// observability. Events are published to a pluggable Publisher; the default
// deployment logs them, a broker-backed publisher can be dropped in without
// touching the bridge.
package events

import (
	"context"
	"time"
)

// EventType identifies the event variant.
type EventType string

const (
	CallStarted EventType = "call.started"
	CallEnded   EventType = "call.ended"
)

// Event is anything that can be published.
type Event interface {
	Subject() string
}

// BaseEvent carries the fields common to all call events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	EventTime time.Time `json:"event_time"`
	SessionID string    `json:"session_id"`
	StreamSid string    `json:"stream_sid,omitempty"`
	CallSid   string    `json:"call_sid,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
}

// CallStartedEvent is emitted when the provider stream starts.
type CallStartedEvent struct {
	BaseEvent
}

// Subject implements Event.
func (e *CallStartedEvent) Subject() string {
	return CallSubject(e.StreamSid, SubjectCallStarted)
}

// CallEndedEvent is emitted once per session after teardown completes.
type CallEndedEvent struct {
	BaseEvent
	Reason         string `json:"reason"`
	FramesIn       int64  `json:"frames_in"`
	FramesOut      int64  `json:"frames_out"`
	CommitsIssued  int64  `json:"commits_issued"`
	TalkDurationMs int64  `json:"talk_duration_ms"`
}

// Subject implements Event.
func (e *CallEndedEvent) Subject() string {
	return CallSubject(e.StreamSid, SubjectCallEnded)
}

// Publisher delivers events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
