package events

import (
	"time"

	"github.com/google/uuid"
)

// Builder constructs call events with consistent defaults.
type Builder struct {
	nodeID string
}

// NewBuilder creates an event builder with global defaults.
func NewBuilder(nodeID string) *Builder {
	return &Builder{nodeID: nodeID}
}

// newBase creates a BaseEvent with common fields populated.
func (b *Builder) newBase(eventType EventType, sessionID, streamSid, callSid string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		EventTime: time.Now().UTC(),
		SessionID: sessionID,
		StreamSid: streamSid,
		CallSid:   callSid,
		NodeID:    b.nodeID,
	}
}

// CallStarted builds a CallStartedEvent.
func (b *Builder) CallStarted(sessionID, streamSid, callSid string) *CallStartedEvent {
	return &CallStartedEvent{
		BaseEvent: b.newBase(CallStarted, sessionID, streamSid, callSid),
	}
}

// CallEndedBuilder constructs CallEndedEvent.
type CallEndedBuilder struct {
	event *CallEndedEvent
}

// CallEnded starts building a CallEndedEvent.
func (b *Builder) CallEnded(sessionID, streamSid, callSid string) *CallEndedBuilder {
	return &CallEndedBuilder{
		event: &CallEndedEvent{
			BaseEvent: b.newBase(CallEnded, sessionID, streamSid, callSid),
		},
	}
}

func (cb *CallEndedBuilder) Reason(reason string) *CallEndedBuilder {
	cb.event.Reason = reason
	return cb
}

func (cb *CallEndedBuilder) Frames(in, out int64) *CallEndedBuilder {
	cb.event.FramesIn = in
	cb.event.FramesOut = out
	return cb
}

func (cb *CallEndedBuilder) Commits(n int64) *CallEndedBuilder {
	cb.event.CommitsIssued = n
	return cb
}

func (cb *CallEndedBuilder) TalkDuration(d time.Duration) *CallEndedBuilder {
	cb.event.TalkDurationMs = d.Milliseconds()
	return cb
}

func (cb *CallEndedBuilder) Build() *CallEndedEvent {
	return cb.event
}
