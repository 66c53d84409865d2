// Package telephony implements the provider-side Media Streams wire protocol:
// JSON messages carrying base64-encoded 8kHz mu-law audio frames over a
// WebSocket connection.
package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Kind identifies the downstream message variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnected
	KindStart
	KindMedia
	KindStop
	KindMark
)

func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "connected"
	case KindStart:
		return "start"
	case KindMedia:
		return "media"
	case KindStop:
		return "stop"
	case KindMark:
		return "mark"
	default:
		return "unknown"
	}
}

// Message is one decoded downstream message. The discriminant is decoded once
// at the boundary; everything past this point switches on Kind.
type Message struct {
	Kind       Kind
	Event      string // raw discriminant, kept for logging unknown variants
	StreamSid  string
	CallSid    string
	AccountSid string
	Payload    string // base64 audio frame, media messages only
}

// envelope mirrors the provider JSON layout.
type envelope struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Start     *struct {
		StreamSid  string `json:"streamSid"`
		AccountSid string `json:"accountSid"`
		CallSid    string `json:"callSid"`
	} `json:"start"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// Decode parses one raw downstream frame into a Message.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("telephony: decode: %w", err)
	}

	msg := Message{Event: env.Event, StreamSid: env.StreamSid}
	switch env.Event {
	case "connected":
		msg.Kind = KindConnected
	case "start":
		msg.Kind = KindStart
		if env.Start != nil {
			if env.Start.StreamSid != "" {
				msg.StreamSid = env.Start.StreamSid
			}
			msg.CallSid = env.Start.CallSid
			msg.AccountSid = env.Start.AccountSid
		}
		if msg.StreamSid == "" {
			return Message{}, fmt.Errorf("telephony: start message without streamSid")
		}
	case "media":
		msg.Kind = KindMedia
		if env.Media == nil || env.Media.Payload == "" {
			return Message{}, fmt.Errorf("telephony: media message without payload")
		}
		msg.Payload = env.Media.Payload
	case "stop":
		msg.Kind = KindStop
	case "mark":
		msg.Kind = KindMark
	default:
		msg.Kind = KindUnknown
	}
	return msg, nil
}

// outboundMedia is an agent audio frame sent back to the provider, tagged
// with the stream identifier assigned by the provider at start.
type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

// MediaFrame builds the outbound media message for WriteJSON.
func MediaFrame(streamSid, payload string) any {
	return outboundMedia{
		Event:     "media",
		StreamSid: streamSid,
		Media:     mediaPayload{Payload: payload},
	}
}

// PayloadBytes returns the decoded byte length of a base64 audio frame. The
// bridge only counts bytes; the samples themselves are never inspected.
func PayloadBytes(payload string) (int, error) {
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return 0, fmt.Errorf("telephony: invalid audio payload: %w", err)
	}
	return len(decoded), nil
}
