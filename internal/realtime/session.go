package realtime

import (
	"encoding/json"
	"fmt"
)

// Audio formats accepted by the realtime service.
const (
	FormatG711ULaw = "g711_ulaw"
	FormatG711ALaw = "g711_alaw"
	FormatPCM16    = "pcm16"
)

// Voice activity detection modes.
const (
	VADServer   = "server_vad"
	VADSemantic = "semantic_vad"
)

// AudioFormat marshals the session audio format field. Older API revisions
// take the short codec name, newer ones take a structured object; the style
// is a deployment knob because the observed service accepts either.
type AudioFormat struct {
	Name   string
	Object bool
}

// MarshalJSON emits either `"g711_ulaw"` or `{"type":"audio/pcmu"}`.
func (f AudioFormat) MarshalJSON() ([]byte, error) {
	if !f.Object {
		return json.Marshal(f.Name)
	}
	switch f.Name {
	case FormatG711ULaw:
		return json.Marshal(map[string]any{"type": "audio/pcmu"})
	case FormatG711ALaw:
		return json.Marshal(map[string]any{"type": "audio/pcma"})
	case FormatPCM16:
		return json.Marshal(map[string]any{"type": "audio/pcm", "rate": 24000})
	default:
		return nil, fmt.Errorf("realtime: no object form for audio format %q", f.Name)
	}
}

// TurnDetection configures service-side voice activity detection.
type TurnDetection struct {
	Type string `json:"type"`
}

// SessionConfig is the session.update payload. It must be acknowledged by the
// service before any audio is appended.
type SessionConfig struct {
	Modalities        []string       `json:"modalities,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	Voice             string         `json:"voice,omitempty"`
	InputAudioFormat  *AudioFormat   `json:"input_audio_format,omitempty"`
	OutputAudioFormat *AudioFormat   `json:"output_audio_format,omitempty"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
}
