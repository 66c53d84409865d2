package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/sebas/voicegate/internal/recording"
)

// streamTwiML tells the provider to open a media stream back to this process.
func (s *Server) streamTwiML() string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Connect><Stream url="%s" /></Connect></Response>`, s.cfg.StreamURL())
}

// handleIncomingCall answers the provider's incoming-call webhook with TwiML
// that connects the call to the media stream endpoint.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.PublicHost == "" {
		slog.Error("[Gateway] incoming call but DOMAIN is not configured")
		http.Error(w, "stream host not configured", http.StatusServiceUnavailable)
		return
	}

	callSid := r.FormValue("CallSid")
	slog.Info("[Gateway] incoming call", "call_sid", callSid, "from", r.FormValue("From"))

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(s.streamTwiML()))
}

// handleOutboundCall originates a call that connects straight to the media
// stream endpoint. Body: {"to": "+15551234567"}.
func (s *Server) handleOutboundCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.cfg.OriginationEnabled() {
		http.Error(w, "call origination not configured", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		To string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.To == "" {
		http.Error(w, "missing destination number", http.StatusBadRequest)
		return
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: s.cfg.TwilioAccountSID,
		Password: s.cfg.TwilioAuthToken,
	})

	params := &api.CreateCallParams{}
	params.SetTo(body.To)
	params.SetFrom(s.cfg.CallerNumber)
	params.SetTwiml(s.streamTwiML())

	resp, err := client.Api.CreateCall(params)
	if err != nil {
		slog.Error("[Gateway] outbound call failed", "to", body.To, "error", err)
		http.Error(w, "call origination failed", http.StatusBadGateway)
		return
	}

	callSid := ""
	if resp.Sid != nil {
		callSid = *resp.Sid
	}
	slog.Info("[Gateway] outbound call placed", "to", body.To, "call_sid", callSid)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "call_sid": callSid})
}

// handleRecordingStatus accepts the provider's recording status callback and
// kicks the transcription workflow for completed recordings.
func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := r.FormValue("RecordingStatus")
	job := recording.Job{
		CallSid:      r.FormValue("CallSid"),
		RecordingSid: r.FormValue("RecordingSid"),
		RecordingURL: r.FormValue("RecordingUrl"),
		Duration:     r.FormValue("RecordingDuration"),
	}

	slog.Info("[Gateway] recording status",
		"call_sid", job.CallSid,
		"recording_sid", job.RecordingSid,
		"status", status)

	if status == "completed" && s.recordings != nil && job.RecordingURL != "" {
		go func() {
			if err := s.recordings.Process(context.Background(), job); err != nil {
				slog.Error("[Recording] workflow failed", "recording_sid", job.RecordingSid, "error", err)
			}
		}()
	}

	w.WriteHeader(http.StatusNoContent)
}
