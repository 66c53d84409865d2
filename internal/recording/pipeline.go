// Package recording implements the post-call workflow: fetch the provider's
// call recording, transcribe it, and post the transcript to a notification
// webhook. One shot per recording, no retries, no state; a failure abandons
// that recording and is surfaced only via logs.
package recording

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sebas/voicegate/internal/config"
)

// Job identifies one completed recording to process.
type Job struct {
	CallSid      string
	RecordingSid string
	RecordingURL string
	Duration     string
}

// Notification is the JSON payload posted to the webhook.
type Notification struct {
	CallSid      string `json:"call_sid"`
	RecordingSid string `json:"recording_sid"`
	Transcript   string `json:"transcript"`
	Duration     string `json:"duration,omitempty"`
}

// Pipeline runs the fetch -> transcribe -> notify sequence.
type Pipeline struct {
	cfg    *config.Config
	http   *http.Client
	openai openai.Client
}

// NewPipeline creates a pipeline. Extra request options are accepted so tests
// can point the transcription client at a fake server.
func NewPipeline(cfg *config.Config, opts ...option.RequestOption) *Pipeline {
	clientOpts := append([]option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}, opts...)
	return &Pipeline{
		cfg:    cfg,
		http:   &http.Client{Timeout: 60 * time.Second},
		openai: openai.NewClient(clientOpts...),
	}
}

// Process runs the full workflow for one recording.
func (p *Pipeline) Process(ctx context.Context, job Job) error {
	audio, err := p.fetch(ctx, job.RecordingURL)
	if err != nil {
		return fmt.Errorf("recording %s: %w", job.RecordingSid, err)
	}

	transcript, err := p.transcribe(ctx, audio)
	if err != nil {
		return fmt.Errorf("recording %s: transcribe: %w", job.RecordingSid, err)
	}

	note := Notification{
		CallSid:      job.CallSid,
		RecordingSid: job.RecordingSid,
		Transcript:   transcript,
		Duration:     job.Duration,
	}
	if err := p.notify(ctx, note); err != nil {
		return fmt.Errorf("recording %s: notify: %w", job.RecordingSid, err)
	}

	slog.Info("[Recording] transcript delivered",
		"call_sid", job.CallSid,
		"recording_sid", job.RecordingSid,
		"transcript_len", len(transcript))
	return nil
}

// fetch downloads the recording media with provider basic auth. Raw mu-law
// responses are converted to PCM WAV; WAV responses pass through.
func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasSuffix(url, ".wav") {
		url += ".wav"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.cfg.TwilioAccountSID, p.cfg.TwilioAuthToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	switch contentType(resp) {
	case "audio/basic", "audio/x-mulaw":
		return ULawToWAV(body), nil
	default:
		return body, nil
	}
}

func (p *Pipeline) transcribe(ctx context.Context, wav []byte) (string, error) {
	transcription, err := p.openai.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModel(p.cfg.TranscribeModel),
		File:  bytes.NewReader(wav),
	})
	if err != nil {
		return "", err
	}
	return transcription.Text, nil
}

func (p *Pipeline) notify(ctx context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.NotifyURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func contentType(resp *http.Response) string {
	ct := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}
