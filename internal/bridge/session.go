// Package bridge holds the per-call session state machine that relays audio
// between the telephony provider stream and the realtime speech service: it
// queues caller audio until the upstream session is configured, forwards it
// in arrival order afterwards, schedules buffer commits, and tears both peers
// down from whichever side disconnects first.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/voicegate/internal/config"
	"github.com/sebas/voicegate/internal/events"
	"github.com/sebas/voicegate/internal/realtime"
	"github.com/sebas/voicegate/internal/telephony"
)

// Phase is the session lifecycle state.
type Phase int

const (
	PhaseAwaitingUpstream Phase = iota
	PhaseConfiguring
	PhaseReady
	PhaseClosing
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingUpstream:
		return "awaiting_upstream"
	case PhaseConfiguring:
		return "configuring"
	case PhaseReady:
		return "ready"
	case PhaseClosing:
		return "closing"
	case PhaseClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Downstream is the telephony-side peer as seen by a session.
type Downstream interface {
	SendMedia(streamSid, payload string) error
	Close() error
}

// Upstream is the speech-service-side peer as seen by a session.
type Upstream interface {
	UpdateSession(cfg realtime.SessionConfig) error
	AppendAudio(payload string) error
	Commit() error
	CreateResponse() error
	Close() error
}

// Session owns one bridged call: both peer handles, the pending audio queue,
// and the commit bookkeeping. All mutation happens under mu, so a slow peer
// only stalls its own call.
type Session struct {
	ID  string
	cfg *config.Config

	mu               sync.Mutex
	phase            Phase
	streamSid        string
	callSid          string
	pending          []string // base64 frames received before the session is ready, FIFO
	bytesSinceCommit int

	downstream Downstream
	upstream   Upstream
	upClosed   bool
	sched      *commitScheduler

	framesIn  int64
	framesOut int64
	commits   int64
	startedAt time.Time

	builder   *events.Builder
	publisher events.Publisher

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// NewSession creates a session for an accepted downstream connection. The
// session starts in PhaseAwaitingUpstream; audio arriving before the upstream
// acknowledges its configuration is queued, not forwarded.
func NewSession(cfg *config.Config, down Downstream, pub events.Publisher) *Session {
	if pub == nil {
		pub = events.NewNoopPublisher()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         "sess-" + uuid.New().String(),
		cfg:        cfg,
		phase:      PhaseAwaitingUpstream,
		downstream: down,
		startedAt:  time.Now(),
		builder:    events.NewBuilder(""),
		publisher:  pub,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	s.sched = newCommitScheduler(cfg)
	return s
}

// AttachUpstream hands the opened upstream connection to the session and
// sends the configuration message. No audio is forwarded until the service
// acknowledges it with session.updated.
func (s *Session) AttachUpstream(up Upstream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseAwaitingUpstream {
		return nil
	}
	s.upstream = up

	if err := up.UpdateSession(s.sessionConfig()); err != nil {
		return err
	}
	s.phase = PhaseConfiguring
	slog.Debug("[Bridge] configuring upstream session", "session_id", s.ID)
	return nil
}

func (s *Session) sessionConfig() realtime.SessionConfig {
	format := &realtime.AudioFormat{
		Name:   realtime.FormatG711ULaw,
		Object: s.cfg.FormatStyle == config.FormatStyleObject,
	}
	return realtime.SessionConfig{
		Modalities:        []string{"text", "audio"},
		Instructions:      s.cfg.Instructions,
		Voice:             s.cfg.Voice,
		InputAudioFormat:  format,
		OutputAudioFormat: format,
		TurnDetection:     &realtime.TurnDetection{Type: s.cfg.TurnDetection},
	}
}

// HandleDownstream processes one raw provider frame. Malformed messages are
// dropped and logged; they never end the call.
func (s *Session) HandleDownstream(data []byte) {
	msg, err := telephony.Decode(data)
	if err != nil {
		slog.Debug("[Bridge] dropping malformed downstream message", "session_id", s.ID, "error", err)
		return
	}

	switch msg.Kind {
	case telephony.KindStart:
		s.onStart(msg)
	case telephony.KindMedia:
		s.onMedia(msg.Payload)
	case telephony.KindStop:
		s.onStop()
	case telephony.KindConnected, telephony.KindMark:
		slog.Debug("[Bridge] downstream event", "session_id", s.ID, "event", msg.Event)
	default:
		slog.Debug("[Bridge] unknown downstream event", "session_id", s.ID, "event", msg.Event)
	}
}

func (s *Session) onStart(msg telephony.Message) {
	s.mu.Lock()
	s.streamSid = msg.StreamSid
	s.callSid = msg.CallSid
	// A new stream starts a fresh commit span.
	s.bytesSinceCommit = 0
	s.mu.Unlock()

	slog.Info("[Bridge] stream started",
		"session_id", s.ID,
		"stream_sid", msg.StreamSid,
		"call_sid", msg.CallSid)

	ev := s.builder.CallStarted(s.ID, msg.StreamSid, msg.CallSid)
	if err := s.publisher.Publish(s.ctx, ev); err != nil {
		slog.Debug("[Bridge] event publish failed", "session_id", s.ID, "error", err)
	}
}

func (s *Session) onMedia(payload string) {
	n, err := telephony.PayloadBytes(payload)
	if err != nil {
		slog.Debug("[Bridge] dropping undecodable audio frame", "session_id", s.ID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.framesIn++
	switch s.phase {
	case PhaseAwaitingUpstream, PhaseConfiguring:
		s.pending = append(s.pending, payload)
	case PhaseReady:
		s.forwardLocked(payload, n)
	default:
		// Closing or closed: the upstream buffer is gone, drop the frame.
	}
}

// forwardLocked sends one frame upstream and runs the commit policy.
// Caller holds mu.
func (s *Session) forwardLocked(payload string, n int) {
	if err := s.upstream.AppendAudio(payload); err != nil {
		slog.Warn("[Bridge] audio append failed", "session_id", s.ID, "error", err)
		return
	}
	s.bytesSinceCommit += n
	s.sched.onForward(s)
}

// commitLocked issues a commit iff uncommitted audio exists. The service
// rejects commits on an empty buffer, so this is the only commit path.
// Caller holds mu.
func (s *Session) commitLocked() {
	if s.bytesSinceCommit == 0 || s.upstream == nil {
		return
	}
	if err := s.upstream.Commit(); err != nil {
		slog.Warn("[Bridge] commit failed", "session_id", s.ID, "error", err)
		return
	}
	s.commits++
	s.bytesSinceCommit = 0
}

// commitTick is invoked by the cadence timer. It must be a no-op once the
// session is past READY so a late tick can never touch a torn-down peer.
func (s *Session) commitTick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseReady {
		return
	}
	s.commitLocked()
}

func (s *Session) onStop() {
	s.mu.Lock()
	slog.Info("[Bridge] stream stopped", "session_id", s.ID, "stream_sid", s.streamSid)
	// Flush trailing audio before the upstream goes away.
	s.commitLocked()
	if s.phase != PhaseClosed {
		s.phase = PhaseClosing
	}
	s.mu.Unlock()

	s.closeUpstream()
}

// closeUpstream closes the upstream peer at most once, whether triggered by a
// graceful stop or by teardown.
func (s *Session) closeUpstream() {
	s.mu.Lock()
	up := s.upstream
	alreadyClosed := s.upClosed
	s.upClosed = true
	s.mu.Unlock()

	if up != nil && !alreadyClosed {
		_ = up.Close()
	}
}

// HandleUpstream dispatches one parsed upstream event.
func (s *Session) HandleUpstream(ev realtime.ServerEvent) {
	switch ev.Kind {
	case realtime.KindSessionUpdated:
		s.onSessionUpdated()
	case realtime.KindAudioDelta:
		s.onAudioDelta(ev.Delta)
	case realtime.KindError:
		// Transient upstream errors must not abort an otherwise healthy call.
		code, message := "", ""
		if ev.Err != nil {
			code, message = ev.Err.Code, ev.Err.Message
		}
		slog.Warn("[Bridge] upstream error event",
			"session_id", s.ID,
			"code", code,
			"message", message)
	case realtime.KindSessionCreated:
		slog.Debug("[Bridge] upstream session created", "session_id", s.ID)
	default:
		slog.Debug("[Bridge] upstream event", "session_id", s.ID, "type", ev.Type)
	}
}

// onSessionUpdated is the only trigger for draining the pending queue:
// forwarding audio before the configuration is acknowledged is a protocol
// violation the service rejects.
func (s *Session) onSessionUpdated() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseConfiguring {
		slog.Debug("[Bridge] ignoring session.updated", "session_id", s.ID, "phase", s.phase.String())
		return
	}
	s.phase = PhaseReady

	queued := len(s.pending)
	for _, payload := range s.pending {
		n, err := telephony.PayloadBytes(payload)
		if err != nil {
			continue
		}
		s.forwardLocked(payload, n)
	}
	s.pending = nil

	slog.Info("[Bridge] session ready", "session_id", s.ID, "queued_frames", queued)

	if s.cfg.GreetFirst {
		if err := s.upstream.CreateResponse(); err != nil {
			slog.Warn("[Bridge] initial agent turn failed", "session_id", s.ID, "error", err)
		}
	}
}

func (s *Session) onAudioDelta(payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseClosing || s.phase == PhaseClosed {
		return
	}
	if s.streamSid == "" {
		// Cannot route an untagged frame; dropping is mandatory, queuing is not.
		slog.Debug("[Bridge] dropping agent audio, stream not started", "session_id", s.ID)
		return
	}
	if err := s.downstream.SendMedia(s.streamSid, payload); err != nil {
		slog.Warn("[Bridge] media send failed", "session_id", s.ID, "error", err)
		return
	}
	s.framesOut++
}

// Teardown closes both peers and cancels the commit timer. It is idempotent
// and safe to invoke from either peer's close handler.
func (s *Session) Teardown(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.phase = PhaseClosing
		down := s.downstream
		s.mu.Unlock()

		s.cancel()

		s.closeUpstream()
		if down != nil {
			_ = down.Close()
		}

		s.mu.Lock()
		s.phase = PhaseClosed
		framesIn, framesOut, commits := s.framesIn, s.framesOut, s.commits
		streamSid, callSid := s.streamSid, s.callSid
		s.mu.Unlock()

		talk := time.Since(s.startedAt)
		slog.Info("[Bridge] session closed",
			"session_id", s.ID,
			"stream_sid", streamSid,
			"reason", reason,
			"frames_in", framesIn,
			"frames_out", framesOut,
			"commits", commits,
			"duration", talk.Round(time.Millisecond).String())

		ev := s.builder.CallEnded(s.ID, streamSid, callSid).
			Reason(reason).
			Frames(framesIn, framesOut).
			Commits(commits).
			TalkDuration(talk).
			Build()
		if err := s.publisher.Publish(context.Background(), ev); err != nil {
			slog.Debug("[Bridge] event publish failed", "session_id", s.ID, "error", err)
		}

		close(s.done)
	})
}

// Done is closed once teardown has completed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// StreamSid returns the provider-assigned stream identifier, empty until the
// start message arrives.
func (s *Session) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}
