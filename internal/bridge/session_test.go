package bridge

import (
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zaf/g711"

	"github.com/sebas/voicegate/internal/config"
	"github.com/sebas/voicegate/internal/realtime"
)

type fakeUpstream struct {
	mu        sync.Mutex
	updates   []realtime.SessionConfig
	appends   []string
	commits   int
	responses int
	closed    int
	appendErr error
}

func (f *fakeUpstream) UpdateSession(cfg realtime.SessionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, cfg)
	return nil
}

func (f *fakeUpstream) AppendAudio(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends = append(f.appends, payload)
	return nil
}

func (f *fakeUpstream) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeUpstream) CreateResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses++
	return nil
}

func (f *fakeUpstream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeUpstream) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

type sentMedia struct {
	streamSid string
	payload   string
}

type fakeDownstream struct {
	mu     sync.Mutex
	media  []sentMedia
	closed int
}

func (f *fakeDownstream) SendMedia(streamSid, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, sentMedia{streamSid, payload})
	return nil
}

func (f *fakeDownstream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

var (
	_ Upstream   = (*fakeUpstream)(nil)
	_ Downstream = (*fakeDownstream)(nil)
)

// testConfig uses the threshold policy with an unreachable threshold so that
// commits only happen where a test asks for them.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.CommitPolicy = config.CommitThreshold
	cfg.CommitThresholdBytes = 1 << 30
	return cfg
}

func frameOfSize(n int) string {
	raw := make([]byte, n)
	for i := range raw {
		raw[i] = byte(i)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func startJSON(sid string) []byte {
	return []byte(fmt.Sprintf(`{"event":"start","start":{"streamSid":"%s","callSid":"CA%s"}}`, sid, sid))
}

func mediaJSON(payload string) []byte {
	return []byte(fmt.Sprintf(`{"event":"media","media":{"payload":"%s"}}`, payload))
}

func stopJSON() []byte {
	return []byte(`{"event":"stop"}`)
}

func sessionUpdated() realtime.ServerEvent {
	return realtime.ServerEvent{Kind: realtime.KindSessionUpdated, Type: realtime.TypeSessionUpdated}
}

func readySession(t *testing.T, cfg *config.Config) (*Session, *fakeUpstream, *fakeDownstream) {
	t.Helper()
	up := &fakeUpstream{}
	down := &fakeDownstream{}
	s := NewSession(cfg, down, nil)
	if err := s.AttachUpstream(up); err != nil {
		t.Fatalf("AttachUpstream: %v", err)
	}
	s.HandleDownstream(startJSON("MZ111"))
	s.HandleUpstream(sessionUpdated())
	if got := s.Phase(); got != PhaseReady {
		t.Fatalf("phase = %v, want ready", got)
	}
	return s, up, down
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestQueuedAudioDrainsInOrder(t *testing.T) {
	up := &fakeUpstream{}
	down := &fakeDownstream{}
	s := NewSession(testConfig(), down, nil)

	if err := s.AttachUpstream(up); err != nil {
		t.Fatalf("AttachUpstream: %v", err)
	}
	if got := s.Phase(); got != PhaseConfiguring {
		t.Fatalf("phase = %v, want configuring", got)
	}

	s.HandleDownstream(startJSON("CA123"))

	frames := []string{frameOfSize(160), frameOfSize(320), frameOfSize(80)}
	for _, f := range frames {
		s.HandleDownstream(mediaJSON(f))
	}

	// Nothing may be forwarded before the configuration is acknowledged.
	if len(up.appends) != 0 {
		t.Fatalf("forwarded %d frames before session.updated", len(up.appends))
	}
	if len(s.pending) != 3 {
		t.Fatalf("pending = %d, want 3", len(s.pending))
	}

	s.HandleUpstream(sessionUpdated())

	if len(up.appends) != 3 {
		t.Fatalf("appends = %d, want 3", len(up.appends))
	}
	for i, f := range frames {
		if up.appends[i] != f {
			t.Errorf("append[%d] out of order", i)
		}
	}
	if len(s.pending) != 0 {
		t.Errorf("pending not drained, %d left", len(s.pending))
	}
	if want := 160 + 320 + 80; s.bytesSinceCommit != want {
		t.Errorf("bytesSinceCommit = %d, want %d", s.bytesSinceCommit, want)
	}
	if up.commits != 0 {
		t.Errorf("commits = %d, want 0", up.commits)
	}
}

func TestDrainHappensOnlyOnce(t *testing.T) {
	s, up, _ := readySession(t, testConfig())
	s.HandleDownstream(mediaJSON(frameOfSize(100)))

	// A duplicate acknowledgment must not replay anything.
	s.HandleUpstream(sessionUpdated())
	if len(up.appends) != 1 {
		t.Fatalf("appends = %d, want 1", len(up.appends))
	}
}

func TestThresholdCommit(t *testing.T) {
	cfg := testConfig()
	cfg.CommitThresholdBytes = 800
	s, up, _ := readySession(t, cfg)

	s.HandleDownstream(mediaJSON(frameOfSize(500)))
	if up.commits != 0 {
		t.Fatalf("commit fired below threshold")
	}
	if s.bytesSinceCommit != 500 {
		t.Fatalf("bytesSinceCommit = %d, want 500", s.bytesSinceCommit)
	}

	s.HandleDownstream(mediaJSON(frameOfSize(400)))
	if up.commits != 1 {
		t.Fatalf("commits = %d, want 1 after crossing 800", up.commits)
	}
	if s.bytesSinceCommit != 0 {
		t.Fatalf("counter not reset, got %d", s.bytesSinceCommit)
	}

	// The next small frame starts a fresh span without another commit.
	s.HandleDownstream(mediaJSON(frameOfSize(100)))
	if up.commits != 1 {
		t.Errorf("commits = %d, want still 1", up.commits)
	}
}

func TestMuLawFrameByteAccounting(t *testing.T) {
	// A realistic frame: 20ms of 8kHz mu-law produced from 16-bit PCM.
	pcm := make([]byte, 320)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = byte(i)
		pcm[i+1] = byte(i >> 3)
	}
	ulaw := g711.EncodeUlaw(pcm)
	payload := base64.StdEncoding.EncodeToString(ulaw)

	s, _, _ := readySession(t, testConfig())
	s.HandleDownstream(mediaJSON(payload))

	if s.bytesSinceCommit != len(ulaw) {
		t.Errorf("bytesSinceCommit = %d, want %d", s.bytesSinceCommit, len(ulaw))
	}
}

func TestStopIssuesFinalCommit(t *testing.T) {
	s, up, _ := readySession(t, testConfig())
	s.HandleDownstream(mediaJSON(frameOfSize(100)))

	s.HandleDownstream(stopJSON())

	if up.commits != 1 {
		t.Errorf("commits = %d, want exactly 1 final commit", up.commits)
	}
	if up.closed != 1 {
		t.Errorf("upstream closed %d times, want 1", up.closed)
	}
	if got := s.Phase(); got != PhaseClosing {
		t.Errorf("phase = %v, want closing", got)
	}
}

func TestStopWithoutAudioSkipsCommit(t *testing.T) {
	s, up, _ := readySession(t, testConfig())

	s.HandleDownstream(stopJSON())

	if up.commits != 0 {
		t.Errorf("committed an empty buffer on stop")
	}
	if up.closed != 1 {
		t.Errorf("upstream closed %d times, want 1", up.closed)
	}
}

func TestAgentAudioTaggedWithStreamSid(t *testing.T) {
	s, _, down := readySession(t, testConfig())

	s.HandleUpstream(realtime.ServerEvent{Kind: realtime.KindAudioDelta, Delta: frameOfSize(160)})

	if len(down.media) != 1 {
		t.Fatalf("media = %d, want 1", len(down.media))
	}
	if down.media[0].streamSid != "MZ111" {
		t.Errorf("streamSid = %q, want MZ111", down.media[0].streamSid)
	}
}

func TestAgentAudioDroppedWithoutStreamSid(t *testing.T) {
	up := &fakeUpstream{}
	down := &fakeDownstream{}
	s := NewSession(testConfig(), down, nil)
	if err := s.AttachUpstream(up); err != nil {
		t.Fatalf("AttachUpstream: %v", err)
	}
	// Ready without a start message: no stream identifier to tag with.
	s.HandleUpstream(sessionUpdated())

	s.HandleUpstream(realtime.ServerEvent{Kind: realtime.KindAudioDelta, Delta: frameOfSize(160)})

	if len(down.media) != 0 {
		t.Errorf("untagged frame was forwarded, want dropped")
	}
}

func TestUpstreamErrorDoesNotEndSession(t *testing.T) {
	s, up, down := readySession(t, testConfig())

	s.HandleUpstream(realtime.ServerEvent{
		Kind: realtime.KindError,
		Type: realtime.TypeError,
		Err:  &realtime.APIError{Code: "rate_limit", Message: "slow down"},
	})

	if got := s.Phase(); got != PhaseReady {
		t.Errorf("phase = %v, want ready after transient error", got)
	}
	if up.closed != 0 || down.closed != 0 {
		t.Errorf("error event closed a peer (up=%d down=%d)", up.closed, down.closed)
	}
}

func TestTeardownIdempotent(t *testing.T) {
	s, up, down := readySession(t, testConfig())

	s.Teardown("downstream closed")
	s.Teardown("upstream closed")
	s.Teardown("shutdown")

	if up.closed != 1 {
		t.Errorf("upstream closed %d times, want 1", up.closed)
	}
	if down.closed != 1 {
		t.Errorf("downstream closed %d times, want 1", down.closed)
	}
	if got := s.Phase(); got != PhaseClosed {
		t.Errorf("phase = %v, want closed", got)
	}

	select {
	case <-s.Done():
	default:
		t.Errorf("Done() not closed after teardown")
	}
}

func TestStopThenTeardownClosesUpstreamOnce(t *testing.T) {
	s, up, _ := readySession(t, testConfig())
	s.HandleDownstream(mediaJSON(frameOfSize(100)))

	s.HandleDownstream(stopJSON())
	s.Teardown("downstream closed")

	if up.closed != 1 {
		t.Errorf("upstream closed %d times, want 1", up.closed)
	}
}

func TestMediaAfterTeardownDropped(t *testing.T) {
	s, up, _ := readySession(t, testConfig())
	s.Teardown("downstream closed")

	s.HandleDownstream(mediaJSON(frameOfSize(100)))

	if len(up.appends) != 0 {
		t.Errorf("frame forwarded after teardown")
	}
}

func TestStartResetsCommitCounter(t *testing.T) {
	s, _, _ := readySession(t, testConfig())
	s.HandleDownstream(mediaJSON(frameOfSize(100)))
	if s.bytesSinceCommit == 0 {
		t.Fatal("expected uncommitted bytes before restart")
	}

	s.HandleDownstream(startJSON("MZ222"))

	if s.bytesSinceCommit != 0 {
		t.Errorf("bytesSinceCommit = %d after new start, want 0", s.bytesSinceCommit)
	}
	if got := s.StreamSid(); got != "MZ222" {
		t.Errorf("streamSid = %q, want MZ222", got)
	}
}

func TestMalformedDownstreamDropped(t *testing.T) {
	s, up, _ := readySession(t, testConfig())

	s.HandleDownstream([]byte(`{"event":"media"`))
	s.HandleDownstream([]byte(`{"event":"media","media":{}}`))
	s.HandleDownstream([]byte(`{"event":"media","media":{"payload":"%%%not-base64%%%"}}`))

	if len(up.appends) != 0 {
		t.Errorf("malformed frames were forwarded")
	}
	if got := s.Phase(); got != PhaseReady {
		t.Errorf("phase = %v, want ready", got)
	}
}

func TestGreetFirst(t *testing.T) {
	cfg := testConfig()
	cfg.GreetFirst = true
	_, up, _ := readySession(t, cfg)
	if up.responses != 1 {
		t.Errorf("responses = %d, want 1 initial agent turn", up.responses)
	}

	_, up2, _ := readySession(t, testConfig())
	if up2.responses != 0 {
		t.Errorf("responses = %d, want 0 when greet-first is off", up2.responses)
	}
}

func TestCadenceCommitsOnlyDirtyBuffers(t *testing.T) {
	cfg := testConfig()
	cfg.CommitPolicy = config.CommitCadence
	cfg.CommitInterval = 10 * time.Millisecond
	s, up, _ := readySession(t, cfg)

	s.HandleDownstream(mediaJSON(frameOfSize(100)))

	waitFor(t, "first cadence commit", func() bool { return up.commitCount() == 1 })

	// No new audio: the ticker keeps firing but must not commit again.
	time.Sleep(100 * time.Millisecond)
	if got := up.commitCount(); got != 1 {
		t.Fatalf("commits = %d, want 1 (empty-buffer commit)", got)
	}

	s.HandleDownstream(mediaJSON(frameOfSize(100)))
	waitFor(t, "second cadence commit", func() bool { return up.commitCount() == 2 })

	s.Teardown("downstream closed")
	final := up.commitCount()
	time.Sleep(50 * time.Millisecond)
	if got := up.commitCount(); got != final {
		t.Errorf("commit fired after teardown: %d -> %d", final, got)
	}
}

func TestSessionConfigReflectsSettings(t *testing.T) {
	cfg := testConfig()
	cfg.Voice = "echo"
	cfg.Instructions = "order a pizza"
	up := &fakeUpstream{}
	s := NewSession(cfg, &fakeDownstream{}, nil)
	if err := s.AttachUpstream(up); err != nil {
		t.Fatalf("AttachUpstream: %v", err)
	}

	if len(up.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(up.updates))
	}
	sc := up.updates[0]
	if sc.Voice != "echo" {
		t.Errorf("voice = %q", sc.Voice)
	}
	if sc.Instructions != "order a pizza" {
		t.Errorf("instructions = %q", sc.Instructions)
	}
	if sc.TurnDetection == nil || sc.TurnDetection.Type != "server_vad" {
		t.Errorf("turn detection = %+v, want server_vad", sc.TurnDetection)
	}
	if sc.InputAudioFormat == nil || sc.InputAudioFormat.Name != realtime.FormatG711ULaw {
		t.Errorf("input format = %+v, want g711_ulaw", sc.InputAudioFormat)
	}
}
