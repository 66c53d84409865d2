package bridge

import (
	"sync"
	"time"

	"github.com/sebas/voicegate/internal/config"
)

// commitScheduler decides when a session commits its buffered caller audio.
// Two policies exist because the observed deployments disagree on timing:
//
//   - cadence: a recurring timer commits whatever has accumulated. Started
//     lazily on the first forwarded frame, stopped by session teardown.
//   - threshold: no timer; a commit fires inline as soon as the forwarded
//     byte count reaches the configured minimum.
//
// Both defer the empty-buffer guard to Session.commitLocked.
type commitScheduler struct {
	policy    config.CommitPolicy
	interval  time.Duration
	threshold int
	startOnce sync.Once
}

func newCommitScheduler(cfg *config.Config) *commitScheduler {
	return &commitScheduler{
		policy:    cfg.CommitPolicy,
		interval:  cfg.CommitInterval,
		threshold: cfg.CommitThresholdBytes,
	}
}

// onForward runs after each frame is forwarded upstream. Caller holds s.mu.
func (c *commitScheduler) onForward(s *Session) {
	switch c.policy {
	case config.CommitThreshold:
		if s.bytesSinceCommit >= c.threshold {
			s.commitLocked()
		}
	default:
		c.startOnce.Do(func() {
			go c.run(s)
		})
	}
}

// run is the cadence timer loop. The session context scopes it: teardown
// cancels the context, and commitTick itself refuses to act past READY, so a
// tick racing teardown cannot touch a released peer.
func (c *commitScheduler) run(s *Session) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.commitTick()
		}
	}
}
