// ABOUTME: Orchestrates chunk ingestion, session state, alerting, and broadcast
// ABOUTME: Serializes the per-chunk record/evaluate/publish pipeline per call

package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/krishna-hasare13/voice-phishing-detection/internal/alert"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/broadcast"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/ingest"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/session"
)

// DefaultReapInterval paces the abandoned-session sweep when a TTL is set.
const DefaultReapInterval = 30 * time.Second

// Config wires the coordinator's collaborators. Registry, Ingestor, Alerts,
// and Hub are required; SessionTTL of zero disables the reaper.
type Config struct {
	Registry *session.Registry
	Ingestor *ingest.Ingestor
	Alerts   *alert.Engine
	Hub      *broadcast.Hub

	// SessionTTL force-finalizes active sessions idle this long. Zero
	// disables reaping and active sessions live until finalized.
	SessionTTL   time.Duration
	ReapInterval time.Duration

	Logger *slog.Logger
}

// Coordinator is the component the ingress layer invokes. It owns no business
// logic beyond ordering: ingest, record, evaluate, record alert, publish. The
// lower components depend only on data types, never on each other.
type Coordinator struct {
	registry *session.Registry
	ingestor *ingest.Ingestor
	alerts   *alert.Engine
	hub      *broadcast.Hub

	sessionTTL   time.Duration
	reapInterval time.Duration
	logger       *slog.Logger

	// callMu serializes the mutation+publish phase per call so one chunk's
	// record/evaluate/publish completes before the next chunk for the same
	// call mutates the session. Unrelated calls never contend.
	mu     sync.Mutex
	callMu map[string]*sync.Mutex
}

// New creates a coordinator from the config.
func New(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reapInterval := cfg.ReapInterval
	if reapInterval <= 0 {
		reapInterval = DefaultReapInterval
	}
	return &Coordinator{
		registry:     cfg.Registry,
		ingestor:     cfg.Ingestor,
		alerts:       cfg.Alerts,
		hub:          cfg.Hub,
		sessionTTL:   cfg.SessionTTL,
		reapInterval: reapInterval,
		logger:       logger.With("component", "coordinator"),
		callMu:       make(map[string]*sync.Mutex),
	}
}

// StartCall creates a session (generating an id when callID is empty) and
// broadcasts CallStarted to anyone already watching that id.
func (c *Coordinator) StartCall(callID string) (string, error) {
	id, err := c.registry.Create(callID)
	if err != nil {
		return "", err
	}
	c.hub.Publish(id, broadcast.NewCallStarted(id))
	return id, nil
}

// IngestChunk runs one chunk through the full pipeline and returns its
// result and the alert it triggered, if any.
//
// The ingest phase (artifact write + analysis) runs concurrently across
// chunks of the same call; only the mutation+publish phase is serialized per
// call. A chunk whose analysis fails is never recorded, so the caller may
// retry with the same chunk number.
func (c *Coordinator) IngestChunk(ctx context.Context, callID string, chunkNumber int, audio []byte) (*session.AnalysisResult, *session.Alert, error) {
	result, err := c.ingestor.Ingest(ctx, callID, chunkNumber, audio)
	if err != nil {
		return nil, nil, err
	}

	lock := c.lockFor(callID)
	lock.Lock()
	defer lock.Unlock()

	// The session may have been finalized while analysis was in flight;
	// late records are rejected, not queued.
	if err := c.registry.Record(callID, *result); err != nil {
		return nil, nil, err
	}

	triggered := c.alerts.Evaluate(*result)
	if triggered != nil {
		// The alert must be in the session's alert list before any
		// subscriber sees the broadcast.
		if err := c.registry.RecordAlert(callID, *triggered); err != nil {
			return nil, nil, err
		}
	}

	c.hub.Publish(callID, broadcast.NewAnalysisUpdate(*result))
	if triggered != nil {
		c.hub.Publish(callID, broadcast.NewPhishingAlert(*triggered))
	}

	return result, triggered, nil
}

// FinalizeCall completes the session and broadcasts CallEnded with its
// summary. Chunks still in flight will fail with ErrSessionCompleted.
func (c *Coordinator) FinalizeCall(callID string) (*session.Summary, error) {
	lock := c.lockFor(callID)
	lock.Lock()
	defer lock.Unlock()

	summary, err := c.registry.Finalize(callID)
	if err != nil {
		return nil, err
	}
	c.hub.Publish(callID, broadcast.NewCallEnded(*summary))
	return summary, nil
}

// Subscribe attaches an observer to a call's event stream. If the call
// already has recorded state, the subscriber first receives a
// connection_established snapshot; everything after is live-only. Subscribing
// to a not-yet-started call is allowed, so an observer can catch CallStarted.
func (c *Coordinator) Subscribe(ctx context.Context, callID string) *broadcast.Subscription {
	sub := c.hub.Subscribe(ctx, callID)

	snapshot, err := c.registry.Get(callID)
	if err == nil && hasRecordedState(snapshot) {
		c.hub.SendSnapshot(sub, broadcast.NewSnapshot(snapshot))
	}
	return sub
}

// Unsubscribe detaches an observer.
func (c *Coordinator) Unsubscribe(sub *broadcast.Subscription) {
	c.hub.Unsubscribe(sub)
}

// CallStatus returns a snapshot of the session's current state.
func (c *Coordinator) CallStatus(callID string) (*session.CallSession, error) {
	return c.registry.Get(callID)
}

// ListActiveCalls returns snapshots of all active sessions.
func (c *Coordinator) ListActiveCalls() []*session.CallSession {
	return c.registry.ListActive()
}

// Run drives the session reaper until ctx is cancelled. With SessionTTL of
// zero it simply blocks, keeping the lifecycle shape uniform for the caller.
func (c *Coordinator) Run(ctx context.Context) {
	if c.sessionTTL <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(c.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.reapIdleSessions(now)
		}
	}
}

// reapIdleSessions force-finalizes active sessions with no activity for a
// full TTL, broadcasting CallEnded so observers see the termination.
func (c *Coordinator) reapIdleSessions(now time.Time) {
	for _, callID := range c.registry.IdleActive(now.Add(-c.sessionTTL)) {
		if _, err := c.FinalizeCall(callID); err != nil {
			// Lost the race with an explicit finalize; nothing to do.
			continue
		}
		c.logger.Info("reaped abandoned call session",
			"call_id", callID,
			"ttl", c.sessionTTL)
	}
}

// lockFor returns the per-call pipeline mutex, creating it on first use.
// Entries are retained for the process lifetime, matching the registry.
func (c *Coordinator) lockFor(callID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.callMu[callID]
	if !ok {
		lock = &sync.Mutex{}
		c.callMu[callID] = lock
	}
	return lock
}

// hasRecordedState reports whether a late subscriber needs a snapshot.
func hasRecordedState(s *session.CallSession) bool {
	return len(s.Results) > 0 || len(s.Alerts) > 0 || s.Status == session.StatusCompleted
}
