// ABOUTME: Process-wide registry mapping call ids to live CallSessions
// ABOUTME: Owns session creation, per-call serialized mutation, and finalization

package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// entry pairs a session with its own mutex so mutations on one call never
// block mutations on another. The registry map itself is guarded separately.
type entry struct {
	mu      sync.Mutex
	session *CallSession
}

// Registry is the single source of truth for call-session state. Sessions are
// exclusively owned by the registry; all reads return deep copies.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	logger   *slog.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*entry),
		logger:   logger.With("component", "registry"),
	}
}

// Create registers a new active session. If callID is empty, a unique id is
// generated (timestamp plus random suffix). Returns ErrDuplicateCallID if the
// supplied id is already registered, active or completed.
func (r *Registry) Create(callID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if callID == "" {
		callID = r.generateCallIDLocked()
	} else if _, exists := r.sessions[callID]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateCallID, callID)
	}

	now := time.Now()
	r.sessions[callID] = &entry{
		session: &CallSession{
			CallID:       callID,
			Status:       StatusActive,
			CreatedAt:    now,
			LastActivity: now,
		},
	}

	r.logger.Info("call session created", "call_id", callID)
	return callID, nil
}

// generateCallIDLocked produces an id unique among registered sessions.
// Caller must hold r.mu.
func (r *Registry) generateCallIDLocked() string {
	for {
		id := fmt.Sprintf("call_%s_%s",
			time.Now().UTC().Format("20060102_150405"),
			uuid.New().String()[:8])
		if _, exists := r.sessions[id]; !exists {
			return id
		}
	}
}

// Get returns a snapshot of the session, or ErrSessionNotFound.
func (r *Registry) Get(callID string) (*CallSession, error) {
	e, err := r.lookup(callID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.clone(), nil
}

// CheckActive returns nil when the call id names an active session,
// ErrSessionCompleted when it was finalized, and ErrSessionNotFound otherwise.
func (r *Registry) CheckActive(callID string) error {
	e, err := r.lookup(callID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status != StatusActive {
		return fmt.Errorf("%w: %s", ErrSessionCompleted, callID)
	}
	return nil
}

// Record appends an AnalysisResult to the session in arrival order. Duplicate
// chunk numbers are accepted and both kept (at-least-once chunk delivery).
// Returns ErrSessionCompleted if the session was finalized, including for
// chunks still in flight when finalize ran.
func (r *Registry) Record(callID string, result AnalysisResult) error {
	e, err := r.lookup(callID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != StatusActive {
		return fmt.Errorf("%w: %s", ErrSessionCompleted, callID)
	}

	e.session.Results = append(e.session.Results, result)
	e.session.LastActivity = time.Now()

	r.logger.Debug("analysis result recorded",
		"call_id", callID,
		"chunk_number", result.ChunkNumber,
		"risk_score", result.RiskScore)
	return nil
}

// RecordAlert appends an Alert to the session's alert sequence. The alert
// must be recorded here before it is broadcast so late subscribers querying
// session state and live subscribers never disagree about its existence.
func (r *Registry) RecordAlert(callID string, alert Alert) error {
	e, err := r.lookup(callID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != StatusActive {
		return fmt.Errorf("%w: %s", ErrSessionCompleted, callID)
	}

	e.session.Alerts = append(e.session.Alerts, alert)

	r.logger.Info("alert recorded",
		"call_id", callID,
		"chunk_number", alert.ChunkNumber,
		"severity", alert.Severity,
		"risk_score", alert.RiskScore)
	return nil
}

// Finalize transitions the session to completed, stamps the end time, and
// returns its Summary. Finalizing twice fails with ErrAlreadyFinalized.
func (r *Registry) Finalize(callID string) (*Summary, error) {
	e, err := r.lookup(callID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status == StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyFinalized, callID)
	}

	e.session.Status = StatusCompleted
	e.session.EndedAt = time.Now()

	summary := e.session.summarize()
	r.logger.Info("call session finalized",
		"call_id", callID,
		"total_chunks", summary.TotalChunks,
		"alert_count", summary.AlertCount,
		"duration", summary.Duration)
	return summary, nil
}

// ListActive returns snapshots of all sessions currently in status active.
func (r *Registry) ListActive() []*CallSession {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	active := make([]*CallSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.session.Status == StatusActive {
			active = append(active, e.session.clone())
		}
		e.mu.Unlock()
	}
	return active
}

// IdleActive returns the ids of active sessions with no activity since the
// cutoff. Used by the coordinator's reaper to finalize abandoned calls.
func (r *Registry) IdleActive(cutoff time.Time) []string {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var idle []string
	for _, e := range entries {
		e.mu.Lock()
		if e.session.Status == StatusActive && e.session.LastActivity.Before(cutoff) {
			idle = append(idle, e.session.CallID)
		}
		e.mu.Unlock()
	}
	return idle
}

// lookup fetches the entry for a call id under the registry read lock.
func (r *Registry) lookup(callID string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[callID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, callID)
	}
	return e, nil
}
