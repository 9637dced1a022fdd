// ABOUTME: Core data types for call monitoring sessions
// ABOUTME: Defines CallSession, AnalysisResult, Alert, and Summary

package session

import (
	"errors"
	"time"
)

// Registry errors
var (
	// ErrSessionNotFound is returned when a call id names no registered session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateCallID is returned when creating a session with an id that
	// is already registered. Call ids are unique for the process lifetime, so
	// a completed session's id collides too.
	ErrDuplicateCallID = errors.New("call id already registered")

	// ErrSessionCompleted is returned when recording against a finalized session.
	ErrSessionCompleted = errors.New("session already completed")

	// ErrAlreadyFinalized is returned when finalizing a session twice.
	ErrAlreadyFinalized = errors.New("session already finalized")
)

// Status is the lifecycle state of a call session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Severity classifies how strongly a chunk scored as phishing.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnalysisResult is the outcome of transcribing and classifying one audio
// chunk. Identified by (CallID, ChunkNumber). Immutable once produced.
type AnalysisResult struct {
	CallID      string    `json:"call_id"`
	ChunkNumber int       `json:"chunk_number"`
	Transcript  string    `json:"transcript"`
	RiskScore   float64   `json:"risk_score"`   // phishing probability in [0, 1]
	ArtifactURL string    `json:"artifact_url"` // opaque location from the storage collaborator
	ReceivedAt  time.Time `json:"received_at"`
}

// Alert records a chunk whose risk score crossed an alerting threshold.
// Identified by (CallID, ChunkNumber). Immutable once produced.
type Alert struct {
	CallID      string    `json:"call_id"`
	ChunkNumber int       `json:"chunk_number"`
	Severity    Severity  `json:"severity"`
	RiskScore   float64   `json:"risk_score"`
	Snippet     string    `json:"snippet"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// CallSession is the accumulated state for one monitored phone call.
//
// Results are kept in arrival order, not chunk-number order: chunks may
// arrive out of order, be dropped, or be delivered more than once.
// Duplicate chunk numbers are accepted and both occurrences kept.
type CallSession struct {
	CallID       string           `json:"call_id"`
	Status       Status           `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	EndedAt      time.Time        `json:"ended_at,omitzero"` // zero until completed
	LastActivity time.Time        `json:"last_activity"`
	Results      []AnalysisResult `json:"results"`
	Alerts       []Alert          `json:"alerts"`
}

// Summary is the terminal report computed when a session is finalized.
type Summary struct {
	CallID           string        `json:"call_id"`
	TotalChunks      int           `json:"total_chunks"`
	AverageRiskScore float64       `json:"average_risk_score"` // 0 when TotalChunks is 0
	AlertCount       int           `json:"alert_count"`
	Duration         time.Duration `json:"duration"`
}

// clone returns a deep copy of the session so callers never hold a mutable
// reference into registry-owned state.
func (s *CallSession) clone() *CallSession {
	cp := *s
	cp.Results = make([]AnalysisResult, len(s.Results))
	copy(cp.Results, s.Results)
	cp.Alerts = make([]Alert, len(s.Alerts))
	copy(cp.Alerts, s.Alerts)
	return &cp
}

// summarize computes the terminal Summary for a session.
func (s *CallSession) summarize() *Summary {
	avg := 0.0
	if len(s.Results) > 0 {
		total := 0.0
		for _, r := range s.Results {
			total += r.RiskScore
		}
		avg = total / float64(len(s.Results))
	}
	return &Summary{
		CallID:           s.CallID,
		TotalChunks:      len(s.Results),
		AverageRiskScore: avg,
		AlertCount:       len(s.Alerts),
		Duration:         s.EndedAt.Sub(s.CreatedAt),
	}
}
