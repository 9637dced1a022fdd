// ABOUTME: Threshold-based alerting policy for chunk analysis results
// ABOUTME: Maps risk scores to medium/high alerts, no hysteresis across chunks

package alert

import (
	"log/slog"
	"time"

	"github.com/krishna-hasare13/voice-phishing-detection/internal/session"
)

const (
	// DefaultMediumThreshold is the risk score above which a medium alert fires.
	DefaultMediumThreshold = 0.6

	// DefaultHighThreshold is the risk score above which a high alert fires.
	DefaultHighThreshold = 0.8

	// snippetLimit bounds the transcript excerpt carried on an alert.
	snippetLimit = 200
)

// Engine decides whether an analysis result warrants an alert. Each chunk is
// judged independently against a fixed threshold table; there is no session-
// wide aggregation or hysteresis.
type Engine struct {
	mediumThreshold float64
	highThreshold   float64
	logger          *slog.Logger
}

// NewEngine creates an engine with the given thresholds. Non-positive
// thresholds fall back to the documented defaults (0.6 medium, 0.8 high).
func NewEngine(mediumThreshold, highThreshold float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if mediumThreshold <= 0 {
		mediumThreshold = DefaultMediumThreshold
	}
	if highThreshold <= 0 {
		highThreshold = DefaultHighThreshold
	}
	return &Engine{
		mediumThreshold: mediumThreshold,
		highThreshold:   highThreshold,
		logger:          logger.With("component", "alert-engine"),
	}
}

// Evaluate returns an Alert for the result, or nil when the risk score is at
// or below the medium threshold. Severity is derived deterministically:
// score > high threshold is high, otherwise medium.
func (e *Engine) Evaluate(result session.AnalysisResult) *session.Alert {
	if result.RiskScore <= e.mediumThreshold {
		return nil
	}

	severity := session.SeverityMedium
	if result.RiskScore > e.highThreshold {
		severity = session.SeverityHigh
	}

	alert := &session.Alert{
		CallID:      result.CallID,
		ChunkNumber: result.ChunkNumber,
		Severity:    severity,
		RiskScore:   result.RiskScore,
		Snippet:     snippet(result.Transcript),
		TriggeredAt: time.Now(),
	}

	e.logger.Debug("alert triggered",
		"call_id", alert.CallID,
		"chunk_number", alert.ChunkNumber,
		"severity", alert.Severity,
		"risk_score", alert.RiskScore)
	return alert
}

// snippet truncates a transcript for display in alerts and event payloads.
func snippet(transcript string) string {
	if len(transcript) <= snippetLimit {
		return transcript
	}
	return transcript[:snippetLimit] + "..."
}
