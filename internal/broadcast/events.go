// ABOUTME: Tagged event union delivered to call subscribers
// ABOUTME: Wire shapes match the realtime monitoring websocket protocol

package broadcast

import (
	"time"

	"github.com/krishna-hasare13/voice-phishing-detection/internal/session"
)

// EventType discriminates the Event union.
type EventType string

const (
	// EventConnectionEstablished is the one-time snapshot a new subscriber
	// receives when the call already has recorded state.
	EventConnectionEstablished EventType = "connection_established"

	EventCallStarted    EventType = "call_started"
	EventAnalysisUpdate EventType = "analysis_update"
	EventPhishingAlert  EventType = "phishing_alert"
	EventCallEnded      EventType = "call_ended"
	EventHeartbeat      EventType = "heartbeat"
)

// Event is one update about a monitored call. Exactly one payload field is
// set, per Type.
type Event struct {
	Type      EventType `json:"type"`
	CallID    string    `json:"call_id"`
	Timestamp time.Time `json:"timestamp"`

	Update   *AnalysisUpdate      `json:"update,omitempty"`   // analysis_update
	Alert    *session.Alert       `json:"alert,omitempty"`    // phishing_alert
	Summary  *session.Summary     `json:"summary,omitempty"`  // call_ended
	Snapshot *session.CallSession `json:"snapshot,omitempty"` // connection_established
}

// AnalysisUpdate is the per-chunk live payload.
type AnalysisUpdate struct {
	ChunkNumber int     `json:"chunk_number"`
	Transcript  string  `json:"transcript"`
	RiskScore   float64 `json:"risk_score"`
}

// NewCallStarted builds the lifecycle event for a freshly created session.
func NewCallStarted(callID string) Event {
	return Event{Type: EventCallStarted, CallID: callID, Timestamp: time.Now()}
}

// NewAnalysisUpdate builds the live event for one analyzed chunk.
func NewAnalysisUpdate(result session.AnalysisResult) Event {
	return Event{
		Type:      EventAnalysisUpdate,
		CallID:    result.CallID,
		Timestamp: result.ReceivedAt,
		Update: &AnalysisUpdate{
			ChunkNumber: result.ChunkNumber,
			Transcript:  result.Transcript,
			RiskScore:   result.RiskScore,
		},
	}
}

// NewPhishingAlert builds the alert event. Callers must record the alert in
// the session before publishing it.
func NewPhishingAlert(alert session.Alert) Event {
	return Event{
		Type:      EventPhishingAlert,
		CallID:    alert.CallID,
		Timestamp: alert.TriggeredAt,
		Alert:     &alert,
	}
}

// NewCallEnded builds the terminal event carrying the session summary.
func NewCallEnded(summary session.Summary) Event {
	return Event{
		Type:      EventCallEnded,
		CallID:    summary.CallID,
		Timestamp: time.Now(),
		Summary:   &summary,
	}
}

// NewSnapshot builds the connection_established event for a late subscriber.
func NewSnapshot(snapshot *session.CallSession) Event {
	return Event{
		Type:      EventConnectionEstablished,
		CallID:    snapshot.CallID,
		Timestamp: time.Now(),
		Snapshot:  snapshot,
	}
}
