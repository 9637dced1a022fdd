// ABOUTME: End-to-end pipeline tests for the coordinator with real collaborators
// ABOUTME: Fakes only the storage backend and analysis gateway

package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishna-hasare13/voice-phishing-detection/internal/alert"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/analysis"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/broadcast"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/ingest"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/session"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/storage"
)

type memStore struct {
	mu   sync.Mutex
	meta []storage.ChunkMetadata
}

func (s *memStore) PutArtifact(ctx context.Context, callID string, chunkNumber int, audio []byte) (string, error) {
	return "mem://" + callID, nil
}

func (s *memStore) RecordMetadata(ctx context.Context, meta storage.ChunkMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = append(s.meta, meta)
	return nil
}

func (s *memStore) Close() error { return nil }

// scriptedGateway returns scores in call order, repeating the last one.
type scriptedGateway struct {
	mu     sync.Mutex
	scores []float64
	calls  int
	err    error
}

func (g *scriptedGateway) TranscribeAndClassify(ctx context.Context, audio []byte) (*analysis.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	idx := g.calls
	if idx >= len(g.scores) {
		idx = len(g.scores) - 1
	}
	g.calls++
	return &analysis.Result{Transcript: "transcript", RiskScore: g.scores[idx]}, nil
}

func newCoordinator(t *testing.T, gw analysis.Gateway, ttl time.Duration) *Coordinator {
	t.Helper()

	registry := session.NewRegistry(nil)
	hub := broadcast.NewHub(time.Hour, nil) // heartbeats out of the way
	t.Cleanup(hub.Close)

	return New(Config{
		Registry:     registry,
		Ingestor:     ingest.New(registry, &memStore{}, gw, time.Second, nil),
		Alerts:       alert.NewEngine(0, 0, nil),
		Hub:          hub,
		SessionTTL:   ttl,
		ReapInterval: 10 * time.Millisecond,
	})
}

func collectEvents(t *testing.T, sub *broadcast.Subscription, n int) []broadcast.Event {
	t.Helper()
	events := make([]broadcast.Event, 0, n)
	for len(events) < n {
		select {
		case ev := <-sub.Events():
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", len(events)+1, n)
		}
	}
	return events
}

func TestCoordinator_FullLifecycle(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.2, 0.85}}, 0)

	sub := c.Subscribe(t.Context(), "c1")

	id, err := c.StartCall("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	res, triggered, err := c.IngestChunk(t.Context(), "c1", 0, []byte("wav"))
	require.NoError(t, err)
	assert.Equal(t, 0.2, res.RiskScore)
	assert.Nil(t, triggered, "0.2 is below the medium threshold")

	res, triggered, err = c.IngestChunk(t.Context(), "c1", 1, []byte("wav"))
	require.NoError(t, err)
	assert.Equal(t, 0.85, res.RiskScore)
	require.NotNil(t, triggered)
	assert.Equal(t, session.SeverityHigh, triggered.Severity)

	summary, err := c.FinalizeCall("c1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalChunks)
	assert.Equal(t, 1, summary.AlertCount)
	assert.InDelta(t, 0.525, summary.AverageRiskScore, 1e-9)

	events := collectEvents(t, sub, 5)
	assert.Equal(t, broadcast.EventCallStarted, events[0].Type)
	assert.Equal(t, broadcast.EventAnalysisUpdate, events[1].Type)
	assert.Equal(t, broadcast.EventAnalysisUpdate, events[2].Type)
	assert.Equal(t, broadcast.EventPhishingAlert, events[3].Type)
	assert.Equal(t, broadcast.EventCallEnded, events[4].Type)
	require.NotNil(t, events[4].Summary)
	assert.Equal(t, 2, events[4].Summary.TotalChunks)
}

func TestCoordinator_AlertRecordedBeforeBroadcast(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.9}}, 0)

	_, err := c.StartCall("c1")
	require.NoError(t, err)
	sub := c.Subscribe(t.Context(), "c1")

	_, _, err = c.IngestChunk(t.Context(), "c1", 0, []byte("wav"))
	require.NoError(t, err)

	events := collectEvents(t, sub, 2)
	require.Equal(t, broadcast.EventPhishingAlert, events[1].Type)

	// By the time the broadcast is observable, the alert is queryable.
	snap, err := c.CallStatus("c1")
	require.NoError(t, err)
	require.Len(t, snap.Alerts, 1)
	assert.Equal(t, session.SeverityHigh, snap.Alerts[0].Severity)
}

func TestCoordinator_LateSubscriberGetsSnapshot(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.7}}, 0)

	_, err := c.StartCall("c1")
	require.NoError(t, err)
	_, _, err = c.IngestChunk(t.Context(), "c1", 0, []byte("wav"))
	require.NoError(t, err)

	sub := c.Subscribe(t.Context(), "c1")
	events := collectEvents(t, sub, 1)

	require.Equal(t, broadcast.EventConnectionEstablished, events[0].Type)
	require.NotNil(t, events[0].Snapshot)
	assert.Len(t, events[0].Snapshot.Results, 1)
	assert.Len(t, events[0].Snapshot.Alerts, 1)
}

func TestCoordinator_EarlySubscriberGetsNoSnapshot(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.1}}, 0)

	sub := c.Subscribe(t.Context(), "c1")
	_, err := c.StartCall("c1")
	require.NoError(t, err)

	events := collectEvents(t, sub, 1)
	assert.Equal(t, broadcast.EventCallStarted, events[0].Type,
		"a subscriber present before any recorded state sees live events only")
}

func TestCoordinator_IngestAfterFinalizeRejected(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.1}}, 0)

	_, err := c.StartCall("c1")
	require.NoError(t, err)
	_, err = c.FinalizeCall("c1")
	require.NoError(t, err)

	_, _, err = c.IngestChunk(t.Context(), "c1", 0, []byte("wav"))
	assert.ErrorIs(t, err, session.ErrSessionCompleted)
}

func TestCoordinator_IngestUnknownCallRejected(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.1}}, 0)

	_, _, err := c.IngestChunk(t.Context(), "nope", 0, []byte("wav"))
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestCoordinator_DoubleFinalizeRejected(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.1}}, 0)

	_, err := c.StartCall("c1")
	require.NoError(t, err)
	_, err = c.FinalizeCall("c1")
	require.NoError(t, err)

	_, err = c.FinalizeCall("c1")
	assert.ErrorIs(t, err, session.ErrAlreadyFinalized)
}

func TestCoordinator_AnalysisFailureLeavesSessionClean(t *testing.T) {
	gw := &scriptedGateway{err: analysis.ErrAnalysisFailure}
	c := newCoordinator(t, gw, 0)

	_, err := c.StartCall("c1")
	require.NoError(t, err)

	_, _, err = c.IngestChunk(t.Context(), "c1", 0, []byte("wav"))
	assert.ErrorIs(t, err, analysis.ErrAnalysisFailure)

	snap, err := c.CallStatus("c1")
	require.NoError(t, err)
	assert.Empty(t, snap.Results, "failed chunk must not be recorded")

	// The same chunk number succeeds on retry.
	gw.mu.Lock()
	gw.err = nil
	gw.scores = []float64{0.3}
	gw.mu.Unlock()

	res, _, err := c.IngestChunk(t.Context(), "c1", 0, []byte("wav"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ChunkNumber)
}

func TestCoordinator_ConcurrentChunksAllRecorded(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.1}}, 0)

	_, err := c.StartCall("c1")
	require.NoError(t, err)

	const chunks = 20
	var wg sync.WaitGroup
	for n := range chunks {
		wg.Go(func() {
			_, _, err := c.IngestChunk(t.Context(), "c1", n, []byte("wav"))
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	summary, err := c.FinalizeCall("c1")
	require.NoError(t, err)
	assert.Equal(t, chunks, summary.TotalChunks)
}

func TestCoordinator_ReaperFinalizesIdleSessions(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.1}}, 20*time.Millisecond)

	_, err := c.StartCall("c1")
	require.NoError(t, err)
	sub := c.Subscribe(t.Context(), "c1")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		snap, err := c.CallStatus("c1")
		return err == nil && snap.Status == session.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond, "idle session should be force-finalized")

	var sawEnded bool
	for !sawEnded {
		select {
		case ev := <-sub.Events():
			sawEnded = ev.Type == broadcast.EventCallEnded
		case <-time.After(time.Second):
			t.Fatal("no call_ended broadcast from the reaper")
		}
	}
}

func TestCoordinator_ListActiveCalls(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.1}}, 0)

	_, err := c.StartCall("c1")
	require.NoError(t, err)
	_, err = c.StartCall("c2")
	require.NoError(t, err)
	_, err = c.FinalizeCall("c2")
	require.NoError(t, err)

	active := c.ListActiveCalls()
	require.Len(t, active, 1)
	assert.Equal(t, "c1", active[0].CallID)
}

func TestCoordinator_GeneratedCallID(t *testing.T) {
	c := newCoordinator(t, &scriptedGateway{scores: []float64{0.1}}, 0)

	id, err := c.StartCall("")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	snap, err := c.CallStatus(id)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, snap.Status)
}
