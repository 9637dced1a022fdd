// ABOUTME: Tests for the call-session registry
// ABOUTME: Covers lifecycle transitions, duplicate handling, summaries, concurrency

package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeResult(callID string, chunk int, risk float64) AnalysisResult {
	return AnalysisResult{
		CallID:      callID,
		ChunkNumber: chunk,
		Transcript:  "test transcript",
		RiskScore:   risk,
		ReceivedAt:  time.Now(),
	}
}

func TestRegistry_CreateWithSuppliedID(t *testing.T) {
	r := NewRegistry(nil)

	id, err := r.Create("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	s, err := r.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, s.Status)
	assert.False(t, s.CreatedAt.IsZero())
	assert.True(t, s.EndedAt.IsZero())
}

func TestRegistry_CreateGeneratesUniqueIDs(t *testing.T) {
	r := NewRegistry(nil)

	id1, err := r.Create("")
	require.NoError(t, err)
	id2, err := r.Create("")
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.True(t, strings.HasPrefix(id1, "call_"))
}

func TestRegistry_CreateDuplicateFails(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Create("c1")
	require.NoError(t, err)

	_, err = r.Create("c1")
	assert.ErrorIs(t, err, ErrDuplicateCallID)
}

func TestRegistry_CreateDuplicateOfCompletedFails(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Create("c1")
	require.NoError(t, err)
	_, err = r.Finalize("c1")
	require.NoError(t, err)

	// Call ids are unique for the process lifetime.
	_, err = r.Create("c1")
	assert.ErrorIs(t, err, ErrDuplicateCallID)
}

func TestRegistry_GetUnknownFails(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_RecordAppendsInArrivalOrder(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)

	// Out-of-order chunk numbers are kept in arrival order.
	require.NoError(t, r.Record("c1", makeResult("c1", 2, 0.1)))
	require.NoError(t, r.Record("c1", makeResult("c1", 0, 0.2)))
	require.NoError(t, r.Record("c1", makeResult("c1", 1, 0.3)))

	s, err := r.Get("c1")
	require.NoError(t, err)
	require.Len(t, s.Results, 3)
	assert.Equal(t, 2, s.Results[0].ChunkNumber)
	assert.Equal(t, 0, s.Results[1].ChunkNumber)
	assert.Equal(t, 1, s.Results[2].ChunkNumber)
}

func TestRegistry_RecordKeepsDuplicateChunkNumbers(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)

	require.NoError(t, r.Record("c1", makeResult("c1", 3, 0.1)))
	require.NoError(t, r.Record("c1", makeResult("c1", 3, 0.2)))

	s, err := r.Get("c1")
	require.NoError(t, err)
	assert.Len(t, s.Results, 2)
}

func TestRegistry_RecordAfterFinalizeFails(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)
	_, err = r.Finalize("c1")
	require.NoError(t, err)

	err = r.Record("c1", makeResult("c1", 0, 0.1))
	assert.ErrorIs(t, err, ErrSessionCompleted)

	err = r.RecordAlert("c1", Alert{CallID: "c1", ChunkNumber: 0})
	assert.ErrorIs(t, err, ErrSessionCompleted)
}

func TestRegistry_FinalizeComputesSummary(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)

	require.NoError(t, r.Record("c1", makeResult("c1", 0, 0.2)))
	require.NoError(t, r.Record("c1", makeResult("c1", 1, 0.85)))
	require.NoError(t, r.RecordAlert("c1", Alert{
		CallID:      "c1",
		ChunkNumber: 1,
		Severity:    SeverityHigh,
		RiskScore:   0.85,
		TriggeredAt: time.Now(),
	}))

	summary, err := r.Finalize("c1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalChunks)
	assert.InDelta(t, 0.525, summary.AverageRiskScore, 1e-9)
	assert.Equal(t, 1, summary.AlertCount)
	assert.GreaterOrEqual(t, summary.Duration, time.Duration(0))

	s, err := r.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, s.Status)
	assert.False(t, s.EndedAt.IsZero())
}

func TestRegistry_FinalizeEmptySessionAverageIsZero(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)

	summary, err := r.Finalize("c1")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalChunks)
	assert.Equal(t, 0.0, summary.AverageRiskScore)
}

func TestRegistry_FinalizeTwiceFails(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)

	_, err = r.Finalize("c1")
	require.NoError(t, err)

	_, err = r.Finalize("c1")
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestRegistry_ListActiveExcludesCompleted(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)
	_, err = r.Create("c2")
	require.NoError(t, err)
	_, err = r.Finalize("c2")
	require.NoError(t, err)

	active := r.ListActive()
	require.Len(t, active, 1)
	assert.Equal(t, "c1", active[0].CallID)
}

func TestRegistry_GetReturnsSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)
	require.NoError(t, r.Record("c1", makeResult("c1", 0, 0.2)))

	s, err := r.Get("c1")
	require.NoError(t, err)

	// Mutating the snapshot must not touch registry state.
	s.Results[0].RiskScore = 0.99
	s.Status = StatusCompleted

	again, err := r.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, 0.2, again.Results[0].RiskScore)
	assert.Equal(t, StatusActive, again.Status)
}

func TestRegistry_IdleActive(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("stale")
	require.NoError(t, err)
	_, err = r.Create("fresh")
	require.NoError(t, err)

	// Only sessions idle since before the cutoff qualify.
	idle := r.IdleActive(time.Now().Add(-time.Minute))
	assert.Empty(t, idle)

	idle = r.IdleActive(time.Now().Add(time.Minute))
	assert.ElementsMatch(t, []string{"stale", "fresh"}, idle)

	_, err = r.Finalize("stale")
	require.NoError(t, err)
	idle = r.IdleActive(time.Now().Add(time.Minute))
	assert.Equal(t, []string{"fresh"}, idle)
}

func TestRegistry_ConcurrentRecordsAreNotLost(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Create("c1")
	require.NoError(t, err)

	const writers = 10
	const perWriter = 50

	var wg sync.WaitGroup
	for w := range writers {
		wg.Go(func() {
			for i := range perWriter {
				_ = r.Record("c1", makeResult("c1", w*perWriter+i, 0.5))
			}
		})
	}
	wg.Wait()

	s, err := r.Get("c1")
	require.NoError(t, err)
	assert.Len(t, s.Results, writers*perWriter)
}

func TestRegistry_ConcurrentCallsDoNotInterfere(t *testing.T) {
	r := NewRegistry(nil)

	var wg sync.WaitGroup
	for c := range 8 {
		callID := string(rune('a' + c))
		_, err := r.Create(callID)
		require.NoError(t, err)

		wg.Go(func() {
			for i := range 20 {
				_ = r.Record(callID, makeResult(callID, i, 0.3))
			}
		})
	}
	wg.Wait()

	for c := range 8 {
		s, err := r.Get(string(rune('a' + c)))
		require.NoError(t, err)
		assert.Len(t, s.Results, 20)
	}
}
