// ABOUTME: Tests for the SQLite artifact store
// ABOUTME: Covers artifact writes, metadata inserts, and duplicate chunk numbers

package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "vpd.db"), filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_PutArtifactWritesFile(t *testing.T) {
	s := newTestStore(t)

	path, err := s.PutArtifact(t.Context(), "c1", 0, []byte("wav-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "c1_0_"))
	assert.True(t, strings.HasSuffix(path, ".wav"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("wav-bytes"), data)
}

func TestSQLiteStore_PutArtifactUniquePaths(t *testing.T) {
	s := newTestStore(t)

	// Same chunk number twice must not collide (at-least-once delivery).
	p1, err := s.PutArtifact(t.Context(), "c1", 3, []byte("a"))
	require.NoError(t, err)
	p2, err := s.PutArtifact(t.Context(), "c1", 3, []byte("b"))
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestSQLiteStore_RecordMetadata(t *testing.T) {
	s := newTestStore(t)

	meta := ChunkMetadata{
		CallID:      "c1",
		ChunkNumber: 0,
		ArtifactURL: "/tmp/c1_0.wav",
		Transcript:  "hello",
		RiskScore:   0.42,
	}
	require.NoError(t, s.RecordMetadata(t.Context(), meta))
	require.NoError(t, s.RecordMetadata(t.Context(), meta))

	count, err := s.ChunkCount(t.Context(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.ChunkCount(t.Context(), "other")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
