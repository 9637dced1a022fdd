// ABOUTME: Storage collaborator interface for audio artifacts and chunk metadata
// ABOUTME: Backends: local SQLite+filesystem and remote Supabase

package storage

import (
	"context"
	"errors"
)

// ErrStorageFailure is returned when an artifact cannot be persisted. It is
// reported to the caller, never silently swallowed; a chunk whose artifact
// write fails is not analyzed or recorded.
var ErrStorageFailure = errors.New("storage failure")

// ChunkMetadata is the durable record for one analyzed chunk. Metadata writes
// happen outside the transactional boundary of session state: a failure here
// is logged but does not roll back in-memory state.
type ChunkMetadata struct {
	CallID      string
	ChunkNumber int
	ArtifactURL string
	Transcript  string
	RiskScore   float64
}

// ArtifactStore persists raw audio chunks and their analysis metadata.
type ArtifactStore interface {
	// PutArtifact durably stores the raw chunk and returns an opaque
	// location reference (a URL or path).
	PutArtifact(ctx context.Context, callID string, chunkNumber int, audio []byte) (string, error)

	// RecordMetadata stores the post-analysis record for a chunk.
	RecordMetadata(ctx context.Context, meta ChunkMetadata) error

	Close() error
}
