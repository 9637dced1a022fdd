// ABOUTME: Supabase ArtifactStore backend: storage bucket upload + chunks table insert
// ABOUTME: Mirrors the audio-chunks bucket layout with public object URLs

package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
)

// SupabaseStore implements ArtifactStore against a Supabase project: raw
// chunks go to a storage bucket, metadata to the "chunks" table.
type SupabaseStore struct {
	client  *supabase.Client
	baseURL string
	bucket  string
	logger  *slog.Logger
}

// NewSupabaseStore creates a store for the given project URL, API key, and
// bucket (e.g. "audio-chunks").
func NewSupabaseStore(projectURL, apiKey, bucket string) (*SupabaseStore, error) {
	if projectURL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	if bucket == "" {
		bucket = "audio-chunks"
	}

	client, err := supabase.NewClient(projectURL, apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}

	return &SupabaseStore{
		client:  client,
		baseURL: projectURL,
		bucket:  bucket,
		logger:  slog.Default().With("component", "storage"),
	}, nil
}

// PutArtifact uploads the raw chunk to the bucket and returns its public
// object URL.
func (s *SupabaseStore) PutArtifact(ctx context.Context, callID string, chunkNumber int, audio []byte) (string, error) {
	name := fmt.Sprintf("%s_%d_%s.wav", callID, chunkNumber, uuid.New().String())

	if _, err := s.client.Storage.UploadFile(s.bucket, name, bytes.NewReader(audio)); err != nil {
		return "", fmt.Errorf("%w: uploading artifact: %v", ErrStorageFailure, err)
	}

	url := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, name)
	s.logger.Debug("artifact uploaded", "call_id", callID, "chunk_number", chunkNumber, "url", url)
	return url, nil
}

// chunkRow is the insert shape for the chunks table.
type chunkRow struct {
	CallID      string  `json:"call_id"`
	ChunkNumber int     `json:"chunk_number"`
	FileURL     string  `json:"file_url"`
	Transcript  string  `json:"transcript"`
	RiskScore   float64 `json:"phishing_score"`
}

// RecordMetadata inserts the chunk's analysis record into the chunks table.
func (s *SupabaseStore) RecordMetadata(ctx context.Context, meta ChunkMetadata) error {
	row := chunkRow{
		CallID:      meta.CallID,
		ChunkNumber: meta.ChunkNumber,
		FileURL:     meta.ArtifactURL,
		Transcript:  meta.Transcript,
		RiskScore:   meta.RiskScore,
	}

	if _, _, err := s.client.From("chunks").Insert(row, false, "", "", "").Execute(); err != nil {
		return fmt.Errorf("%w: inserting chunk metadata: %v", ErrStorageFailure, err)
	}
	return nil
}

// Close is a no-op; the underlying client holds no persistent connections.
func (s *SupabaseStore) Close() error {
	return nil
}
