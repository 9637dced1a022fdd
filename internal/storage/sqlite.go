// ABOUTME: Local ArtifactStore backend using modernc.org/sqlite plus a WAV directory
// ABOUTME: Chunk audio goes to disk, metadata to a chunks table with WAL enabled

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements ArtifactStore against a local SQLite database and an
// artifact directory on disk.
type SQLiteStore struct {
	db          *sql.DB
	artifactDir string
	logger      *slog.Logger
}

// NewSQLiteStore opens (or creates) the database at dbPath and ensures the
// artifact directory exists. The schema is created if missing.
func NewSQLiteStore(dbPath, artifactDir string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "storage")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	if err := os.MkdirAll(artifactDir, 0755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for concurrent chunk uploads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:          db,
		artifactDir: artifactDir,
		logger:      logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite storage initialized", "db_path", dbPath, "artifact_dir", artifactDir)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			chunk_number INTEGER NOT NULL,
			artifact_url TEXT NOT NULL,
			transcript TEXT NOT NULL,
			risk_score REAL NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_call_id ON chunks(call_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// PutArtifact writes the raw chunk to the artifact directory and returns its
// path. File names follow the {call_id}_{chunk}_{uuid}.wav convention so
// duplicate chunk numbers never collide.
func (s *SQLiteStore) PutArtifact(ctx context.Context, callID string, chunkNumber int, audio []byte) (string, error) {
	name := fmt.Sprintf("%s_%d_%s.wav", callID, chunkNumber, uuid.New().String())
	path := filepath.Join(s.artifactDir, name)

	if err := os.WriteFile(path, audio, 0644); err != nil {
		return "", fmt.Errorf("%w: writing artifact: %v", ErrStorageFailure, err)
	}

	s.logger.Debug("artifact stored", "call_id", callID, "chunk_number", chunkNumber, "path", path)
	return path, nil
}

// RecordMetadata inserts the chunk's analysis record into the chunks table.
func (s *SQLiteStore) RecordMetadata(ctx context.Context, meta ChunkMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, call_id, chunk_number, artifact_url, transcript, risk_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(),
		meta.CallID,
		meta.ChunkNumber,
		meta.ArtifactURL,
		meta.Transcript,
		meta.RiskScore,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: inserting chunk metadata: %v", ErrStorageFailure, err)
	}
	return nil
}

// ChunkCount returns the number of metadata rows recorded for a call.
func (s *SQLiteStore) ChunkCount(ctx context.Context, callID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE call_id = ?`, callID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
