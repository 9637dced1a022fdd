// ABOUTME: Chunk ingestion: validate, persist the artifact, run analysis
// ABOUTME: Produces AnalysisResults without touching session state itself

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/krishna-hasare13/voice-phishing-detection/internal/analysis"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/session"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/storage"
)

// Validation errors
var (
	ErrEmptyAudio          = errors.New("audio chunk is empty")
	ErrNegativeChunkNumber = errors.New("chunk number must be non-negative")
)

// DefaultStorageTimeout bounds the artifact and metadata writes.
const DefaultStorageTimeout = 10 * time.Second

// SessionGuard is what the ingestor needs to know about session state:
// whether the target call exists and is still active.
type SessionGuard interface {
	CheckActive(callID string) error
}

// Ingestor accepts one audio chunk for a call, persists the raw artifact,
// runs it through the analysis gateway, and builds the AnalysisResult. It
// never mutates session state; that is the registry's job, which keeps the
// ingestor testable without session machinery.
type Ingestor struct {
	sessions       SessionGuard
	store          storage.ArtifactStore
	gateway        analysis.Gateway
	storageTimeout time.Duration
	logger         *slog.Logger
}

// New creates an ingestor. A non-positive storageTimeout uses the default.
func New(sessions SessionGuard, store storage.ArtifactStore, gateway analysis.Gateway, storageTimeout time.Duration, logger *slog.Logger) *Ingestor {
	if storageTimeout <= 0 {
		storageTimeout = DefaultStorageTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		sessions:       sessions,
		store:          store,
		gateway:        gateway,
		storageTimeout: storageTimeout,
		logger:         logger.With("component", "ingestor"),
	}
}

// Ingest processes one chunk end to end and returns its AnalysisResult.
//
// Fail-closed: if the artifact write or the analysis call fails, no result is
// produced and the chunk is never recorded; the caller may retry with the
// same chunk number. A metadata-write failure after successful analysis is
// logged only, since it sits outside the session-state boundary.
func (i *Ingestor) Ingest(ctx context.Context, callID string, chunkNumber int, audio []byte) (*session.AnalysisResult, error) {
	if chunkNumber < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeChunkNumber, chunkNumber)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if err := i.sessions.CheckActive(callID); err != nil {
		return nil, err
	}

	putCtx, cancel := context.WithTimeout(ctx, i.storageTimeout)
	url, err := i.store.PutArtifact(putCtx, callID, chunkNumber, audio)
	cancel()
	if err != nil {
		return nil, err
	}

	verdict, err := i.gateway.TranscribeAndClassify(ctx, audio)
	if err != nil {
		return nil, err
	}

	result := &session.AnalysisResult{
		CallID:      callID,
		ChunkNumber: chunkNumber,
		Transcript:  verdict.Transcript,
		RiskScore:   verdict.RiskScore,
		ArtifactURL: url,
		ReceivedAt:  time.Now(),
	}

	i.recordMetadata(*result)

	i.logger.Debug("chunk ingested",
		"call_id", callID,
		"chunk_number", chunkNumber,
		"risk_score", result.RiskScore,
		"bytes", len(audio))
	return result, nil
}

// recordMetadata writes the chunk's durable record with its own timeout so a
// cancelled request context cannot abort the write mid-flight.
func (i *Ingestor) recordMetadata(result session.AnalysisResult) {
	ctx, cancel := context.WithTimeout(context.Background(), i.storageTimeout)
	defer cancel()

	err := i.store.RecordMetadata(ctx, storage.ChunkMetadata{
		CallID:      result.CallID,
		ChunkNumber: result.ChunkNumber,
		ArtifactURL: result.ArtifactURL,
		Transcript:  result.Transcript,
		RiskScore:   result.RiskScore,
	})
	if err != nil {
		// Accepted inconsistency: in-memory session state is not rolled back.
		i.logger.Error("failed to record chunk metadata",
			"error", err,
			"call_id", result.CallID,
			"chunk_number", result.ChunkNumber)
	}
}
