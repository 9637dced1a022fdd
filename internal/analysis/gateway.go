// ABOUTME: Gateway abstraction over the external transcription+classification pipeline
// ABOUTME: Defines the Result shape and the distinct timeout/failure error kinds

package analysis

import (
	"context"
	"errors"
)

// Gateway errors. The gateway never converts a failure into a default score;
// callers must treat both kinds as "chunk not analyzed".
var (
	// ErrAnalysisTimeout is returned when the analyzer did not answer within
	// the configured deadline.
	ErrAnalysisTimeout = errors.New("analysis timed out")

	// ErrAnalysisFailure is returned for any other analyzer failure,
	// including malformed or out-of-range responses.
	ErrAnalysisFailure = errors.New("analysis failed")
)

// Result is the analyzer's verdict on one audio chunk. NormalScore and
// RiskScore are the classifier's two class probabilities; RiskScore is the
// phishing probability and is the only score the coordinator acts on.
type Result struct {
	Transcript  string
	RiskScore   float64
	NormalScore float64
}

// Gateway wraps the external speech-to-text and phishing-classification
// collaborator behind one synchronous call. Implementations are stateless;
// the call may be slow and must honor ctx.
type Gateway interface {
	TranscribeAndClassify(ctx context.Context, audio []byte) (*Result, error)
}
