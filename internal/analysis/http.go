// ABOUTME: HTTP client for the external analyzer service (Whisper + classifier)
// ABOUTME: Posts raw audio, parses the transcript/prediction response, bounded by timeout

package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultTimeout bounds one analyzer round trip.
const DefaultTimeout = 30 * time.Second

// analyzeResponse mirrors the analyzer service's JSON reply.
type analyzeResponse struct {
	Transcript string `json:"transcript"`
	Prediction struct {
		Normal   float64 `json:"normal"`
		Phishing float64 `json:"phishing"`
	} `json:"prediction"`
}

// HTTPGateway calls a remote analyzer service over HTTP.
type HTTPGateway struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// NewHTTPGateway creates a gateway for the analyzer at endpoint (e.g.
// "http://127.0.0.1:8500/analyze"). A non-positive timeout uses the default.
func NewHTTPGateway(endpoint string, timeout time.Duration, logger *slog.Logger) *HTTPGateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPGateway{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{},
		logger:   logger.With("component", "analysis-gateway"),
	}
}

// TranscribeAndClassify sends the audio bytes to the analyzer and returns its
// transcript and class probabilities. Deadline overruns surface as
// ErrAnalysisTimeout, everything else as ErrAnalysisFailure.
func (g *HTTPGateway) TranscribeAndClassify(ctx context.Context, audio []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrAnalysisFailure, err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: after %s", ErrAnalysisTimeout, g.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: analyzer returned status %d: %s", ErrAnalysisFailure, resp.StatusCode, body)
	}

	var parsed analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrAnalysisFailure, err)
	}

	// Fail closed on scores outside [0, 1] rather than clamping.
	if parsed.Prediction.Phishing < 0 || parsed.Prediction.Phishing > 1 {
		return nil, fmt.Errorf("%w: risk score %f out of range", ErrAnalysisFailure, parsed.Prediction.Phishing)
	}

	g.logger.Debug("chunk analyzed",
		"risk_score", parsed.Prediction.Phishing,
		"elapsed", time.Since(start))

	return &Result{
		Transcript:  parsed.Transcript,
		RiskScore:   parsed.Prediction.Phishing,
		NormalScore: parsed.Prediction.Normal,
	}, nil
}
