// ABOUTME: Tests for the HTTP analysis gateway
// ABOUTME: Uses httptest servers to cover success, failure, timeout, and bad scores

package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGateway_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transcript":"hello","prediction":{"normal":0.9,"phishing":0.1}}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second, nil)
	res, err := g.TranscribeAndClassify(t.Context(), []byte("audio"))
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Transcript)
	assert.Equal(t, 0.1, res.RiskScore)
	assert.Equal(t, 0.9, res.NormalScore)
}

func TestHTTPGateway_ServerErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second, nil)
	_, err := g.TranscribeAndClassify(t.Context(), []byte("audio"))
	assert.ErrorIs(t, err, ErrAnalysisFailure)
}

func TestHTTPGateway_TimeoutIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, 50*time.Millisecond, nil)
	_, err := g.TranscribeAndClassify(t.Context(), []byte("audio"))
	assert.ErrorIs(t, err, ErrAnalysisTimeout)
	assert.NotErrorIs(t, err, ErrAnalysisFailure)
}

func TestHTTPGateway_OutOfRangeScoreFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"transcript":"x","prediction":{"normal":0.0,"phishing":1.5}}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second, nil)
	_, err := g.TranscribeAndClassify(t.Context(), []byte("audio"))
	assert.ErrorIs(t, err, ErrAnalysisFailure)
}

func TestHTTPGateway_MalformedJSONIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, time.Second, nil)
	_, err := g.TranscribeAndClassify(t.Context(), []byte("audio"))
	assert.ErrorIs(t, err, ErrAnalysisFailure)
}

func TestHTTPGateway_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewHTTPGateway(srv.URL, time.Second, nil)
	_, err := g.TranscribeAndClassify(ctx, []byte("audio"))
	require.Error(t, err)
}
