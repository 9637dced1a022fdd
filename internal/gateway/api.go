// ABOUTME: HTTP API handlers for the call lifecycle endpoints
// ABOUTME: Provides start, chunk upload, finalize, status, and listing routes

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/krishna-hasare13/voice-phishing-detection/internal/analysis"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/ingest"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/session"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/storage"
)

// maxChunkUploadBytes caps a single chunk upload. Chunks are a few seconds of
// audio; anything near this limit is a misbehaving client.
const maxChunkUploadBytes = 16 << 20

// StartCallRequest is the JSON request body for POST /api/calls.
type StartCallRequest struct {
	CallID string `json:"call_id,omitempty"`
}

// StartCallResponse is the JSON response for POST /api/calls.
type StartCallResponse struct {
	CallID string `json:"call_id"`
	Status string `json:"status"`
}

// ChunkResponse is the JSON response for a chunk upload.
type ChunkResponse struct {
	CallID      string         `json:"call_id"`
	ChunkNumber int            `json:"chunk_number"`
	Transcript  string         `json:"transcript"`
	RiskScore   float64        `json:"risk_score"`
	ArtifactURL string         `json:"artifact_url"`
	Alert       *session.Alert `json:"alert,omitempty"`
}

// CallResponse is the JSON shape for a call session snapshot.
type CallResponse struct {
	CallID       string  `json:"call_id"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at"`
	EndedAt      string  `json:"ended_at,omitempty"`
	ChunkCount   int     `json:"chunk_count"`
	AlertCount   int     `json:"alert_count"`
	LatestScore  float64 `json:"latest_risk_score"`
	AverageScore float64 `json:"average_risk_score"`
}

// ListCallsResponse is the JSON response for GET /api/calls.
type ListCallsResponse struct {
	Calls []CallResponse `json:"calls"`
}

// FinalizeResponse is the JSON response for POST /api/calls/{id}/finalize.
type FinalizeResponse struct {
	CallID           string  `json:"call_id"`
	TotalChunks      int     `json:"total_chunks"`
	AverageRiskScore float64 `json:"average_risk_score"`
	AlertCount       int     `json:"alert_count"`
	DurationSeconds  float64 `json:"duration_seconds"`
}

// handleCalls handles /api/calls: POST starts a call, GET lists active calls.
func (g *Gateway) handleCalls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handleStartCall(w, r)
	case http.MethodGet:
		g.handleListCalls(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleStartCall registers a new call session. The body is optional; an
// empty or absent call_id asks the server to generate one.
func (g *Gateway) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req StartCallRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	callID, err := g.coordinator.StartCall(req.CallID)
	if err != nil {
		g.sendPipelineError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, StartCallResponse{
		CallID: callID,
		Status: string(session.StatusActive),
	})
}

// handleListCalls returns all active call sessions.
func (g *Gateway) handleListCalls(w http.ResponseWriter, r *http.Request) {
	active := g.coordinator.ListActiveCalls()

	response := ListCallsResponse{Calls: make([]CallResponse, 0, len(active))}
	for _, s := range active {
		response.Calls = append(response.Calls, toCallResponse(s))
	}

	g.writeJSON(w, http.StatusOK, response)
}

// handleCallRoutes dispatches /api/calls/{id}[/chunks|/finalize].
func (g *Gateway) handleCallRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/calls/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		g.sendJSONError(w, http.StatusBadRequest, "call_id is required")
		return
	}
	callID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleCallStatus(w, r, callID)
	case len(parts) == 2 && parts[1] == "chunks":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleUploadChunk(w, r, callID)
	case len(parts) == 2 && parts[1] == "finalize":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleFinalizeCall(w, r, callID)
	default:
		g.sendJSONError(w, http.StatusNotFound, "unknown call route")
	}
}

// handleCallStatus returns the current snapshot of one call session.
func (g *Gateway) handleCallStatus(w http.ResponseWriter, r *http.Request, callID string) {
	snapshot, err := g.coordinator.CallStatus(callID)
	if err != nil {
		g.sendPipelineError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, toCallResponse(snapshot))
}

// handleUploadChunk accepts one audio chunk for an active call. The audio
// arrives either as a multipart form with a "file" field (and chunk_number
// form field) or as a raw body with a chunk_number query parameter.
func (g *Gateway) handleUploadChunk(w http.ResponseWriter, r *http.Request, callID string) {
	chunkNumber, audio, err := g.readChunkUpload(r)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, triggered, err := g.coordinator.IngestChunk(r.Context(), callID, chunkNumber, audio)
	if err != nil {
		g.sendPipelineError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, ChunkResponse{
		CallID:      result.CallID,
		ChunkNumber: result.ChunkNumber,
		Transcript:  result.Transcript,
		RiskScore:   result.RiskScore,
		ArtifactURL: result.ArtifactURL,
		Alert:       triggered,
	})
}

// readChunkUpload extracts the chunk number and audio bytes from the request.
func (g *Gateway) readChunkUpload(r *http.Request) (int, []byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxChunkUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxChunkUploadBytes); err != nil {
			return 0, nil, errors.New("invalid multipart form")
		}
		chunkNumber, err := strconv.Atoi(r.FormValue("chunk_number"))
		if err != nil {
			return 0, nil, errors.New("chunk_number form field must be an integer")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return 0, nil, errors.New("file form field is required")
		}
		defer file.Close()
		audio, err := io.ReadAll(file)
		if err != nil {
			return 0, nil, errors.New("reading uploaded file failed")
		}
		return chunkNumber, audio, nil
	}

	chunkNumber, err := strconv.Atoi(r.URL.Query().Get("chunk_number"))
	if err != nil {
		return 0, nil, errors.New("chunk_number query parameter must be an integer")
	}
	audio, err := io.ReadAll(r.Body)
	if err != nil {
		return 0, nil, errors.New("reading request body failed")
	}
	return chunkNumber, audio, nil
}

// handleFinalizeCall completes a call session and returns its summary.
func (g *Gateway) handleFinalizeCall(w http.ResponseWriter, r *http.Request, callID string) {
	summary, err := g.coordinator.FinalizeCall(callID)
	if err != nil {
		g.sendPipelineError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, FinalizeResponse{
		CallID:           summary.CallID,
		TotalChunks:      summary.TotalChunks,
		AverageRiskScore: summary.AverageRiskScore,
		AlertCount:       summary.AlertCount,
		DurationSeconds:  summary.Duration.Seconds(),
	})
}

// toCallResponse flattens a session snapshot into the API shape.
func toCallResponse(s *session.CallSession) CallResponse {
	resp := CallResponse{
		CallID:     s.CallID,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		ChunkCount: len(s.Results),
		AlertCount: len(s.Alerts),
	}
	if !s.EndedAt.IsZero() {
		resp.EndedAt = s.EndedAt.Format("2006-01-02T15:04:05.000Z07:00")
	}
	if len(s.Results) > 0 {
		resp.LatestScore = s.Results[len(s.Results)-1].RiskScore
		var sum float64
		for _, res := range s.Results {
			sum += res.RiskScore
		}
		resp.AverageScore = sum / float64(len(s.Results))
	}
	return resp
}

// sendPipelineError maps pipeline errors onto HTTP statuses.
func (g *Gateway) sendPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		g.sendJSONError(w, http.StatusNotFound, "call not found")
	case errors.Is(err, session.ErrDuplicateCallID):
		g.sendJSONError(w, http.StatusConflict, "call_id already in use")
	case errors.Is(err, session.ErrSessionCompleted):
		g.sendJSONError(w, http.StatusConflict, "call already completed")
	case errors.Is(err, session.ErrAlreadyFinalized):
		g.sendJSONError(w, http.StatusConflict, "call already finalized")
	case errors.Is(err, ingest.ErrEmptyAudio), errors.Is(err, ingest.ErrNegativeChunkNumber):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, analysis.ErrAnalysisTimeout):
		g.sendJSONError(w, http.StatusGatewayTimeout, "analysis timed out")
	case errors.Is(err, analysis.ErrAnalysisFailure):
		g.sendJSONError(w, http.StatusBadGateway, "analysis failed")
	case errors.Is(err, storage.ErrStorageFailure):
		g.sendJSONError(w, http.StatusInternalServerError, "storage failure")
	default:
		g.logger.Error("unhandled pipeline error", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
