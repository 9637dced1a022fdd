// ABOUTME: WebSocket endpoint streaming live call events to monitoring clients
// ABOUTME: Dedicated writer loop with write deadlines and protocol-level pings

package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/krishna-hasare13/voice-phishing-detection/internal/broadcast"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 20 * time.Second

	// wsMaxClientMessageBytes caps inbound frames; monitoring clients only
	// ever send small control messages.
	wsMaxClientMessageBytes = 4096
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Monitoring dashboards are served from arbitrary origins; the JWT (or
	// disabled auth) is the access control, not the Origin header.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleCallMonitoring handles GET /ws/call_monitoring/{call_id}. The client
// receives the event stream for one call: an initial snapshot when the call
// already has recorded state, then live updates, alerts, heartbeats, and the
// final summary.
func (g *Gateway) handleCallMonitoring(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	callID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/call_monitoring/"), "/")
	if callID == "" || strings.Contains(callID, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "call_id is required")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		g.logger.Debug("websocket upgrade failed", "error", err, "call_id", callID)
		return
	}

	sub := g.coordinator.Subscribe(r.Context(), callID)
	defer g.coordinator.Unsubscribe(sub)

	logger := g.logger.With("call_id", callID, "sub_id", sub.ID)
	logger.Info("monitoring client connected")

	// Reader goroutine: we never expect data frames, but reading is required
	// to process close frames and detect dropped peers.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(wsMaxClientMessageBytes)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	g.writeEvents(conn, sub, readerDone, logger)

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
	_ = conn.Close()
	logger.Info("monitoring client disconnected")
}

// writeEvents pumps subscription events to the socket until the subscription
// closes, the client disconnects, or a write fails.
func (g *Gateway) writeEvents(conn *websocket.Conn, sub *broadcast.Subscription, readerDone <-chan struct{}, logger *slog.Logger) {
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-readerDone:
			return
		case <-pingTicker.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				logger.Warn("websocket ping failed", "error", err)
				return
			}
		case event, ok := <-sub.Events():
			if !ok {
				// Hub evicted us or shut down.
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				logger.Warn("failed to marshal event", "error", err, "event_type", event.Type)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("websocket write failed", "error", err)
				return
			}
		}
	}
}
