// ABOUTME: Gateway orchestrator that wires storage, analysis, and the coordinator
// ABOUTME: Manages the HTTP server, reaper, and component lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/krishna-hasare13/voice-phishing-detection/internal/alert"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/analysis"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/auth"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/broadcast"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/config"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/coordinator"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/ingest"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/session"
	"github.com/krishna-hasare13/voice-phishing-detection/internal/storage"
)

// Gateway orchestrates the vpd-gateway server components. It owns the HTTP
// server for the call API and WebSocket monitoring, and the pipeline behind it.
type Gateway struct {
	config      *config.Config
	coordinator *coordinator.Coordinator
	hub         *broadcast.Hub
	store       storage.ArtifactStore
	httpServer  *http.Server
	logger      *slog.Logger
}

// initStore creates the artifact store selected by config and environment.
func initStore(cfg *config.Config) (storage.ArtifactStore, error) {
	switch cfg.Storage.Backend {
	case "supabase":
		return storage.NewSupabaseStore(
			cfg.Storage.Supabase.ProjectURL,
			cfg.Storage.Supabase.APIKey,
			cfg.Storage.Supabase.Bucket,
		)
	default:
		dbPath := cfg.Storage.SQLite.Path
		if envPath := os.Getenv("VPD_DB_PATH"); envPath != "" {
			dbPath = envPath
		}
		return storage.NewSQLiteStore(dbPath, cfg.Storage.SQLite.ArtifactDir)
	}
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	store, err := initStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	registry := session.NewRegistry(logger)
	hub := broadcast.NewHub(cfg.Broadcast.HeartbeatInterval, logger)
	engine := alert.NewEngine(cfg.Alerts.MediumThreshold, cfg.Alerts.HighThreshold, logger)
	analyzer := analysis.NewHTTPGateway(cfg.Analysis.Endpoint, cfg.Analysis.Timeout, logger)
	ingestor := ingest.New(registry, store, analyzer, 0, logger)

	coord := coordinator.New(coordinator.Config{
		Registry:     registry,
		Ingestor:     ingestor,
		Alerts:       engine,
		Hub:          hub,
		SessionTTL:   cfg.Sessions.TTL,
		ReapInterval: cfg.Sessions.ReapInterval,
		Logger:       logger,
	})

	g := &Gateway{
		config:      cfg,
		coordinator: coord,
		hub:         hub,
		store:       store,
		logger:      logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	g.registerAPIRoutes(mux, cfg, logger)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// registerAPIRoutes registers call API and WebSocket routes, wrapping them in
// auth middleware when a JWT secret is configured.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, cfg *config.Config, logger *slog.Logger) {
	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		logger.Info("HTTP auth middleware enabled")
	} else {
		logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
	authMiddleware := auth.HTTPAuthMiddleware(verifier)

	mux.Handle("/api/calls", authMiddleware(http.HandlerFunc(g.handleCalls)))
	mux.Handle("/api/calls/", authMiddleware(http.HandlerFunc(g.handleCallRoutes)))
	mux.Handle("/ws/call_monitoring/", authMiddleware(http.HandlerFunc(g.handleCallMonitoring)))
}

// Run starts the HTTP server and the session reaper, blocking until the
// context is canceled. Returns nil on graceful shutdown, or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	go g.coordinator.Run(reaperCtx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.hub.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness with the number of active call sessions.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	active := g.coordinator.ListActiveCalls()
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d active calls)", len(active))
}
