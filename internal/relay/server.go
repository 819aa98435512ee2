// Package relay hosts the HTTP front door that bridges the web chat client
// to the agent bridge, plus the daemon wiring that assembles the pieces.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"zrelay/internal/bridge"
	"zrelay/internal/history"
	"zrelay/internal/logging"
	"zrelay/internal/security"
	"zrelay/internal/stt"
)

const (
	headerAPIKey     = "X-Zclaw-Key"
	headerSampleRate = "X-Zclaw-Sample-Rate"

	corsAllowMethods = "GET,POST,OPTIONS"
	corsAllowHeaders = "Content-Type,X-Zclaw-Key"

	maxChatMessageLen = 4096
	maxVoiceBodyBytes = 512 * 1024
)

// ServerConfig carries the front door settings.
type ServerConfig struct {
	BindAddress  string
	APIKey       string
	CORSOrigin   string
	BridgeTarget string
	Mode         string
}

// Server is the HTTP front door. It owns no bridge state beyond the
// handle; all policy decisions delegate to the security package.
type Server struct {
	cfg         ServerConfig
	logger      *slog.Logger
	agent       bridge.AgentBridge
	transcriber stt.Transcriber
	store       *history.Store

	devicePresent *atomic.Bool

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// NewServer assembles the front door. The transcriber and history store may
// be nil; the matching endpoints then report unavailable or skip recording.
func NewServer(
	cfg ServerConfig,
	logger *slog.Logger,
	agent bridge.AgentBridge,
	transcriber stt.Transcriber,
	store *history.Store,
	devicePresent *atomic.Bool,
) *Server {
	srv := &Server{
		cfg:           cfg,
		logger:        logging.NewComponentLogger(logger, "http"),
		agent:         agent,
		transcriber:   transcriber,
		store:         store,
		devicePresent: devicePresent,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/api/config", srv.handleConfig)
	mux.HandleFunc("/api/chat", srv.handleChat)
	mux.HandleFunc("/api/voice/stt", srv.handleVoiceSTT)
	mux.HandleFunc("/api/history", srv.handleHistory)

	srv.server = &http.Server{
		Handler:           srv.withPreflight(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Start binds the listener and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.BindAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.BindAddress, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if serveErr := s.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("http server error", logging.Error(serveErr))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("relay listening",
		logging.String("address", listener.Addr().String()),
		logging.String("bridge_target", s.cfg.BridgeTarget),
		logging.Bool("auth", s.cfg.APIKey != ""),
	)
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

// Addr returns the bound listener address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// withPreflight answers CORS preflight requests before routing. A preflight
// only exists for cross-origin callers, so it is allowed solely when the
// request Origin matches the configured CORS origin; everything else gets
// 403 so the browser surfaces the block. Same-origin traffic never sends
// OPTIONS preflights and is unaffected.
func (s *Server) withPreflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		if !security.IsCORSOriginAllowed(origin, s.cfg.CORSOrigin) {
			s.writeError(w, r, http.StatusForbidden, "origin not allowed")
			return
		}

		s.applyCORS(w, r)
		w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
		w.WriteHeader(http.StatusNoContent)
	})
}

// applyCORS echoes the request origin when it matches the configured CORS
// origin. Same-origin and non-browser traffic gets no CORS headers.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !security.IsCORSOriginAllowed(origin, s.cfg.CORSOrigin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Add("Vary", "Origin")
}
