package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"zrelay/internal/bridge"
	"zrelay/internal/history"
	"zrelay/internal/logging"
	"zrelay/internal/security"
	"zrelay/internal/stt"
)

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply        string `json:"reply"`
	BridgeTarget string `json:"bridge_target"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	s.applyCORS(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, errorResponse{Error: message})
}

// gatekeep runs the shared mutating-request policy: origin, then auth.
// It writes the error response itself and reports whether to proceed.
func (s *Server) gatekeep(w http.ResponseWriter, r *http.Request) bool {
	if !security.IsPostOriginAllowed(r.Header.Get("Origin"), r.Host, s.cfg.CORSOrigin) {
		s.writeError(w, r, http.StatusForbidden, "origin not allowed")
		return false
	}
	if !security.IsRequestAuthorized(r.Header.Get(headerAPIKey), s.cfg.APIKey) {
		s.writeError(w, r, http.StatusUnauthorized, "invalid or missing API key")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	devicePresent := true
	if s.devicePresent != nil {
		devicePresent = s.devicePresent.Load()
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"ok":                true,
		"bridge_target":     s.cfg.BridgeTarget,
		"mode":              s.cfg.Mode,
		"voice_stt_enabled": s.transcriber != nil,
		"device_present":    devicePresent,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"api_key_required":  s.cfg.APIKey != "",
		"bridge_target":     s.cfg.BridgeTarget,
		"voice_stt_enabled": s.transcriber != nil,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !security.IsPostOriginAllowed(r.Header.Get("Origin"), r.Host, s.cfg.CORSOrigin) {
		s.writeError(w, r, http.StatusForbidden, "origin not allowed")
		return
	}
	if !security.IsJSONContentType(r.Header.Get("Content-Type")) {
		s.writeError(w, r, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}
	if !security.IsRequestAuthorized(r.Header.Get(headerAPIKey), s.cfg.APIKey) {
		s.writeError(w, r, http.StatusUnauthorized, "invalid or missing API key")
		return
	}

	var req chatRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.writeError(w, r, http.StatusBadRequest, "message is required")
		return
	}
	if len(message) > maxChatMessageLen {
		s.writeError(w, r, http.StatusBadRequest, "message exceeds maximum length")
		return
	}

	requestID := uuid.NewString()
	logger := s.logger.With(logging.String(logging.FieldRequestID, requestID))
	logger.Info("chat request", logging.Int("message_len", len(message)))

	started := time.Now()
	reply, err := s.agent.Ask(r.Context(), message)
	elapsed := time.Since(started)

	if err != nil {
		status, public := classifyChatError(err)
		logger.Warn("chat request failed",
			logging.Error(err),
			logging.Int("status", status),
			logging.Duration("elapsed", elapsed),
		)
		s.recordExchange(requestID, message, "", statusLabel(status), elapsed)
		s.writeError(w, r, status, public)
		return
	}

	logger.Info("chat reply",
		logging.Int("reply_len", len(reply)),
		logging.Duration("elapsed", elapsed),
	)
	s.recordExchange(requestID, message, reply, "ok", elapsed)

	s.writeJSON(w, r, http.StatusOK, chatResponse{
		Reply:        reply,
		BridgeTarget: s.cfg.BridgeTarget,
		ElapsedMS:    elapsed.Milliseconds(),
	})
}

func (s *Server) handleVoiceSTT(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.gatekeep(w, r) {
		return
	}
	if s.transcriber == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "voice transcription is not configured")
		return
	}

	pcm, err := io.ReadAll(io.LimitReader(r.Body, maxVoiceBodyBytes+1))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "failed to read audio body")
		return
	}
	if len(pcm) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "audio body is empty")
		return
	}
	if len(pcm) > maxVoiceBodyBytes {
		s.writeError(w, r, http.StatusBadRequest, "audio body exceeds maximum size")
		return
	}

	sampleRate := 16000
	if raw := strings.TrimSpace(r.Header.Get(headerSampleRate)); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			s.writeError(w, r, http.StatusBadRequest, "invalid sample rate header")
			return
		}
		sampleRate = parsed
	}

	started := time.Now()
	transcript, err := s.transcriber.Transcribe(r.Context(), pcm, sampleRate)
	elapsed := time.Since(started)

	if err != nil {
		s.logger.Warn("voice transcription failed",
			logging.Error(err),
			logging.Duration("elapsed", elapsed),
		)
		s.writeError(w, r, http.StatusBadGateway, "transcription failed")
		return
	}

	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"transcript": stt.SanitizeTranscript(transcript),
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.gatekeep(w, r) {
		return
	}
	if s.store == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "history is not enabled")
		return
	}

	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			s.writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	exchanges, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Warn("history query failed", logging.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "history query failed")
		return
	}

	type historyEntry struct {
		RequestID    string `json:"request_id"`
		Prompt       string `json:"prompt"`
		Reply        string `json:"reply"`
		BridgeTarget string `json:"bridge_target"`
		Status       string `json:"status"`
		ElapsedMS    int64  `json:"elapsed_ms"`
		CreatedAt    string `json:"created_at"`
	}
	entries := make([]historyEntry, 0, len(exchanges))
	for _, exchange := range exchanges {
		entries = append(entries, historyEntry{
			RequestID:    exchange.RequestID,
			Prompt:       exchange.Prompt,
			Reply:        exchange.Reply,
			BridgeTarget: exchange.BridgeTarget,
			Status:       exchange.Status,
			ElapsedMS:    exchange.ElapsedMS,
			CreatedAt:    exchange.CreatedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"exchanges": entries})
}

// classifyChatError maps bridge sentinels onto HTTP status codes. Anything
// unclassified becomes a generic 502 so transport detail never leaks to the
// client; the full error is logged server-side.
func classifyChatError(err error) (int, string) {
	switch {
	case errors.Is(err, bridge.ErrValidation):
		return http.StatusBadRequest, publicMessage(err, "invalid request")
	case errors.Is(err, bridge.ErrTimeout):
		return http.StatusGatewayTimeout, "the agent did not respond in time"
	case errors.Is(err, bridge.ErrTransport):
		return http.StatusServiceUnavailable, publicMessage(err, "the agent transport is unavailable")
	default:
		return http.StatusBadGateway, "bridge error"
	}
}

// publicMessage strips the sentinel prefix from a classified error so the
// remediation text reaches the client without the internal wrapping.
func publicMessage(err error, fallback string) string {
	text := err.Error()
	if _, detail, ok := strings.Cut(text, ": "); ok && strings.TrimSpace(detail) != "" {
		return detail
	}
	return fallback
}

func statusLabel(status int) string {
	switch status {
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusServiceUnavailable:
		return "transport_error"
	case http.StatusBadRequest:
		return "validation_error"
	default:
		return "bridge_error"
	}
}

// recordExchange persists the exchange best-effort. It deliberately uses a
// fresh context because the request context may already be cancelled when a
// timeout is being recorded.
func (s *Server) recordExchange(requestID, prompt, reply, status string, elapsed time.Duration) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.store.Record(ctx, history.Exchange{
		RequestID:    requestID,
		Prompt:       prompt,
		Reply:        reply,
		BridgeTarget: s.cfg.BridgeTarget,
		Status:       status,
		ElapsedMS:    elapsed.Milliseconds(),
	})
	if err != nil {
		s.logger.Warn("record exchange", logging.Error(err))
	}
}
