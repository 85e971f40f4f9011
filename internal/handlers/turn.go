package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"kortex/internal/contextutil"
	"kortex/internal/service"
)

// TurnHandler streams one conversation turn in a fixed mode.
type TurnHandler struct {
	svc  service.ConversationService
	mode service.Mode
}

// NewTurnHandler creates a new TurnHandler for mode.
func NewTurnHandler(svc service.ConversationService, mode service.Mode) *TurnHandler {
	return &TurnHandler{svc: svc, mode: mode}
}

// TurnRequest represents the HTTP request payload for chat, tutor and deep dive turns.
//
// swagger:model TurnRequest
type TurnRequest struct {
	ConversationID string `json:"conversation_id"`
	// Message is ignored by deep dive
	Message string `json:"message"`
}

// ServeHTTP handles a turn. The reply is streamed as text/plain; errors found
// before streaming starts are returned as JSON.
func (h *TurnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	sink := &streamSink{w: w, flusher: flusher}
	err := h.svc.Stream(ctx, service.TurnRequest{
		ConversationID: req.ConversationID,
		Mode:           h.mode,
		Message:        req.Message,
	}, sink)
	if err == nil {
		return
	}

	if sink.opened {
		// Headers are gone; the best we can do is append to the body.
		logger.ErrorContext(ctx, "turn failed after stream opened", "error", err)
		_ = sink.Write(fmt.Sprintf("\n[error: %s]", publicMessage(err, "stream failed")))
		return
	}
	handleServiceError(w, ctx, err, "Failed to process turn")
}

// streamSink writes fragments straight to the response, flushing each one.
type streamSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	opened  bool
}

func (s *streamSink) Open() error {
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
	s.opened = true
	return nil
}

func (s *streamSink) Write(fragment string) error {
	if _, err := io.WriteString(s.w, fragment); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
