package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"kortex/internal/contextutil"
	"kortex/internal/service"
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleServiceError maps service errors to appropriate HTTP status codes and responses.
func handleServiceError(w http.ResponseWriter, ctx context.Context, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	switch service.Classify(err) {
	case service.CategoryBadRequest:
		logger.WarnContext(ctx, "bad request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case service.CategoryNotFound:
		logger.WarnContext(ctx, "resource not found", "error", err)
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.ErrorContext(ctx, "service error", "error", err)
		writeError(w, http.StatusInternalServerError, publicMessage(err, defaultMsg))
	}
}

// publicMessage hides internal details except for errors the client can act on.
func publicMessage(err error, defaultMsg string) string {
	switch {
	case errors.Is(err, service.ErrSearchUnavailable):
		return service.ErrSearchUnavailable.Error()
	case errors.Is(err, service.ErrExternalService):
		return defaultMsg + ": external service error"
	default:
		return defaultMsg
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
