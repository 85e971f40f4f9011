package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kortex/internal/contextutil"
	"kortex/internal/service"
)

// ConversationHandler handles HTTP requests for conversation resources.
type ConversationHandler struct {
	svc service.ConversationService
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(svc service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// CreateConversationRequest represents the HTTP request payload for creating a conversation.
//
// swagger:model CreateConversationRequest
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// ConversationResponse is the summary of a conversation.
//
// swagger:model ConversationResponse
type ConversationResponse struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	DocumentHash string    `json:"document_hash,omitempty"`
}

// HistoryEntryResponse is one transcript entry.
//
// swagger:model HistoryEntryResponse
type HistoryEntryResponse struct {
	// Channel is "plain" for chat turns and "assisted" for tutor and deep dive turns
	Channel string `json:"channel"`
	// Role is "user" or "model"
	Role string `json:"role"`
	Text string `json:"text"`
}

// ConversationDetailResponse is a conversation with its transcript.
//
// swagger:model ConversationDetailResponse
type ConversationDetailResponse struct {
	ConversationResponse
	HasCurriculum bool                   `json:"has_curriculum"`
	History       []HistoryEntryResponse `json:"history"`
}

// Create handles POST /api/conversations.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req CreateConversationRequest
	// An empty body is allowed and yields the default title.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := h.svc.CreateConversation(ctx, req.Title)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to create conversation")
		return
	}

	writeJSON(w, http.StatusCreated, toConversationResponse(conv))
}

// List handles GET /api/conversations.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	convs, err := h.svc.ListConversations(ctx)
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to list conversations")
		return
	}

	resp := make([]ConversationResponse, 0, len(convs))
	for i := range convs {
		resp = append(resp, toConversationResponse(&convs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/conversations/{id}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	view, err := h.svc.GetConversation(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to load conversation")
		return
	}

	resp := ConversationDetailResponse{
		ConversationResponse: toConversationResponse(&view.Conversation),
		HasCurriculum:        view.HasCurriculum,
		History:              make([]HistoryEntryResponse, 0, len(view.History)),
	}
	for _, item := range view.History {
		resp.History = append(resp.History, HistoryEntryResponse{
			Channel: item.Channel,
			Role:    item.Role,
			Text:    item.Text,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toConversationResponse(c *service.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:           c.ID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		DocumentHash: c.DocumentHash,
	}
}
