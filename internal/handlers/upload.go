package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"kortex/internal/contextutil"
	"kortex/internal/service"
)

// ConversationIDHeader optionally names the conversation an upload binds to.
const ConversationIDHeader = "X-Conversation-ID"

// multipartMemory is how much of a multipart body is kept in memory before spilling to disk.
const multipartMemory = 8 << 20

// UploadHandler handles document uploads.
type UploadHandler struct {
	svc      service.ConversationService
	maxBytes int64
}

// NewUploadHandler creates a new UploadHandler. Bodies over maxBytes are rejected.
func NewUploadHandler(svc service.ConversationService, maxBytes int64) *UploadHandler {
	return &UploadHandler{svc: svc, maxBytes: maxBytes}
}

// UploadResponse represents the HTTP response payload for an upload.
//
// swagger:model UploadResponse
type UploadResponse struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	ContentHash    string `json:"content_hash"`
	// Cached is true when identical bytes were processed before
	Cached bool `json:"cached"`
}

// ServeHTTP handles POST /api/upload with a multipart "file" field.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(ctx, "upload too large", "limit", tooLarge.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		logger.WarnContext(ctx, "invalid multipart body", "error", err)
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read upload", "error", err)
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	res, err := h.svc.Upload(ctx, service.UploadRequest{
		ConversationID: strings.TrimSpace(r.Header.Get(ConversationIDHeader)),
		Filename:       header.Filename,
		Data:           data,
	})
	if err != nil {
		handleServiceError(w, ctx, err, "Failed to process file")
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Message:        "File processed",
		ConversationID: res.ConversationID,
		ContentHash:    res.ContentHash,
		Cached:         res.Cached,
	})
}
