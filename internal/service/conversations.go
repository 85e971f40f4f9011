package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"kortex/internal/contextutil"
	"kortex/internal/indexer"
	"kortex/internal/storage"
)

// CreateConversation creates an empty conversation.
func (s *conversationService) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	logger := contextutil.LoggerFromContext(ctx)

	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}

	rec := &storage.ConversationRecord{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.convs.Create(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "failed to create conversation", "error", err)
		return nil, storageErr(err, "failed to create conversation")
	}

	logger.InfoContext(ctx, "conversation created", "conversation_id", rec.ID)
	return toConversation(rec), nil
}

// GetConversation returns a conversation and its history.
func (s *conversationService) GetConversation(ctx context.Context, id string) (*ConversationView, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Field: "conversation_id", Message: "cannot be empty"}
	}

	rec, err := s.loadConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	entries, err := s.convs.History(ctx, id)
	if err != nil {
		return nil, storageErr(err, "failed to load history")
	}

	view := &ConversationView{
		Conversation:  *toConversation(rec),
		HasCurriculum: rec.Curriculum != "",
		History:       make([]HistoryItem, 0, len(entries)),
	}
	for _, e := range entries {
		view.History = append(view.History, HistoryItem{
			Channel: string(e.Channel),
			Role:    string(e.Role),
			Text:    e.Text,
		})
	}
	return view, nil
}

// ListConversations returns recent conversations.
func (s *conversationService) ListConversations(ctx context.Context) ([]Conversation, error) {
	recs, err := s.convs.List(ctx, listLimit)
	if err != nil {
		return nil, storageErr(err, "failed to list conversations")
	}

	out := make([]Conversation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *toConversation(rec))
	}
	return out, nil
}

// Upload ingests a document and binds it to the named conversation, or to a
// new one when the ID is empty or unknown. Nothing is bound when ingestion fails.
func (s *conversationService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if strings.TrimSpace(req.Filename) == "" {
		return nil, &ValidationError{Field: "file", Message: "filename cannot be empty"}
	}
	if len(req.Data) == 0 {
		return nil, &ValidationError{Field: "file", Message: "cannot be empty"}
	}

	res, err := s.docs.Ingest(ctx, req.Filename, req.Data)
	if err != nil {
		if errors.Is(err, indexer.ErrExtractionEmpty) {
			logger.WarnContext(ctx, "upload has no usable text", "filename", req.Filename, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrExtractionEmpty, err)
		}
		logger.ErrorContext(ctx, "failed to ingest document", "filename", req.Filename, "error", err)
		return nil, externalErr(err, "failed to process document")
	}

	title := filepath.Base(req.Filename)

	convID, err := s.bindDocument(ctx, req.ConversationID, res.ContentHash, title)
	if err != nil {
		logger.ErrorContext(ctx, "failed to bind document", "content_hash", res.ContentHash, "error", err)
		return nil, err
	}

	logger.InfoContext(ctx, "document bound to conversation",
		"conversation_id", convID,
		"content_hash", res.ContentHash,
		"cached", res.Cached,
		"chunks", res.Chunks,
	)
	return &UploadResult{
		ConversationID: convID,
		ContentHash:    res.ContentHash,
		Cached:         res.Cached,
	}, nil
}

func (s *conversationService) bindDocument(ctx context.Context, convID, hash, title string) (string, error) {
	if convID != "" {
		release, err := s.locker.Lock(ctx, convID)
		if err != nil {
			return "", WrapError(err, "failed to lock conversation")
		}
		defer release()

		err = s.convs.AttachDocument(ctx, convID, hash, title)
		if err == nil {
			return convID, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return "", storageErr(err, "failed to attach document")
		}
	}

	rec := &storage.ConversationRecord{
		ID:           uuid.NewString(),
		Title:        title,
		CreatedAt:    time.Now().UTC(),
		DocumentHash: hash,
	}
	if err := s.convs.Create(ctx, rec); err != nil {
		return "", storageErr(err, "failed to create conversation")
	}
	return rec.ID, nil
}

// loadConversation maps a missing row to ErrNotFound.
func (s *conversationService) loadConversation(ctx context.Context, id string) (*storage.ConversationRecord, error) {
	rec, err := s.convs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
		}
		return nil, storageErr(err, "failed to load conversation")
	}
	return rec, nil
}

func toConversation(rec *storage.ConversationRecord) *Conversation {
	return &Conversation{
		ID:           rec.ID,
		Title:        rec.Title,
		CreatedAt:    rec.CreatedAt,
		DocumentHash: rec.DocumentHash,
	}
}
