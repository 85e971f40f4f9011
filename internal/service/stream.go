package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kortex/internal/contextutil"
	"kortex/internal/metrics"
	"kortex/internal/storage"
)

// Metric labels for the four turn states.
const (
	labelPlain      = "plain"
	labelDocumentQA = "document_qa"
	labelTutor      = "tutor"
	labelDeepDive   = "deep_dive"
)

// turn is a prepared exchange. Everything that can fail before the stream
// opens has already run; run produces the answer that will be persisted.
type turn struct {
	channel       storage.Channel
	userText      string
	failurePrefix string
	run           func(ctx context.Context, emit func(string) error) (string, error)
}

// Stream runs one turn under the conversation's lock. Errors before the sink
// is opened are returned; later failures are written to the sink as a final
// fragment, nothing is persisted, and Stream returns nil.
func (s *conversationService) Stream(ctx context.Context, req TurnRequest, sink Sink) error {
	logger := contextutil.LoggerFromContext(ctx)

	if err := validateTurn(req); err != nil {
		logger.WarnContext(ctx, "invalid turn request", "mode", req.Mode, "error", err)
		return err
	}
	if req.Mode == ModeDeepDive && !s.searchConfigured() {
		logger.WarnContext(ctx, "deep dive requested without a search provider")
		return ErrSearchUnavailable
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	release, err := s.locker.Lock(ctx, req.ConversationID)
	if err != nil {
		logger.ErrorContext(ctx, "failed to lock conversation", "conversation_id", req.ConversationID, "error", err)
		return WrapError(err, "failed to lock conversation")
	}
	defer release()

	conv, err := s.loadConversation(ctx, req.ConversationID)
	if err != nil {
		return err
	}

	label := turnLabel(req.Mode, conv)
	done := s.metrics.TurnStarted(label)

	t, err := s.prepare(ctx, conv, req)
	if err != nil {
		logger.WarnContext(ctx, "turn setup failed", "conversation_id", conv.ID, "mode", label, "error", err)
		done(metrics.TurnSetup)
		return err
	}

	if err := sink.Open(); err != nil {
		done(metrics.TurnStream)
		return WrapError(err, "failed to open stream")
	}

	answer, err := t.run(ctx, sink.Write)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = fmt.Errorf("%w: backend returned an empty answer", ErrExternalService)
	}
	if err == nil {
		if err = s.convs.AppendTurn(ctx, conv.ID, storage.NewTurn(t.channel, t.userText, answer)...); err != nil {
			err = storageErr(err, "failed to save turn")
		}
	}
	if err != nil {
		logger.ErrorContext(ctx, "turn failed after stream opened", "conversation_id", conv.ID, "mode", label, "error", err)
		done(metrics.TurnStream)
		if werr := sink.Write(t.failurePrefix + err.Error()); werr != nil {
			logger.WarnContext(ctx, "failed to report turn failure", "error", werr)
		}
		return nil
	}

	logger.InfoContext(ctx, "turn completed", "conversation_id", conv.ID, "mode", label, "answer_length", len(answer))
	done(metrics.TurnOK)
	return nil
}

func validateTurn(req TurnRequest) error {
	if strings.TrimSpace(req.ConversationID) == "" {
		return &ValidationError{Field: "conversation_id", Message: "cannot be empty"}
	}
	switch req.Mode {
	case ModeChat, ModeTutor:
		if strings.TrimSpace(req.Message) == "" {
			return &ValidationError{Field: "message", Message: "cannot be empty"}
		}
	case ModeDeepDive:
	default:
		return &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown mode %q", req.Mode)}
	}
	return nil
}

func turnLabel(mode Mode, conv *storage.ConversationRecord) string {
	switch mode {
	case ModeTutor:
		return labelTutor
	case ModeDeepDive:
		return labelDeepDive
	default:
		if conv.HasDocument() {
			return labelDocumentQA
		}
		return labelPlain
	}
}

func (s *conversationService) prepare(ctx context.Context, conv *storage.ConversationRecord, req TurnRequest) (*turn, error) {
	switch req.Mode {
	case ModeTutor:
		return s.prepareTutor(ctx, conv, req.Message)
	case ModeDeepDive:
		return s.prepareDeepDive(ctx, conv)
	default:
		if conv.HasDocument() {
			return s.prepareDocumentQA(ctx, conv, req.Message)
		}
		return s.preparePlain(req.Message), nil
	}
}

// loadDocument maps a missing record to ErrNotFound.
func (s *conversationService) loadDocument(ctx context.Context, hash string) (*storage.DocumentRecord, error) {
	rec, err := s.docs.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, hash)
		}
		return nil, storageErr(err, "failed to load document")
	}
	return rec, nil
}

func (s *conversationService) history(ctx context.Context, id string) ([]storage.HistoryEntry, error) {
	entries, err := s.convs.History(ctx, id)
	if err != nil {
		return nil, storageErr(err, "failed to load history")
	}
	return entries, nil
}

// streamAnswer forwards each fragment to emit and returns the accumulated text.
func streamAnswer(ctx context.Context, gen Generator, prompt string, emit func(string) error) (string, error) {
	var answer strings.Builder
	err := gen.Stream(ctx, prompt, func(fragment string) error {
		answer.WriteString(fragment)
		return emit(fragment)
	})
	if err != nil {
		return "", externalErr(err, "generation failed")
	}
	return answer.String(), nil
}
