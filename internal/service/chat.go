package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kortex/internal/contextutil"
	"kortex/internal/storage"
)

func (s *conversationService) preparePlain(message string) *turn {
	return &turn{
		channel:       storage.ChannelPlain,
		userText:      message,
		failurePrefix: streamFailurePrefix,
		run: func(ctx context.Context, emit func(string) error) (string, error) {
			answer, err := s.plain.Complete(ctx, message)
			if err != nil {
				return "", externalErr(err, "generation failed")
			}
			if err := emit(answer); err != nil {
				return "", WrapError(err, "failed to write answer")
			}
			return answer, nil
		},
	}
}

// prepareDocumentQA answers from the bound document's index. Prior plain
// turns act as memory: they condense the follow-up into a standalone
// question and are replayed in the answer prompt.
func (s *conversationService) prepareDocumentQA(ctx context.Context, conv *storage.ConversationRecord, message string) (*turn, error) {
	doc, err := s.docs.Load(ctx, conv.DocumentHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, conv.DocumentHash)
		}
		return nil, storageErr(err, "failed to load document")
	}

	entries, err := s.history(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	memory := storage.PlainPairs(entries)

	return &turn{
		channel:       storage.ChannelPlain,
		userText:      message,
		failurePrefix: streamFailurePrefix,
		run: func(ctx context.Context, emit func(string) error) (string, error) {
			logger := contextutil.LoggerFromContext(ctx)

			question := message
			if len(memory) > 0 {
				condensed, err := s.plain.Complete(ctx, condensePrompt(memory, message))
				if err != nil {
					return "", externalErr(err, "failed to condense question")
				}
				if c := strings.TrimSpace(condensed); c != "" {
					question = c
				}
			}

			hits, err := doc.Index.Query(ctx, question, s.retrievalK)
			if err != nil {
				return "", externalErr(err, "failed to retrieve context")
			}
			logger.DebugContext(ctx, "retrieved context", "question", question, "hits", len(hits))

			answer, err := s.plain.Complete(ctx, documentQAPrompt(question, hits, memory))
			if err != nil {
				return "", externalErr(err, "generation failed")
			}
			if err := emit(answer); err != nil {
				return "", WrapError(err, "failed to write answer")
			}
			return answer, nil
		},
	}, nil
}
