package service

import (
	"context"
	"fmt"
	"strings"

	"kortex/internal/contextutil"
	"kortex/internal/storage"
)

func (s *conversationService) prepareTutor(ctx context.Context, conv *storage.ConversationRecord, message string) (*turn, error) {
	if !conv.HasDocument() {
		return nil, fmt.Errorf("%w: conversation %s has no document", ErrNotFound, conv.ID)
	}

	doc, err := s.loadDocument(ctx, conv.DocumentHash)
	if err != nil {
		return nil, err
	}
	text := doc.Text()

	curriculum, err := s.ensureCurriculum(ctx, conv, text)
	if err != nil {
		return nil, err
	}

	entries, err := s.history(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	prompt := tutorPrompt(tutorInput{
		firstTurn:  !storage.HasChannel(entries, storage.ChannelAssisted),
		curriculum: curriculum,
		history:    storage.AssistedEntries(entries),
		excerpt:    prefix(text, excerptChars),
		message:    message,
	})

	return &turn{
		channel:       storage.ChannelAssisted,
		userText:      message,
		failurePrefix: streamFailurePrefix,
		run: func(ctx context.Context, emit func(string) error) (string, error) {
			return streamAnswer(ctx, s.assisted, prompt, emit)
		},
	}, nil
}

// ensureCurriculum returns the conversation's curriculum, generating and
// storing it on first use.
func (s *conversationService) ensureCurriculum(ctx context.Context, conv *storage.ConversationRecord, documentText string) (string, error) {
	if conv.Curriculum != "" {
		return conv.Curriculum, nil
	}
	logger := contextutil.LoggerFromContext(ctx)

	generated, err := s.assisted.Complete(ctx, curriculumPrompt(documentText))
	if err != nil {
		return "", externalErr(err, "failed to generate curriculum")
	}
	generated = strings.TrimSpace(generated)
	if generated == "" {
		return "", fmt.Errorf("%w: backend returned an empty curriculum", ErrExternalService)
	}

	written, err := s.convs.SetCurriculum(ctx, conv.ID, generated)
	if err != nil {
		return "", storageErr(err, "failed to save curriculum")
	}
	if written {
		logger.InfoContext(ctx, "curriculum generated", "conversation_id", conv.ID, "length", len(generated))
		return generated, nil
	}

	// Another writer got there first; use the stored one.
	current, err := s.loadConversation(ctx, conv.ID)
	if err != nil {
		return "", err
	}
	return current.Curriculum, nil
}
