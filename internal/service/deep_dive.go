package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"kortex/internal/contextutil"
	"kortex/internal/storage"
)

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

func (s *conversationService) prepareDeepDive(ctx context.Context, conv *storage.ConversationRecord) (*turn, error) {
	if !conv.HasDocument() {
		return nil, &ValidationError{Field: "conversation_id", Message: "a document must be associated for a deep dive"}
	}

	doc, err := s.loadDocument(ctx, conv.DocumentHash)
	if err != nil {
		return nil, err
	}
	text := doc.Text()

	return &turn{
		channel:       storage.ChannelAssisted,
		userText:      deepDiveUserText,
		failurePrefix: deepDiveFailurePrefix,
		run: func(ctx context.Context, emit func(string) error) (string, error) {
			return s.runDeepDive(ctx, text, emit)
		},
	}, nil
}

// runDeepDive generates search queries, gathers snippets and streams a
// synthesis. Progress lines are emitted but are not part of the answer.
func (s *conversationService) runDeepDive(ctx context.Context, documentText string, emit func(string) error) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	queries, err := s.generateQueries(ctx, documentText)
	if err != nil {
		return "", err
	}

	if err := emit(progressGathering); err != nil {
		return "", err
	}

	var web strings.Builder
	for _, q := range queries {
		if err := emit(fmt.Sprintf(progressSearchFormat, q)); err != nil {
			return "", err
		}

		results, err := s.search.Search(ctx, q)
		s.metrics.RecordSearch(err)
		if err != nil {
			return "", externalErr(err, "web search failed")
		}
		logger.DebugContext(ctx, "web search completed", "query", q, "results", len(results))

		if len(results) > snippetsPerQuery {
			results = results[:snippetsPerQuery]
		}
		for _, r := range results {
			if r.Snippet == "" {
				continue
			}
			web.WriteString(r.Snippet)
			web.WriteString("\n")
		}
	}

	if err := emit(progressSynthesizing); err != nil {
		return "", err
	}
	return streamAnswer(ctx, s.assisted, synthesisPrompt(documentText, web.String()), emit)
}

// generateQueries asks the assisted backend for a JSON array of search queries.
func (s *conversationService) generateQueries(ctx context.Context, documentText string) ([]string, error) {
	raw, err := s.assisted.Complete(ctx, queryGenerationPrompt(documentText))
	if err != nil {
		return nil, externalErr(err, "failed to generate search queries")
	}

	match := jsonArrayPattern.FindString(raw)
	if match == "" {
		return nil, ErrQueryGenerationMalformed
	}

	var queries []string
	if err := json.Unmarshal([]byte(match), &queries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryGenerationMalformed, err)
	}

	out := make([]string, 0, maxDeepDiveQueries)
	for _, q := range queries {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
		if len(out) == maxDeepDiveQueries {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrQueryGenerationMalformed
	}
	return out, nil
}
