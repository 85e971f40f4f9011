package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks kortex/internal/rag Embedder

import (
	"context"
	"errors"
)

// ErrUntrustedIndex is returned when a blob fails signature or format checks.
var ErrUntrustedIndex = errors.New("index blob was not produced by this system")

// Embedder turns texts into fixed-length vectors.
// This interface is defined from the retrieval layer's perspective (consumer-first).
type Embedder interface {
	// EmbedTexts returns one vector per input text, in order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Hit is one retrieved chunk.
type Hit struct {
	// ChunkIndex is the position of the chunk in the document's chunk list.
	ChunkIndex int
	// Text is the chunk text.
	Text string
	// ScoreVector is the cosine similarity from the vector search.
	ScoreVector float32
	// ScoreFinal is the vector score blended with the lexical score.
	ScoreFinal float32
}

// Index answers similarity queries over one document's chunks.
type Index interface {
	// Query returns up to k chunks ordered by relevance to question.
	Query(ctx context.Context, question string, k int) ([]Hit, error)
	// Serialize returns a signed blob that Builder.Restore accepts for the same content hash.
	Serialize() ([]byte, error)
	// Len returns the number of indexed chunks.
	Len() int
}
