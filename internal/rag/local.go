package rag

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
)

const localCollection = "chunks"

// localIndex keeps chunk vectors in an in-process chromem-go collection.
type localIndex struct {
	contentHash string
	db          *chromem.DB
	collection  *chromem.Collection
	embedder    Embedder
	signer      *signer
}

// embeddingFunc adapts an Embedder to chromem's single-text signature.
func embeddingFunc(embedder Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := embedder.EmbedTexts(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("expected 1 embedding, got %d", len(vecs))
		}
		return vecs[0], nil
	}
}

func buildLocal(ctx context.Context, contentHash string, chunks []string, vectors [][]float32, embedder Embedder, s *signer) (*localIndex, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(localCollection, map[string]string{"content_hash": contentHash}, embeddingFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Metadata:  map[string]string{"chunk_index": strconv.Itoa(i)},
			Embedding: vectors[i],
			Content:   chunk,
		}
	}
	if err := col.AddDocuments(ctx, docs, 4); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	return &localIndex{
		contentHash: contentHash,
		db:          db,
		collection:  col,
		embedder:    embedder,
		signer:      s,
	}, nil
}

func restoreLocal(contentHash string, payload []byte, embedder Embedder, s *signer) (*localIndex, error) {
	db := chromem.NewDB()
	if err := db.ImportFromReader(bytes.NewReader(payload), ""); err != nil {
		return nil, fmt.Errorf("failed to import index: %w", err)
	}

	col := db.GetCollection(localCollection, embeddingFunc(embedder))
	if col == nil {
		return nil, fmt.Errorf("%w: collection %q missing", ErrUntrustedIndex, localCollection)
	}

	return &localIndex{
		contentHash: contentHash,
		db:          db,
		collection:  col,
		embedder:    embedder,
		signer:      s,
	}, nil
}

func (x *localIndex) Len() int {
	return x.collection.Count()
}

func (x *localIndex) Query(ctx context.Context, question string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	count := x.collection.Count()
	if count == 0 {
		return nil, nil
	}

	vec, err := embeddingFunc(x.embedder)(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := x.collection.QueryEmbedding(ctx, vec, candidateCount(k, count), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		idx, err := strconv.Atoi(r.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid chunk id %q: %w", r.ID, err)
		}
		hits = append(hits, Hit{ChunkIndex: idx, Text: r.Content, ScoreVector: r.Similarity})
	}

	return rerank(question, hits, k), nil
}

func (x *localIndex) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := x.db.ExportToWriter(&buf, true, ""); err != nil {
		return nil, fmt.Errorf("failed to export index: %w", err)
	}
	return x.signer.seal(x.contentHash, kindLocal, buf.Bytes()), nil
}
