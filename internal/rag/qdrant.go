package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"kortex/internal/vectorstore"
)

// pointNamespace seeds deterministic point IDs, so re-ingesting a document
// overwrites its points instead of duplicating them.
var pointNamespace = uuid.MustParse("5c3e9f0a-7d2b-4c1e-9a63-2f8d41b0c7e5")

// qdrantDescriptor is the serialized payload of a Qdrant-backed index.
type qdrantDescriptor struct {
	Collection  string `json:"collection"`
	ContentHash string `json:"content_hash"`
	Count       int    `json:"count"`
}

// qdrantIndex stores chunk vectors as points in a shared Qdrant collection,
// filtered by content hash at query time.
type qdrantIndex struct {
	desc     qdrantDescriptor
	store    vectorstore.VectorStore
	embedder Embedder
	signer   *signer
}

// PointID returns the deterministic Qdrant point ID for a chunk.
func PointID(contentHash string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s:%d", contentHash, chunkIndex))).String()
}

func buildQdrant(ctx context.Context, contentHash string, chunks []string, vectors [][]float32, store vectorstore.VectorStore, collection string, embedder Embedder, s *signer) (*qdrantIndex, error) {
	points := make([]vectorstore.Point, len(chunks))
	for i, chunk := range chunks {
		points[i] = vectorstore.Point{
			ID:  PointID(contentHash, i),
			Vec: vectors[i],
			Meta: map[string]any{
				vectorstore.FieldContentHash: contentHash,
				vectorstore.FieldChunkIndex:  int64(i),
				vectorstore.FieldText:        chunk,
			},
		}
	}

	if err := store.Upsert(ctx, collection, points); err != nil {
		return nil, fmt.Errorf("failed to upsert chunk vectors: %w", err)
	}

	return &qdrantIndex{
		desc: qdrantDescriptor{
			Collection:  collection,
			ContentHash: contentHash,
			Count:       len(chunks),
		},
		store:    store,
		embedder: embedder,
		signer:   s,
	}, nil
}

func restoreQdrant(contentHash string, payload []byte, store vectorstore.VectorStore, embedder Embedder, s *signer) (*qdrantIndex, error) {
	var desc qdrantDescriptor
	if err := json.Unmarshal(payload, &desc); err != nil {
		return nil, fmt.Errorf("failed to decode index descriptor: %w", err)
	}
	if desc.ContentHash != contentHash {
		return nil, fmt.Errorf("%w: descriptor is for %s", ErrUntrustedIndex, desc.ContentHash)
	}

	return &qdrantIndex{desc: desc, store: store, embedder: embedder, signer: s}, nil
}

func (x *qdrantIndex) Len() int {
	return x.desc.Count
}

func (x *qdrantIndex) Query(ctx context.Context, question string, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}
	if x.desc.Count == 0 {
		return nil, nil
	}

	vec, err := embeddingFunc(x.embedder)(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := x.store.Search(ctx, x.desc.Collection, vec, candidateCount(k, x.desc.Count), map[string]any{
		vectorstore.FieldContentHash: x.desc.ContentHash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		text, _ := r.Meta[vectorstore.FieldText].(string)
		idx, ok := r.Meta[vectorstore.FieldChunkIndex].(int64)
		if !ok {
			return nil, fmt.Errorf("point %s has no chunk index", r.PointID)
		}
		hits = append(hits, Hit{ChunkIndex: int(idx), Text: text, ScoreVector: r.Score})
	}

	return rerank(question, hits, k), nil
}

func (x *qdrantIndex) Serialize() ([]byte, error) {
	payload, err := json.Marshal(x.desc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode index descriptor: %w", err)
	}
	return x.signer.seal(x.desc.ContentHash, kindQdrant, payload), nil
}
