package rag

import (
	"context"
	"fmt"

	"kortex/internal/vectorstore"
)

// Builder creates and restores retrieval indexes for one backend.
type Builder struct {
	embedder   Embedder
	signer     *signer
	store      vectorstore.VectorStore
	collection string
}

// NewLocalBuilder returns a Builder for in-process chromem-go indexes.
// signingKey authenticates serialized blobs.
func NewLocalBuilder(embedder Embedder, signingKey []byte) *Builder {
	return &Builder{
		embedder: embedder,
		signer:   newSigner(signingKey),
	}
}

// NewQdrantBuilder returns a Builder that stores vectors in a Qdrant collection.
func NewQdrantBuilder(embedder Embedder, store vectorstore.VectorStore, collection string, signingKey []byte) *Builder {
	return &Builder{
		embedder:   embedder,
		signer:     newSigner(signingKey),
		store:      store,
		collection: collection,
	}
}

// Backend returns the name of the backend new indexes are built with.
func (b *Builder) Backend() string {
	if b.store != nil {
		return kindQdrant.String()
	}
	return kindLocal.String()
}

// Build indexes chunks with their precomputed vectors.
func (b *Builder) Build(ctx context.Context, contentHash string, chunks []string, vectors [][]float32) (Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to index")
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}

	if b.store != nil {
		return buildQdrant(ctx, contentHash, chunks, vectors, b.store, b.collection, b.embedder, b.signer)
	}
	return buildLocal(ctx, contentHash, chunks, vectors, b.embedder, b.signer)
}

// Restore verifies and decodes a blob produced by Index.Serialize for contentHash.
// Blobs with a bad signature, or bound to another hash, yield ErrUntrustedIndex.
func (b *Builder) Restore(contentHash string, blob []byte) (Index, error) {
	kind, payload, err := b.signer.open(contentHash, blob)
	if err != nil {
		return nil, err
	}

	switch kind {
	case kindLocal:
		return restoreLocal(contentHash, payload, b.embedder, b.signer)
	case kindQdrant:
		if b.store == nil {
			return nil, fmt.Errorf("index for %s lives in qdrant but no qdrant store is configured", contentHash)
		}
		return restoreQdrant(contentHash, payload, b.store, b.embedder, b.signer)
	default:
		return nil, fmt.Errorf("%w: unknown index kind %s", ErrUntrustedIndex, kind)
	}
}
