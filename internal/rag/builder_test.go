package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"kortex/internal/rag/mocks"
	"kortex/internal/vectorstore"
	vsmocks "kortex/internal/vectorstore/mocks"
)

const fakeDims = 64

// hashEmbedder is a deterministic bag-of-words embedder.
type hashEmbedder struct{}

func (hashEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, fakeDims)
		vec[0] = 0.1
		for _, tok := range tokenize(text) {
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec[1+int(h.Sum32()%(fakeDims-1))]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		n := float32(math.Sqrt(norm))
		for j := range vec {
			vec[j] /= n
		}
		out[i] = vec
	}
	return out, nil
}

var testChunks = []string{
	"The quarterly revenue grew by twelve percent.",
	"Supply chain risks include port congestion and tariffs.",
	"Employee headcount remained flat across all regions.",
	"Revenue guidance for next year was raised.",
	"The board approved a new sustainability policy.",
}

func embedChunks(t *testing.T) [][]float32 {
	t.Helper()
	vecs, err := hashEmbedder{}.EmbedTexts(context.Background(), testChunks)
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	return vecs
}

func TestBuilder_LocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBuilder(hashEmbedder{}, testKey)

	idx, err := b.Build(ctx, "hash-a", testChunks, embedChunks(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if idx.Len() != len(testChunks) {
		t.Fatalf("Len() = %d, want %d", idx.Len(), len(testChunks))
	}

	before, err := idx.Query(ctx, "revenue", 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(before) != 2 {
		t.Fatalf("Query() returned %d hits, want 2", len(before))
	}
	for _, h := range before {
		if !strings.Contains(strings.ToLower(h.Text), "revenue") {
			t.Errorf("unexpected hit %d: %q", h.ChunkIndex, h.Text)
		}
		if h.Text != testChunks[h.ChunkIndex] {
			t.Errorf("hit text %q does not match chunk %d", h.Text, h.ChunkIndex)
		}
	}

	blob, err := idx.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	restored, err := b.Restore("hash-a", blob)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.Len() != len(testChunks) {
		t.Fatalf("restored Len() = %d, want %d", restored.Len(), len(testChunks))
	}

	after, err := restored.Query(ctx, "revenue", 2)
	if err != nil {
		t.Fatalf("restored Query() error = %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("restored returned %d hits, want %d", len(after), len(before))
	}
	for i := range before {
		if before[i].ChunkIndex != after[i].ChunkIndex {
			t.Errorf("position %d: chunk %d before restore, %d after", i, before[i].ChunkIndex, after[i].ChunkIndex)
		}
		if math.Abs(float64(before[i].ScoreFinal-after[i].ScoreFinal)) > 1e-5 {
			t.Errorf("position %d: score %f before restore, %f after", i, before[i].ScoreFinal, after[i].ScoreFinal)
		}
	}
}

func TestBuilder_LocalQueryKLargerThanIndex(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBuilder(hashEmbedder{}, testKey)

	idx, err := b.Build(ctx, "hash-a", testChunks[:2], embedChunks(t)[:2])
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	hits, err := idx.Query(ctx, "revenue", 4)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("Query() returned %d hits, want 2", len(hits))
	}
}

func TestBuilder_RestoreRejectsForeignBlobs(t *testing.T) {
	ctx := context.Background()
	b := NewLocalBuilder(hashEmbedder{}, testKey)

	idx, err := b.Build(ctx, "hash-a", testChunks, embedChunks(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	blob, err := idx.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	tampered := append([]byte{}, blob...)
	tampered[len(tampered)/2] ^= 0x01

	other := NewLocalBuilder(hashEmbedder{}, []byte(strings.Repeat("q", 32)))

	tests := []struct {
		name    string
		builder *Builder
		hash    string
		blob    []byte
	}{
		{name: "tampered", builder: b, hash: "hash-a", blob: tampered},
		{name: "other document", builder: b, hash: "hash-b", blob: blob},
		{name: "other key", builder: other, hash: "hash-a", blob: blob},
		{name: "garbage", builder: b, hash: "hash-a", blob: []byte("not an index at all, just some bytes to decode")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.builder.Restore(tt.hash, tt.blob); !errors.Is(err, ErrUntrustedIndex) {
				t.Fatalf("Restore() error = %v, want ErrUntrustedIndex", err)
			}
		})
	}
}

func TestBuilder_BuildValidation(t *testing.T) {
	b := NewLocalBuilder(hashEmbedder{}, testKey)
	ctx := context.Background()

	if _, err := b.Build(ctx, "h", nil, nil); err == nil {
		t.Error("Build() with no chunks should fail")
	}
	if _, err := b.Build(ctx, "h", testChunks, embedChunks(t)[:1]); err == nil {
		t.Error("Build() with mismatched vectors should fail")
	}
}

func TestBuilder_QueryEmbedError(t *testing.T) {
	ctrl := gomock.NewController(t)
	embedder := mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().
		EmbedTexts(gomock.Any(), []string{"revenue"}).
		Return(nil, errors.New("embedding service down"))

	b := NewLocalBuilder(embedder, testKey)
	idx, err := b.Build(context.Background(), "hash-a", testChunks, embedChunks(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if _, err := idx.Query(context.Background(), "revenue", 2); err == nil {
		t.Fatal("Query() expected error when embedding fails")
	}
}

func TestBuilder_Qdrant(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := vsmocks.NewMockVectorStore(ctrl)

	store.EXPECT().
		Upsert(gomock.Any(), "kortex_chunks", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			if len(points) != len(testChunks) {
				t.Errorf("upserted %d points, want %d", len(points), len(testChunks))
			}
			for i, p := range points {
				if p.ID != PointID("hash-a", i) {
					t.Errorf("point %d ID = %s, want %s", i, p.ID, PointID("hash-a", i))
				}
				if p.Meta[vectorstore.FieldContentHash] != "hash-a" {
					t.Errorf("point %d content_hash = %v", i, p.Meta[vectorstore.FieldContentHash])
				}
			}
			return nil
		})

	b := NewQdrantBuilder(hashEmbedder{}, store, "kortex_chunks", testKey)
	if b.Backend() != "qdrant" {
		t.Errorf("Backend() = %q, want qdrant", b.Backend())
	}

	idx, err := b.Build(ctx, "hash-a", testChunks, embedChunks(t))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	blob, err := idx.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	restored, err := b.Restore("hash-a", blob)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.Len() != len(testChunks) {
		t.Fatalf("restored Len() = %d, want %d", restored.Len(), len(testChunks))
	}

	store.EXPECT().
		Search(gomock.Any(), "kortex_chunks", gomock.Any(), 5, map[string]any{vectorstore.FieldContentHash: "hash-a"}).
		Return([]vectorstore.SearchResult{
			{PointID: PointID("hash-a", 2), Score: 0.40, Meta: map[string]any{vectorstore.FieldChunkIndex: int64(2), vectorstore.FieldText: testChunks[2]}},
			{PointID: PointID("hash-a", 0), Score: 0.35, Meta: map[string]any{vectorstore.FieldChunkIndex: int64(0), vectorstore.FieldText: testChunks[0]}},
		}, nil)

	hits, err := restored.Query(ctx, "revenue", 2)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("Query() returned %d hits, want 2", len(hits))
	}
	if hits[0].ChunkIndex != 0 {
		t.Errorf("expected lexical boost to put chunk 0 first, got %d", hits[0].ChunkIndex)
	}

	if _, err := NewLocalBuilder(hashEmbedder{}, testKey).Restore("hash-a", blob); err == nil {
		t.Error("Restore() of a qdrant blob without a store should fail")
	}
}

func TestPointID_Deterministic(t *testing.T) {
	if PointID("h", 1) != PointID("h", 1) {
		t.Error("PointID should be deterministic")
	}
	if PointID("h", 1) == PointID("h", 2) {
		t.Error("PointID should differ per chunk")
	}
	if PointID("h", 1) == PointID("g", 1) {
		t.Error("PointID should differ per document")
	}
}
