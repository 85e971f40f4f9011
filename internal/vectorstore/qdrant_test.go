package vectorstore

import (
	"context"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestGRPCEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		urlStr   string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{name: "default REST port", urlStr: "http://localhost:6333", wantHost: "localhost", wantPort: 6334},
		{name: "custom port", urlStr: "http://qdrant.internal:9000", wantHost: "qdrant.internal", wantPort: 9001},
		{name: "no port", urlStr: "http://localhost", wantHost: "localhost", wantPort: 6334},
		{name: "no hostname", urlStr: "http://:6333", wantHost: "localhost", wantPort: 6334},
		{name: "invalid URL", urlStr: "://invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port, err := grpcEndpoint(tt.urlStr)
			if tt.wantErr {
				if err == nil {
					t.Fatal("grpcEndpoint() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("grpcEndpoint() error = %v", err)
			}
			if host != tt.wantHost {
				t.Errorf("host = %q, want %q", host, tt.wantHost)
			}
			if port != tt.wantPort {
				t.Errorf("port = %d, want %d", port, tt.wantPort)
			}
		})
	}
}

func TestNewQdrantStore_InvalidURL(t *testing.T) {
	if _, err := NewQdrantStore("://invalid"); err == nil {
		t.Error("NewQdrantStore() with invalid URL should return error")
	}
}

func TestQdrantStore_Upsert_EmptyPoints(t *testing.T) {
	store := &QdrantStore{}
	if err := store.Upsert(context.Background(), "chunks", nil); err != nil {
		t.Errorf("Upsert() with no points should return nil, got %v", err)
	}
}

func TestQdrantStore_Search_InvalidK(t *testing.T) {
	store := &QdrantStore{}
	for _, k := range []int{0, -1} {
		if _, err := store.Search(context.Background(), "chunks", []float32{1, 0}, k, nil); err == nil {
			t.Errorf("Search() with k=%d should return error", k)
		}
	}
}

func TestBuildFilter(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		f, err := buildFilter(nil)
		if err != nil {
			t.Fatalf("buildFilter() error = %v", err)
		}
		if f != nil {
			t.Errorf("buildFilter(nil) = %v, want nil", f)
		}
	})

	t.Run("content hash and index", func(t *testing.T) {
		f, err := buildFilter(map[string]any{
			FieldContentHash: "abc",
			FieldChunkIndex:  3,
		})
		if err != nil {
			t.Fatalf("buildFilter() error = %v", err)
		}
		if len(f.Must) != 2 {
			t.Fatalf("len(Must) = %d, want 2", len(f.Must))
		}
		// keys are sorted: chunk_index, content_hash
		first := f.Must[0].GetField()
		if first.GetKey() != FieldChunkIndex || first.GetMatch().GetInteger() != 3 {
			t.Errorf("Must[0] = %v, want chunk_index == 3", first)
		}
		second := f.Must[1].GetField()
		if second.GetKey() != FieldContentHash || second.GetMatch().GetKeyword() != "abc" {
			t.Errorf("Must[1] = %v, want content_hash == abc", second)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		if _, err := buildFilter(map[string]any{"score": 1.5}); err == nil {
			t.Error("buildFilter() with float should return error")
		}
	})
}

func TestConvertPayloadToMap(t *testing.T) {
	result := convertPayloadToMap(nil)
	if result == nil || len(result) != 0 {
		t.Errorf("convertPayloadToMap(nil) = %v, want empty map", result)
	}

	payload := qdrant.NewValueMap(map[string]any{
		FieldContentHash: "abc",
		FieldChunkIndex:  int64(2),
		FieldText:        "chunk body",
	})
	got := convertPayloadToMap(payload)
	if got[FieldContentHash] != "abc" {
		t.Errorf("content_hash = %v, want abc", got[FieldContentHash])
	}
	if got[FieldChunkIndex] != int64(2) {
		t.Errorf("chunk_index = %v (%T), want int64(2)", got[FieldChunkIndex], got[FieldChunkIndex])
	}
	if got[FieldText] != "chunk body" {
		t.Errorf("text = %v, want chunk body", got[FieldText])
	}
}
