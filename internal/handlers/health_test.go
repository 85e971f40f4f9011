package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeCounter struct {
	n   int
	err error
}

func (f fakeCounter) Count(context.Context) (int, error) { return f.n, f.err }

type fakeCollections struct {
	exists bool
	err    error
}

func (f fakeCollections) CollectionExists(context.Context, string) (bool, error) {
	return f.exists, f.err
}

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name        string
		docs        DocumentCounter
		vectorStore CollectionChecker
		wantStatus  int
		wantChecks  map[string]string
		wantIssues  int
	}{
		{
			name:       "local backend healthy",
			docs:       fakeCounter{n: 3},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "cached_documents": "3"},
		},
		{
			name:        "qdrant healthy",
			docs:        fakeCounter{},
			vectorStore: fakeCollections{exists: true},
			wantStatus:  http.StatusOK,
			wantChecks:  map[string]string{"database": "ok", "cached_documents": "0", "vector_store": "ok"},
		},
		{
			name:        "collection missing",
			docs:        fakeCounter{},
			vectorStore: fakeCollections{exists: false},
			wantStatus:  http.StatusServiceUnavailable,
			wantChecks:  map[string]string{"database": "ok", "cached_documents": "0", "vector_store": "error"},
			wantIssues:  1,
		},
		{
			name:        "everything down",
			docs:        fakeCounter{err: errors.New("db closed")},
			vectorStore: fakeCollections{err: errors.New("connection refused")},
			wantStatus:  http.StatusServiceUnavailable,
			wantChecks:  map[string]string{"database": "error", "vector_store": "error"},
			wantIssues:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.docs, tt.vectorStore, "kortex_chunks")
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Errorf("checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if resp.Checks[k] != v {
					t.Errorf("checks[%s] = %q, want %q", k, resp.Checks[k], v)
				}
			}
			if len(resp.Issues) != tt.wantIssues {
				t.Errorf("issues = %v, want %d", resp.Issues, tt.wantIssues)
			}
		})
	}
}
