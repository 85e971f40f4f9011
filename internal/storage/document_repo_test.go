package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestDocumentRepo_InsertAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepo(db)
	ctx := context.Background()

	doc := &DocumentRecord{
		ContentHash: "abc123",
		Filename:    "report.pdf",
		Chunks:      []string{"first chunk", "second chunk"},
		IndexBlob:   []byte{1, 2, 3},
	}

	inserted, err := repo.Insert(ctx, doc)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !inserted {
		t.Error("Insert() inserted = false, want true")
	}

	got, err := repo.Get(ctx, "abc123")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !reflect.DeepEqual(got.Chunks, doc.Chunks) {
		t.Errorf("Get() chunks = %v, want %v", got.Chunks, doc.Chunks)
	}
	if !reflect.DeepEqual(got.IndexBlob, doc.IndexBlob) {
		t.Errorf("Get() index blob = %v, want %v", got.IndexBlob, doc.IndexBlob)
	}
	if got.Filename != "report.pdf" {
		t.Errorf("Get() filename = %q, want report.pdf", got.Filename)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Get() created_at should be set")
	}
}

func TestDocumentRepo_InsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepo(db)
	ctx := context.Background()

	first := &DocumentRecord{ContentHash: "same", Chunks: []string{"a"}, IndexBlob: []byte{1}}
	second := &DocumentRecord{ContentHash: "same", Chunks: []string{"b"}, IndexBlob: []byte{2}}

	if _, err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("Insert() first error = %v", err)
	}
	inserted, err := repo.Insert(ctx, second)
	if err != nil {
		t.Fatalf("Insert() second error = %v", err)
	}
	if inserted {
		t.Error("Insert() of existing hash reported a new row")
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}

	got, err := repo.Get(ctx, "same")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Chunks[0] != "a" {
		t.Errorf("Get() chunks = %v, want the first writer's record", got.Chunks)
	}
}

func TestDocumentRepo_Validation(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepo(db)

	tests := []struct {
		name string
		doc  *DocumentRecord
	}{
		{name: "missing hash", doc: &DocumentRecord{IndexBlob: []byte{1}}},
		{name: "missing index", doc: &DocumentRecord{ContentHash: "h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.Insert(context.Background(), tt.doc); err == nil {
				t.Error("Insert() expected error, got nil")
			}
		})
	}
}

func TestDocumentRepo_GetAndExistsMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewDocumentRepo(db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}

	exists, err := repo.Exists(ctx, "missing")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists() = true for missing document")
	}

	if _, err := repo.Insert(ctx, &DocumentRecord{ContentHash: "present", IndexBlob: []byte{1}}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	exists, err = repo.Exists(ctx, "present")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists() = false for stored document")
	}
}
