package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DocumentStore defines the interface for document cache storage operations.
type DocumentStore interface {
	// Get returns the document with the given content hash. Returns ErrNotFound if absent.
	Get(ctx context.Context, contentHash string) (*DocumentRecord, error)
	// Exists reports whether a document with the given content hash is stored.
	Exists(ctx context.Context, contentHash string) (bool, error)
	// Insert stores a document unless one with the same hash already exists.
	// It reports whether a new row was written.
	Insert(ctx context.Context, doc *DocumentRecord) (bool, error)
	// Count returns the number of cached documents.
	Count(ctx context.Context) (int, error)
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Get returns the document with the given content hash.
func (r *DocumentRepo) Get(ctx context.Context, contentHash string) (*DocumentRecord, error) {
	var (
		doc       DocumentRecord
		chunksRaw string
	)
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT content_hash, filename, chunks, index_blob, created_at FROM documents WHERE content_hash = ?"),
		contentHash,
	).Scan(&doc.ContentHash, &doc.Filename, &chunksRaw, &doc.IndexBlob, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if err := json.Unmarshal([]byte(chunksRaw), &doc.Chunks); err != nil {
		return nil, fmt.Errorf("failed to decode document chunks: %w", err)
	}

	return &doc, nil
}

// Exists reports whether a document with the given content hash is stored.
func (r *DocumentRepo) Exists(ctx context.Context, contentHash string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT 1 FROM documents WHERE content_hash = ?"),
		contentHash,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check document: %w", err)
	}
	return true, nil
}

// Insert writes the whole record in one statement, so a reader never sees a
// partial row. A concurrent insert of the same hash leaves the first row in place.
func (r *DocumentRepo) Insert(ctx context.Context, doc *DocumentRecord) (bool, error) {
	if doc.ContentHash == "" {
		return false, fmt.Errorf("document content hash is required")
	}
	if len(doc.IndexBlob) == 0 {
		return false, fmt.Errorf("document index blob is required")
	}

	chunksRaw, err := json.Marshal(doc.Chunks)
	if err != nil {
		return false, fmt.Errorf("failed to encode document chunks: %w", err)
	}

	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO documents (content_hash, filename, chunks, index_blob, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (content_hash) DO NOTHING`),
		doc.ContentHash, doc.Filename, string(chunksRaw), doc.IndexBlob, createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert document: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

// Count returns the number of cached documents.
func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}
