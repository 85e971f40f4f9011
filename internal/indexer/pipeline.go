package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"kortex/internal/contextutil"
	"kortex/internal/extract"
	"kortex/internal/metrics"
	"kortex/internal/rag"
	"kortex/internal/storage"
)

// ErrExtractionEmpty is returned when a document yields no usable text.
var ErrExtractionEmpty = errors.New("could not extract enough text from document")

// ExtractFunc turns raw upload bytes into plain text.
type ExtractFunc func(filename string, data []byte) (string, error)

// IndexBuilder builds and restores retrieval indexes.
type IndexBuilder interface {
	Build(ctx context.Context, contentHash string, chunks []string, vectors [][]float32) (rag.Index, error)
	Restore(contentHash string, blob []byte) (rag.Index, error)
}

// Options tunes the ingestion pipeline.
type Options struct {
	MinTextLength    int // Minimum trimmed text length in runes
	BatchSize        int // Texts per embedding request
	EmbedConcurrency int // Embedding requests in flight
}

// IngestResult describes the outcome of one Ingest call.
type IngestResult struct {
	ContentHash string
	Cached      bool // True when the record already existed and no work was done
	Chunks      int  // Number of chunks indexed; zero on a cache hit
}

// Document is a cached document with its restored retrieval index.
type Document struct {
	Record *storage.DocumentRecord
	Index  rag.Index
}

// Cache is the content-addressed document store. Each distinct byte sequence
// is extracted, chunked, embedded and indexed at most once.
type Cache struct {
	docs     storage.DocumentStore
	extract  ExtractFunc
	chunker  *Chunker
	embedder rag.Embedder
	builder  IndexBuilder
	metrics  *metrics.Metrics
	opts     Options
	group    singleflight.Group
}

// NewCache creates a document cache. m may be nil.
func NewCache(
	docs storage.DocumentStore,
	chunker *Chunker,
	embedder rag.Embedder,
	builder IndexBuilder,
	opts Options,
	m *metrics.Metrics,
) *Cache {
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = 50
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 4
	}
	return &Cache{
		docs:     docs,
		extract:  extract.Extract,
		chunker:  chunker,
		embedder: embedder,
		builder:  builder,
		metrics:  m,
		opts:     opts,
	}
}

// HashContent returns the hex SHA256 digest used as a document's identity.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Ingest processes an upload. Identical bytes always resolve to the same
// record; only the first upload pays for extraction and embedding.
func (c *Cache) Ingest(ctx context.Context, filename string, data []byte) (*IngestResult, error) {
	hash := HashContent(data)

	// The flight outlives any single caller; each caller stops waiting
	// when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(hash, func() (any, error) {
		return c.ingest(flightCtx, filename, hash, data)
	})

	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return nil, r.Err
	}

	res := *r.Val.(*IngestResult)
	if r.Shared && !res.Cached {
		// Another caller did the work in this flight.
		res.Cached = true
	}
	return &res, nil
}

func (c *Cache) ingest(ctx context.Context, filename, hash string, data []byte) (*IngestResult, error) {
	logger := contextutil.LoggerFromContext(ctx).With("content_hash", hash, "filename", filename)
	start := time.Now()

	exists, err := c.docs.Exists(ctx, hash)
	if err != nil {
		c.metrics.RecordIngest(metrics.IngestError, 0, 0)
		return nil, fmt.Errorf("failed to check document cache: %w", err)
	}
	if exists {
		logger.InfoContext(ctx, "document cache hit")
		c.metrics.RecordIngest(metrics.IngestHit, 0, 0)
		return &IngestResult{ContentHash: hash, Cached: true}, nil
	}

	chunks, err := c.textChunks(filename, data)
	if err != nil {
		logger.WarnContext(ctx, "document rejected", "error", err)
		c.metrics.RecordIngest(metrics.IngestEmpty, 0, 0)
		return nil, err
	}

	blob, err := c.buildIndex(ctx, hash, chunks)
	if err != nil {
		c.metrics.RecordIngest(metrics.IngestError, 0, 0)
		return nil, err
	}

	inserted, err := c.docs.Insert(ctx, &storage.DocumentRecord{
		ContentHash: hash,
		Filename:    filename,
		Chunks:      chunks,
		IndexBlob:   blob,
	})
	if err != nil {
		c.metrics.RecordIngest(metrics.IngestError, 0, 0)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}
	if !inserted {
		// Another process stored the same bytes first; its row is complete.
		logger.InfoContext(ctx, "document stored concurrently")
		c.metrics.RecordIngest(metrics.IngestHit, 0, 0)
		return &IngestResult{ContentHash: hash, Cached: true}, nil
	}

	elapsed := time.Since(start)
	c.metrics.RecordIngest(metrics.IngestMiss, len(chunks), elapsed)
	logger.InfoContext(ctx, "document indexed", "chunks", len(chunks), "duration", elapsed)

	return &IngestResult{ContentHash: hash, Chunks: len(chunks)}, nil
}

func (c *Cache) textChunks(filename string, data []byte) ([]string, error) {
	text, err := c.extract(filename, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionEmpty, err)
	}

	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < c.opts.MinTextLength {
		return nil, fmt.Errorf("%w: %d characters, need at least %d", ErrExtractionEmpty, n, c.opts.MinTextLength)
	}

	chunks := c.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, ErrExtractionEmpty
	}
	return chunks, nil
}

func (c *Cache) buildIndex(ctx context.Context, hash string, chunks []string) ([]byte, error) {
	vectors, err := c.embedAll(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	idx, err := c.builder.Build(ctx, hash, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	blob, err := idx.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize index: %w", err)
	}
	return blob, nil
}

// embedAll embeds chunks in batches, concurrently, keeping input order.
func (c *Cache) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.EmbedConcurrency)

	for start := 0; start < len(chunks); start += c.opts.BatchSize {
		end := min(start+c.opts.BatchSize, len(chunks))
		g.Go(func() error {
			batch, err := c.embedder.EmbedTexts(gctx, chunks[start:end])
			if err != nil {
				return err
			}
			if len(batch) != end-start {
				return fmt.Errorf("embedding count mismatch: expected %d, got %d", end-start, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Load returns the stored document and its verified index.
// Returns storage.ErrNotFound if no document has the given hash.
func (c *Cache) Load(ctx context.Context, hash string) (*Document, error) {
	rec, err := c.docs.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	idx, err := c.builder.Restore(hash, rec.IndexBlob)
	if err != nil {
		return nil, fmt.Errorf("failed to restore index for %s: %w", hash, err)
	}

	return &Document{Record: rec, Index: idx}, nil
}

// Get returns the stored document without restoring its index.
func (c *Cache) Get(ctx context.Context, hash string) (*storage.DocumentRecord, error) {
	return c.docs.Get(ctx, hash)
}
