package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"kortex/internal/config"
	"kortex/internal/handlers"
	"kortex/internal/http"
	"kortex/internal/indexer"
	"kortex/internal/llm"
	"kortex/internal/lock"
	"kortex/internal/metrics"
	"kortex/internal/rag"
	"kortex/internal/search"
	"kortex/internal/service"
	"kortex/internal/storage"
	"kortex/internal/vectorstore"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API lets users upload a document and converse about it: grounded
// question answering, Socratic tutoring, and web-augmented deep dives.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Kortex API
//   description: |
//     Document-grounded conversation API. Uploaded documents are processed once
//     per distinct content and bound to conversations; turns are streamed as text.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

const (
	shutdownTimeout = 30 * time.Second
	// lockLeaseMargin keeps a Redis lease alive past the slowest allowed turn.
	lockLeaseMargin = 30 * time.Second
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := storage.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "driver", cfg.DBDriver)

	documentRepo := storage.NewDocumentRepo(db)
	conversationRepo := storage.NewConversationRepo(db)

	// Metrics live in a dedicated registry served at /metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize)

	// Retrieval backend: in-process chromem-go indexes, or a shared Qdrant collection
	var (
		builder     *rag.Builder
		healthStore handlers.CollectionChecker
	)
	switch cfg.RetrievalBackend {
	case config.RetrievalQdrant:
		vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		defer func() {
			_ = vectorStore.Close()
		}()

		// Ensure collection exists with correct vector size
		if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.EmbeddingVectorSize); err != nil {
			log.Fatalf("Failed to ensure Qdrant collection: %v", err)
		}
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.EmbeddingVectorSize)

		builder = rag.NewQdrantBuilder(embedder, vectorStore, cfg.QdrantCollection, cfg.IndexSigningKey)
		healthStore = vectorStore
	default:
		builder = rag.NewLocalBuilder(embedder, cfg.IndexSigningKey)
	}
	slog.Info("Retrieval backend configured", "backend", builder.Backend())

	cache := indexer.NewCache(
		documentRepo,
		indexer.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		builder,
		indexer.Options{
			MinTextLength: cfg.MinTextLength,
			BatchSize:     cfg.EmbeddingBatchSize,
		},
		m,
	)

	// Per-conversation lock: Redis when shared across instances, in-process otherwise
	var locker lock.Locker = lock.NewLocal()
	if cfg.RedisURL != "" {
		redisLock, err := lock.NewRedis(ctx, cfg.RedisURL, cfg.GenerationTimeout+lockLeaseMargin)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer func() {
			_ = redisLock.Close()
		}()
		locker = redisLock
		slog.Info("Using Redis conversation locks")
	}

	searcher := search.NewSerperClient(cfg.SerperURL, cfg.SerperAPIKey)
	if !cfg.SearchConfigured() {
		slog.Warn("SERPER_API_KEY not set, deep dive is disabled")
	}

	svc := service.NewConversationService(service.Deps{
		Conversations: conversationRepo,
		Documents:     cache,
		Plain:         llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName),
		Assisted:      llm.NewClient(cfg.AssistedLLMBaseURL, cfg.AssistedLLMAPIKey, cfg.AssistedLLMModelName),
		Search:        searcher,
		Locker:        locker,
		Metrics:       m,
		RetrievalK:    cfg.RetrievalK,
		Timeout:       cfg.GenerationTimeout,
	})

	router := http.NewRouter(&http.Deps{
		Conversations:  svc,
		Health:         handlers.NewHealthHandler(documentRepo, healthStore, cfg.QdrantCollection),
		Gatherer:       registry,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName, "assisted_model", cfg.AssistedLLMModelName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
