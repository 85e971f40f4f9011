package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks kortex/internal/service Generator
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_searcher.go -package=mocks kortex/internal/service Searcher
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_conversation_service.go -package=mocks -mock_names=ConversationService=MockConversationService kortex/internal/service ConversationService

import (
	"context"
	"time"

	"kortex/internal/indexer"
	"kortex/internal/lock"
	"kortex/internal/metrics"
	"kortex/internal/search"
	"kortex/internal/storage"
)

// Generator is a text generation backend.
// This interface is defined from the service layer's perspective (consumer-first).
type Generator interface {
	// Complete returns the full reply to prompt.
	Complete(ctx context.Context, prompt string) (string, error)
	// Stream delivers the reply to prompt fragment by fragment.
	Stream(ctx context.Context, prompt string, onFragment func(fragment string) error) error
}

// Searcher runs web searches for deep dives.
type Searcher interface {
	// Configured reports whether the provider has credentials.
	Configured() bool
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// DocumentCache is the content-addressed document store.
type DocumentCache interface {
	Ingest(ctx context.Context, filename string, data []byte) (*indexer.IngestResult, error)
	Load(ctx context.Context, hash string) (*indexer.Document, error)
	Get(ctx context.Context, hash string) (*storage.DocumentRecord, error)
}

// Sink receives a streamed turn. Open is called once before the first Write;
// errors returned before Open are reported to the caller instead.
type Sink interface {
	Open() error
	Write(fragment string) error
}

// Mode selects the entry point of a turn.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeTutor    Mode = "tutor"
	ModeDeepDive Mode = "deep_dive"
)

// TurnRequest is one user message addressed to a conversation.
type TurnRequest struct {
	ConversationID string
	Mode           Mode
	Message        string // Ignored for deep dives
}

// UploadRequest carries an uploaded file.
type UploadRequest struct {
	ConversationID string // Optional; a new conversation is created when empty or unknown
	Filename       string
	Data           []byte
}

// UploadResult describes where an upload was bound.
type UploadResult struct {
	ConversationID string
	ContentHash    string
	Cached         bool
}

// Conversation is the summary view of a conversation.
type Conversation struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	DocumentHash string
}

// HistoryItem is one transcript entry.
type HistoryItem struct {
	Channel string
	Role    string
	Text    string
}

// ConversationView is a conversation with its transcript.
type ConversationView struct {
	Conversation
	HasCurriculum bool
	History       []HistoryItem
}

// ConversationService manages conversations and runs turns against them.
type ConversationService interface {
	// CreateConversation creates an empty conversation. An empty title becomes "New Chat".
	CreateConversation(ctx context.Context, title string) (*Conversation, error)
	// GetConversation returns a conversation and its history.
	GetConversation(ctx context.Context, id string) (*ConversationView, error)
	// ListConversations returns recent conversations, newest first.
	ListConversations(ctx context.Context) ([]Conversation, error)
	// Upload ingests a document and binds it to a conversation.
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
	// Stream runs one turn, writing the reply to sink.
	Stream(ctx context.Context, req TurnRequest, sink Sink) error
}

// Deps are the collaborators of the conversation service.
type Deps struct {
	Conversations storage.ConversationStore
	Documents     DocumentCache
	Plain         Generator
	Assisted      Generator
	Search        Searcher // Optional
	Locker        lock.Locker
	Metrics       *metrics.Metrics // Optional
	RetrievalK    int
	Timeout       time.Duration // Per-turn limit; zero disables it
}

const (
	defaultTitle      = "New Chat"
	defaultRetrievalK = 4
	listLimit         = 100
)

// conversationService implements ConversationService.
type conversationService struct {
	convs      storage.ConversationStore
	docs       DocumentCache
	plain      Generator
	assisted   Generator
	search     Searcher
	locker     lock.Locker
	metrics    *metrics.Metrics
	retrievalK int
	timeout    time.Duration
}

// NewConversationService creates a new ConversationService.
func NewConversationService(d Deps) ConversationService {
	if d.RetrievalK <= 0 {
		d.RetrievalK = defaultRetrievalK
	}
	if d.Assisted == nil {
		d.Assisted = d.Plain
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocal()
	}
	return &conversationService{
		convs:      d.Conversations,
		docs:       d.Documents,
		plain:      d.Plain,
		assisted:   d.Assisted,
		search:     d.Search,
		locker:     d.Locker,
		metrics:    d.Metrics,
		retrievalK: d.RetrievalK,
		timeout:    d.Timeout,
	}
}

func (s *conversationService) searchConfigured() bool {
	return s.search != nil && s.search.Configured()
}
