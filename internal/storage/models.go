package storage

import (
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// Channel tags which generation path produced a history entry.
type Channel string

const (
	ChannelPlain    Channel = "plain"
	ChannelAssisted Channel = "assisted"
)

// Role tags the speaker of a history entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// DocumentRecord is a processed document keyed by the digest of its raw bytes.
type DocumentRecord struct {
	ContentHash string   // SHA256 hex string of the uploaded bytes
	Filename    string   // Name of the first upload that produced the record
	Chunks      []string // Ordered chunk texts
	IndexBlob   []byte   // Signed retrieval index
	CreatedAt   time.Time
}

// Text returns the document's chunk texts joined by newlines.
func (d *DocumentRecord) Text() string {
	return strings.Join(d.Chunks, "\n")
}

// ConversationRecord is the persisted state of one conversation, excluding history.
type ConversationRecord struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	DocumentHash string // Empty when no document is bound
	Curriculum   string // Empty until the first tutor turn
}

// HasDocument reports whether a document is bound to the conversation.
func (c *ConversationRecord) HasDocument() bool {
	return c.DocumentHash != ""
}

// HistoryEntry is one normalized transcript row.
type HistoryEntry struct {
	Seq       int
	Channel   Channel
	Role      Role
	Text      string
	CreatedAt time.Time
}

// Turn is a question/answer pair reconstructed from history.
type Turn struct {
	Question string
	Answer   string
}
