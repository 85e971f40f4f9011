package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ConversationStore defines the interface for conversation storage operations.
type ConversationStore interface {
	// Create inserts a new conversation. ID and CreatedAt must be set.
	Create(ctx context.Context, conv *ConversationRecord) error
	// Get returns a conversation by ID. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (*ConversationRecord, error)
	// List returns up to limit conversations, newest first.
	List(ctx context.Context, limit int) ([]*ConversationRecord, error)
	// AttachDocument binds a document and overwrites the title.
	// Binding a different document than the current one clears the curriculum.
	AttachDocument(ctx context.Context, id, contentHash, title string) error
	// SetCurriculum stores the curriculum only if none is set yet and reports whether it was written.
	SetCurriculum(ctx context.Context, id, curriculum string) (bool, error)
	// AppendTurn appends entries to the history atomically.
	AppendTurn(ctx context.Context, id string, entries ...HistoryEntry) error
	// History returns the full history in append order.
	History(ctx context.Context, id string) ([]HistoryEntry, error)
}

// ConversationRepo provides methods for conversation operations.
// It implements the ConversationStore interface.
type ConversationRepo struct {
	db *DB
}

// NewConversationRepo creates a new ConversationRepo.
func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create inserts a new conversation.
func (r *ConversationRepo) Create(ctx context.Context, conv *ConversationRecord) error {
	if conv.ID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		r.db.Rebind("INSERT INTO conversations (id, title, created_at, document_hash, curriculum) VALUES (?, ?, ?, ?, ?)"),
		conv.ID, conv.Title, conv.CreatedAt, nullString(conv.DocumentHash), nullString(conv.Curriculum),
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// Get returns a conversation by ID.
func (r *ConversationRepo) Get(ctx context.Context, id string) (*ConversationRecord, error) {
	row := r.db.QueryRowContext(ctx,
		r.db.Rebind("SELECT id, title, created_at, document_hash, curriculum FROM conversations WHERE id = ?"),
		id,
	)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// List returns up to limit conversations, newest first.
func (r *ConversationRepo) List(ctx context.Context, limit int) ([]*ConversationRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		r.db.Rebind("SELECT id, title, created_at, document_hash, curriculum FROM conversations ORDER BY created_at DESC, id LIMIT ?"),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var convs []*ConversationRecord
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conversations: %w", err)
	}
	return convs, nil
}

// AttachDocument binds a document and overwrites the title. The CASE reads the
// pre-update document_hash, so the curriculum survives only a same-document re-attach.
func (r *ConversationRepo) AttachDocument(ctx context.Context, id, contentHash, title string) error {
	if contentHash == "" {
		return fmt.Errorf("content hash is required")
	}

	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE conversations
			SET title = ?,
				curriculum = CASE WHEN document_hash = ? THEN curriculum ELSE NULL END,
				document_hash = ?
			WHERE id = ?`),
		title, contentHash, contentHash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to attach document: %w", err)
	}
	return requireOneRow(res)
}

// SetCurriculum stores the curriculum only if none is set yet.
func (r *ConversationRepo) SetCurriculum(ctx context.Context, id, curriculum string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind("UPDATE conversations SET curriculum = ? WHERE id = ? AND curriculum IS NULL"),
		curriculum, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set curriculum: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	// Distinguish "already set" from "no such conversation".
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// AppendTurn appends entries in one transaction. Sequence numbers are allocated
// inside the transaction and (conversation_id, seq) is the primary key, so two
// writers racing on the same conversation fail loudly instead of dropping a turn.
func (r *ConversationRepo) AppendTurn(ctx context.Context, id string, entries ...HistoryEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Channel != ChannelPlain && e.Channel != ChannelAssisted {
			return fmt.Errorf("invalid history channel %q", e.Channel)
		}
		if e.Role != RoleUser && e.Role != RoleModel {
			return fmt.Errorf("invalid history role %q", e.Role)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, r.db.Rebind("SELECT 1 FROM conversations WHERE id = ?"), id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}

	var last int
	err = tx.QueryRowContext(ctx,
		r.db.Rebind("SELECT COALESCE(MAX(seq), 0) FROM history_entries WHERE conversation_id = ?"),
		id,
	).Scan(&last)
	if err != nil {
		return fmt.Errorf("failed to read history sequence: %w", err)
	}

	now := time.Now().UTC()
	stmt := r.db.Rebind("INSERT INTO history_entries (conversation_id, seq, channel, role, text, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	for i, e := range entries {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err = tx.ExecContext(ctx, stmt, id, last+i+1, string(e.Channel), string(e.Role), e.Text, createdAt); err != nil {
			return fmt.Errorf("failed to append history entry: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// History returns the full history in append order.
func (r *ConversationRepo) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		r.db.Rebind("SELECT seq, channel, role, text, created_at FROM history_entries WHERE conversation_id = ? ORDER BY seq"),
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			e             HistoryEntry
			channel, role string
		)
		if err := rows.Scan(&e.Seq, &channel, &role, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		e.Channel = Channel(channel)
		e.Role = Role(role)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*ConversationRecord, error) {
	var (
		conv                   ConversationRecord
		documentHash, currText sql.NullString
	)
	if err := row.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &documentHash, &currText); err != nil {
		return nil, err
	}
	conv.DocumentHash = documentHash.String
	conv.Curriculum = currText.String
	return &conv, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
