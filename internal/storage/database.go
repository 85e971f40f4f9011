package storage

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// DB wraps *sql.DB with the dialect needed to rewrite placeholders.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Dialect returns the SQL flavour of the connection.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Rebind rewrites ? placeholders to $n for Postgres. Queries in this package
// never contain literal question marks.
func (db *DB) Rebind(query string) string {
	if db.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// New opens a SQLite database connection at the given path.
// It enables foreign keys and sets connection pool settings.
func New(path string) (*DB, error) {
	return Open("sqlite", path)
}

// Open opens a database for driver ("sqlite" or "postgres") and verifies the connection.
func Open(driver, dsn string) (*DB, error) {
	var (
		sqlDriver string
		dialect   Dialect
	)
	switch driver {
	case "sqlite", "sqlite3":
		sqlDriver, dialect = "sqlite3", SQLite
		// Foreign keys are per-connection in SQLite; the DSN flag applies them to every pooled connection.
		if !strings.Contains(dsn, "_foreign_keys") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_foreign_keys=on&_busy_timeout=5000"
		}
	case "postgres", "pgx":
		sqlDriver, dialect = "pgx", Postgres
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	sqlDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, err
	}

	if dialect == SQLite {
		if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &DB{DB: sqlDB, dialect: dialect}, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *DB) error {
	schema := sqliteSchema
	if db.dialect == Postgres {
		schema = postgresSchema
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}

	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		content_hash TEXT PRIMARY KEY,
		filename TEXT NOT NULL DEFAULT '',
		chunks TEXT NOT NULL,
		index_blob BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		document_hash TEXT,
		curriculum TEXT,
		FOREIGN KEY (document_hash) REFERENCES documents(content_hash)
	);`,
	`CREATE TABLE IF NOT EXISTS history_entries (
		conversation_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		channel TEXT NOT NULL CHECK (channel IN ('plain', 'assisted')),
		role TEXT NOT NULL CHECK (role IN ('user', 'model')),
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (conversation_id, seq),
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		content_hash TEXT PRIMARY KEY,
		filename TEXT NOT NULL DEFAULT '',
		chunks TEXT NOT NULL,
		index_blob BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		document_hash TEXT REFERENCES documents(content_hash),
		curriculum TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS history_entries (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		seq BIGINT NOT NULL,
		channel TEXT NOT NULL CHECK (channel IN ('plain', 'assisted')),
		role TEXT NOT NULL CHECK (role IN ('user', 'model')),
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (conversation_id, seq)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_created_at ON conversations(created_at);`,
}
