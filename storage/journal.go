// Package storage provides the SQLite turn journal.
//
// Information Hiding:
// - SQLite connection management and schema
// - Append-only exchange log; rows are never loaded back into a conversation
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Exchange is one completed ask: the prompt and the reply shown for it.
type Exchange struct {
	ID        string
	SessionID string
	Provider  string
	Model     string
	Prompt    string
	Reply     string
	Failed    bool
	ErrorKind string // "transport", "decode", "encode" or empty
	Latency   time.Duration
	CreatedAt time.Time
}

// Journal records exchanges in a SQLite database for later inspection.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates a journal database at the given path.
// Creates parent directories if they don't exist.
func OpenJournal(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	return newJournal(db)
}

// NewJournalInMemory creates an in-memory journal (useful for testing).
func NewJournalInMemory() (*Journal, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Each pooled connection would get its own empty :memory: database.
	db.SetMaxOpenConns(1)

	return newJournal(db)
}

func newJournal(db *sql.DB) (*Journal, error) {
	j := &Journal{db: db}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt TEXT NOT NULL,
			reply TEXT NOT NULL,
			failed INTEGER NOT NULL DEFAULT 0,
			error_kind TEXT,
			latency_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_exchanges_session
		ON exchanges(session_id, created_at);
	`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record stores an exchange. Missing ID and CreatedAt are filled in.
func (j *Journal) Record(ctx context.Context, ex Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now()
	}

	// Store NULL rather than an empty error kind
	var errorKind interface{}
	if ex.ErrorKind != "" {
		errorKind = ex.ErrorKind
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO exchanges
		(id, session_id, provider, model, prompt, reply, failed, error_kind, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID,
		ex.SessionID,
		ex.Provider,
		ex.Model,
		ex.Prompt,
		ex.Reply,
		ex.Failed,
		errorKind,
		ex.Latency.Milliseconds(),
		ex.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// Exchanges returns the most recent exchanges, oldest first.
// An empty sessionID matches every session; limit <= 0 means no limit.
func (j *Journal) Exchanges(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, session_id, provider, model, prompt, reply, failed, error_kind, latency_ms, created_at
		FROM (
			SELECT * FROM exchanges
			WHERE ? = '' OR session_id = ?
			ORDER BY created_at DESC
			LIMIT ?
		)
		ORDER BY created_at ASC`,
		sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := []Exchange{} // Start with empty slice, not nil
	for rows.Next() {
		var ex Exchange
		var errorKind sql.NullString
		var latencyMs, createdAt int64
		if err := rows.Scan(
			&ex.ID, &ex.SessionID, &ex.Provider, &ex.Model, &ex.Prompt, &ex.Reply,
			&ex.Failed, &errorKind, &latencyMs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		ex.ErrorKind = errorKind.String
		ex.Latency = time.Duration(latencyMs) * time.Millisecond
		ex.CreatedAt = time.Unix(0, createdAt)
		exchanges = append(exchanges, ex)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchanges: %w", err)
	}

	return exchanges, nil
}

// Sessions lists session IDs that have recorded exchanges, most recent first.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT session_id FROM exchanges
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []string{}
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sessionID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}
