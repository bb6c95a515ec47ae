// Package storage provides SQLite-based persistence for the conversation log.
// Only anonymous conversation metadata is stored: no identities, no message text.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/tui-campuschat/internal/matchmaking"
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// Conversation is one finished conversation as stored in the log.
type Conversation struct {
	ID             int64
	ConversationID string
	AttributeA     string
	AttributeB     string
	Messages       int
	EndReason      string // "next", "disconnect", "displaced", "reregister"
	DurationSecs   int
	StartedAt      time.Time
	CreatedAt      time.Time
}

// Summary aggregates the whole log.
type Summary struct {
	Conversations int
	Messages      int
	AvgDuration   time.Duration
	ByReason      map[string]int
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}

	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL UNIQUE,
			attribute_a TEXT NOT NULL,
			attribute_b TEXT NOT NULL,
			messages INTEGER NOT NULL DEFAULT 0,
			end_reason TEXT NOT NULL,
			duration_secs INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_started ON conversations(started_at DESC);
		CREATE INDEX IF NOT EXISTS idx_conversations_reason ON conversations(end_reason);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConversation implements matchmaking.ConversationSaver.
func (s *Store) SaveConversation(record matchmaking.ConversationRecord) error {
	_, err := s.Insert(record)
	return err
}

// Insert records a finished conversation and returns the row ID.
func (s *Store) Insert(record matchmaking.ConversationRecord) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO conversations
		 (conversation_id, attribute_a, attribute_b, messages, end_reason, duration_secs, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ConversationID,
		record.AttributeA,
		record.AttributeB,
		record.Messages,
		record.EndReason,
		record.DurationSecs,
		record.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cannot save conversation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage: cannot get inserted ID: %w", err)
	}

	return id, nil
}

// ConversationByID retrieves a conversation by its conversation ID.
// Returns nil, nil if it does not exist.
func (s *Store) ConversationByID(conversationID string) (*Conversation, error) {
	row := s.db.QueryRow(
		`SELECT id, conversation_id, attribute_a, attribute_b, messages,
		        end_reason, duration_secs, started_at, created_at
		 FROM conversations
		 WHERE conversation_id = ?`,
		conversationID,
	)

	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query conversation: %w", err)
	}
	return c, nil
}

// RecentConversations retrieves the most recently started conversations.
func (s *Store) RecentConversations(limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, conversation_id, attribute_a, attribute_b, messages,
		        end_reason, duration_secs, started_at, created_at
		 FROM conversations
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query conversations: %w", err)
	}
	defer rows.Close()

	var results []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		results = append(results, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}

	return results, nil
}

// Summarize aggregates every stored conversation.
func (s *Store) Summarize() (Summary, error) {
	sum := Summary{ByReason: make(map[string]int)}

	var messages sql.NullInt64
	var avg sql.NullFloat64
	err := s.db.QueryRow(
		"SELECT COUNT(*), SUM(messages), AVG(duration_secs) FROM conversations",
	).Scan(&sum.Conversations, &messages, &avg)
	if err != nil {
		return sum, fmt.Errorf("storage: cannot summarize conversations: %w", err)
	}
	if messages.Valid {
		sum.Messages = int(messages.Int64)
	}
	if avg.Valid {
		sum.AvgDuration = time.Duration(avg.Float64 * float64(time.Second))
	}

	rows, err := s.db.Query("SELECT end_reason, COUNT(*) FROM conversations GROUP BY end_reason")
	if err != nil {
		return sum, fmt.Errorf("storage: cannot group conversations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return sum, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		sum.ByReason[reason] = n
	}

	if err := rows.Err(); err != nil {
		return sum, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return sum, nil
}

// ClearConversations deletes the whole log.
func (s *Store) ClearConversations() error {
	if _, err := s.db.Exec("DELETE FROM conversations"); err != nil {
		return fmt.Errorf("storage: cannot clear conversations: %w", err)
	}
	return nil
}

const timeLayout = "2006-01-02 15:04:05"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var startedAt, createdAt any

	if err := row.Scan(
		&c.ID,
		&c.ConversationID,
		&c.AttributeA,
		&c.AttributeB,
		&c.Messages,
		&c.EndReason,
		&c.DurationSecs,
		&startedAt,
		&createdAt,
	); err != nil {
		return nil, err
	}

	c.StartedAt = parseTime(startedAt)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// parseTime handles both time.Time and string column values.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		if parsed, err := time.Parse(timeLayout, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
