package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ChatMessage is one turn of a session's conversation.
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatStore persists per-session chat history in SQLite. Append-only; the
// retrieval pipeline reads a recent window for conversational context.
type ChatStore struct {
	db *sql.DB
}

// OpenChatStore opens (or creates) the history database at path and ensures
// the schema exists. Use ":memory:" for tests.
func OpenChatStore(path string) (*ChatStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open chat database: %w", err)
	}

	// modernc sqlite is single-writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent chat requests.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session
		ON chat_messages(session_id, id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create chat schema: %w", err)
	}

	return &ChatStore{db: db}, nil
}

// SaveMessage appends one message to the session's history.
func (s *ChatStore) SaveMessage(ctx context.Context, sessionID, role, content string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if role != "user" && role != "assistant" {
		return fmt.Errorf("invalid role %q", role)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content)
		VALUES (?, ?, ?)
	`, sessionID, role, content)
	if err != nil {
		return fmt.Errorf("save chat message: %w", err)
	}
	return nil
}

// RecentContext returns the session's last `turns` messages in chronological
// order. A missing session yields an empty slice.
func (s *ChatStore) RecentContext(ctx context.Context, sessionID string, turns int) ([]*ChatMessage, error) {
	if turns <= 0 {
		return []*ChatMessage{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM (
			SELECT id, session_id, role, content, created_at
			FROM chat_messages
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
		ORDER BY id ASC
	`, sessionID, turns)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	messages := make([]*ChatMessage, 0, turns)
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}

// DeleteSession removes the session's entire history. Returns the number of
// messages removed.
func (s *ChatStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM chat_messages WHERE session_id = ?
	`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete chat history: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database handle.
func (s *ChatStore) Close() error {
	return s.db.Close()
}
