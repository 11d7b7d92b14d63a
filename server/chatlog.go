package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// ErrMessageNotFound is returned when a reply is finished for an id that is
// not (or no longer) in the log.
var ErrMessageNotFound = errors.New("chat message not found")

// ChatLog stores the conversation and the relay settings.
type ChatLog interface {
	Append(ctx context.Context, m Message) (Message, error)
	Finish(ctx context.Context, id int64, text string, status MessageStatus) error
	Recent(ctx context.Context) ([]Message, error)
	Clear(ctx context.Context) error
	LoadSettings(ctx context.Context) (ChatSettings, bool, error)
	SaveSettings(ctx context.Context, s ChatSettings) error
	Close() error
}

const chatSchema = `
CREATE TABLE IF NOT EXISTS messages (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    role       TEXT NOT NULL,
    text       TEXT NOT NULL,
    status     TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    base_url TEXT NOT NULL,
    api_key  TEXT NOT NULL,
    model    TEXT NOT NULL
);
`

// SQLiteChatLog keeps at most limit messages, dropping the oldest first.
type SQLiteChatLog struct {
	db    *sql.DB
	limit int
}

// NewSQLiteChatLog opens (or creates) the chat database at dbPath.
func NewSQLiteChatLog(ctx context.Context, dbPath string, limit int) (*SQLiteChatLog, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("chatlog: history limit must be positive, got %d", limit)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("chatlog: open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("chatlog: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("chatlog: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, chatSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("chatlog: create schema: %w", err)
	}

	return &SQLiteChatLog{db: db, limit: limit}, nil
}

// Append stores m and trims the log to its limit. The returned message
// carries the assigned id.
func (l *SQLiteChatLog) Append(ctx context.Context, m Message) (Message, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("chatlog: begin append: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages (role, text, status, created_at) VALUES (?, ?, ?, ?)",
		string(m.Role), m.Text, string(m.Status), m.CreatedAt.UnixMilli())
	if err != nil {
		return Message{}, fmt.Errorf("chatlog: insert message: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return Message{}, fmt.Errorf("chatlog: message id: %w", err)
	}

	const trim = `
		DELETE FROM messages WHERE id NOT IN (
			SELECT id FROM messages ORDER BY id DESC LIMIT ?
		)`
	if _, err := tx.ExecContext(ctx, trim, l.limit); err != nil {
		return Message{}, fmt.Errorf("chatlog: trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("chatlog: commit append: %w", err)
	}
	m.CreatedAt = time.UnixMilli(m.CreatedAt.UnixMilli())
	return m, nil
}

// Finish replaces the text and status of a pending reply.
func (l *SQLiteChatLog) Finish(ctx context.Context, id int64, text string, status MessageStatus) error {
	res, err := l.db.ExecContext(ctx,
		"UPDATE messages SET text = ?, status = ? WHERE id = ?", text, string(status), id)
	if err != nil {
		return fmt.Errorf("chatlog: finish message %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("chatlog: finish message %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("chatlog: finish message %d: %w", id, ErrMessageNotFound)
	}
	return nil
}

// Recent returns the stored messages oldest first.
func (l *SQLiteChatLog) Recent(ctx context.Context) ([]Message, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT id, role, text, status, created_at FROM messages ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("chatlog: query messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]Message, 0, l.limit)
	for rows.Next() {
		var (
			m       Message
			role    string
			status  string
			created int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Text, &status, &created); err != nil {
			return nil, fmt.Errorf("chatlog: scan message: %w", err)
		}
		m.Role = MessageRole(role)
		m.Status = MessageStatus(status)
		m.CreatedAt = time.UnixMilli(created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chatlog: iterate messages: %w", err)
	}
	return msgs, nil
}

func (l *SQLiteChatLog) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return fmt.Errorf("chatlog: clear: %w", err)
	}
	return nil
}

// LoadSettings returns the saved settings; ok is false when none were saved.
func (l *SQLiteChatLog) LoadSettings(ctx context.Context) (ChatSettings, bool, error) {
	var s ChatSettings
	err := l.db.QueryRowContext(ctx,
		"SELECT base_url, api_key, model FROM settings WHERE id = 1").Scan(&s.BaseURL, &s.APIKey, &s.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSettings{}, false, nil
	}
	if err != nil {
		return ChatSettings{}, false, fmt.Errorf("chatlog: load settings: %w", err)
	}
	return s, true, nil
}

func (l *SQLiteChatLog) SaveSettings(ctx context.Context, s ChatSettings) error {
	const q = `
		INSERT INTO settings (id, base_url, api_key, model) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_url = excluded.base_url,
			api_key = excluded.api_key,
			model = excluded.model`
	if _, err := l.db.ExecContext(ctx, q, s.BaseURL, s.APIKey, s.Model); err != nil {
		return fmt.Errorf("chatlog: save settings: %w", err)
	}
	return nil
}

func (l *SQLiteChatLog) Close() error {
	return l.db.Close()
}
