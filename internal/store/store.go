// Package store persists the local chat cache in SQLite. It is the single
// durable resource of the engine; all access goes through the engine's
// operations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"ChatSync/internal/chat"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the local chat cache over a SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// AUTOINCREMENT keeps local ids monotonic so a deleted chat's id is never
// handed out again.
const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	messages TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL
);`

// Open opens (creating if needed) the chat database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chats table: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert stores a new chat and returns its assigned local id.
func (s *Store) Insert(ctx context.Context, c chat.Chat) (int64, error) {
	msgs, err := encodeMessages(c.Messages)
	if err != nil {
		return 0, &chat.StorageError{Message: "failed to encode messages", Err: err}
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO chats (conversation_id, title, messages, created_at) VALUES (?, ?, ?, ?)",
		c.ConversationID, c.Title, msgs, c.CreatedAt,
	)
	if err != nil {
		return 0, &chat.StorageError{Message: "failed to insert chat", Err: err}
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, &chat.StorageError{Message: "failed to read inserted id", Err: err}
	}

	s.logger.Info("chat inserted", "chat_id", id)
	return id, nil
}

// Update merges the non-nil fields of p into the chat with the given id.
// A missing id is a NotFoundError: the engine never updates a chat it has
// not read back from the cache first.
func (s *Store) Update(ctx context.Context, id int64, p chat.Patch) error {
	sets := []string{}
	args := []any{}

	if p.ConversationID != nil {
		sets = append(sets, "conversation_id = ?")
		args = append(args, *p.ConversationID)
	}
	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Messages != nil {
		msgs, err := encodeMessages(p.Messages)
		if err != nil {
			return &chat.StorageError{Message: "failed to encode messages", Err: err}
		}
		sets = append(sets, "messages = ?")
		args = append(args, msgs)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE chats SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...,
	)
	if err != nil {
		return &chat.StorageError{Message: "failed to update chat", Err: err}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &chat.StorageError{Message: "failed to read rows affected", Err: err}
	}
	if n == 0 {
		return &chat.NotFoundError{ID: id}
	}
	return nil
}

// Delete removes the chat with the given id. Deleting an absent id is not
// an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", id); err != nil {
		return &chat.StorageError{Message: "failed to delete chat", Err: err}
	}
	return nil
}

// Clear removes every chat.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM chats"); err != nil {
		return &chat.StorageError{Message: "failed to clear chats", Err: err}
	}
	return nil
}

// ReplaceAll swaps the whole cache for the staged chats in one transaction,
// so a failure mid-import leaves the previous contents intact. Used by the
// full-resync path only.
func (s *Store) ReplaceAll(ctx context.Context, chats []chat.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &chat.StorageError{Message: "failed to begin transaction", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chats"); err != nil {
		return &chat.StorageError{Message: "failed to clear chats", Err: err}
	}

	for _, c := range chats {
		msgs, err := encodeMessages(c.Messages)
		if err != nil {
			return &chat.StorageError{Message: "failed to encode messages", Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chats (conversation_id, title, messages, created_at) VALUES (?, ?, ?, ?)",
			c.ConversationID, c.Title, msgs, c.CreatedAt,
		); err != nil {
			return &chat.StorageError{Message: "failed to import chat", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &chat.StorageError{Message: "failed to commit transaction", Err: err}
	}

	s.logger.Info("cache replaced", "chat_count", len(chats))
	return nil
}

// ListAll returns every stored chat in no particular order; the engine
// owns sorting.
func (s *Store) ListAll(ctx context.Context) ([]chat.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, conversation_id, title, messages, created_at FROM chats",
	)
	if err != nil {
		return nil, &chat.StorageError{Message: "failed to list chats", Err: err}
	}
	defer rows.Close()

	chats := []chat.Chat{}
	for rows.Next() {
		var c chat.Chat
		var msgs string
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.Title, &msgs, &c.CreatedAt); err != nil {
			return nil, &chat.StorageError{Message: "failed to scan chat", Err: err}
		}
		if err := json.Unmarshal([]byte(msgs), &c.Messages); err != nil {
			return nil, &chat.StorageError{Message: "failed to decode messages", Err: err}
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &chat.StorageError{Message: "failed to iterate chats", Err: err}
	}

	return chats, nil
}

func encodeMessages(msgs []chat.Message) (string, error) {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
