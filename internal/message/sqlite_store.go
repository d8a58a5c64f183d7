package message

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists messages in SQLite. It shares the *sql.DB with other
// stores; the schema is created on construction.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the messages table if needed and returns the store.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		content TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("init messages schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Create inserts a new unread message.
func (s *SQLiteStore) Create(ctx context.Context, senderID, receiverID, content string) (*Message, error) {
	msg := &Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, read, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// MarkAllRead flips unread messages from senderID to receiverID in one update.
func (s *SQLiteStore) MarkAllRead(ctx context.Context, senderID, receiverID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read = 1
		WHERE sender_id = ? AND receiver_id = ? AND read = 0
	`, senderID, receiverID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// History returns the conversation between two users, oldest first. Insertion
// order breaks ties between equal timestamps.
func (s *SQLiteStore) History(ctx context.Context, userA, userB string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, content, read, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC
	`, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		var read int
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Read = read != 0
		m.CreatedAt = time.Unix(0, createdAt)
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return msgs, nil
}

// UnreadCount counts unread messages from senderID to receiverID.
func (s *SQLiteStore) UnreadCount(ctx context.Context, senderID, receiverID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE sender_id = ? AND receiver_id = ? AND read = 0
	`, senderID, receiverID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}
