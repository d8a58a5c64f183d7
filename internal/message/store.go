package message

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the interface for message persistence backends.
type Store interface {
	// Create persists a new unread message with a server-assigned ID and
	// creation timestamp and returns it.
	Create(ctx context.Context, senderID, receiverID, content string) (*Message, error)

	// MarkAllRead flips every unread message from senderID to receiverID to
	// read in one bulk operation and returns how many were flipped.
	MarkAllRead(ctx context.Context, senderID, receiverID string) (int, error)

	// History returns every message exchanged between the two users, in
	// creation order ascending.
	History(ctx context.Context, userA, userB string) ([]*Message, error)

	// UnreadCount returns the number of unread messages from senderID to
	// receiverID.
	UnreadCount(ctx context.Context, senderID, receiverID string) (int, error)
}

// MemoryStore keeps messages in memory. Used in tests and single-process
// development setups; messages do not survive a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	msgs []*Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create appends a message. Append order is creation order.
func (s *MemoryStore) Create(ctx context.Context, senderID, receiverID, content string) (*Message, error) {
	msg := &Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	s.mu.Unlock()

	out := *msg
	return &out, nil
}

// MarkAllRead flips unread messages from senderID to receiverID.
func (s *MemoryStore) MarkAllRead(ctx context.Context, senderID, receiverID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.msgs {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

// History returns the conversation between two users in creation order.
func (s *MemoryStore) History(ctx context.Context, userA, userB string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Message
	for _, m := range s.msgs {
		if (m.SenderID == userA && m.ReceiverID == userB) ||
			(m.SenderID == userB && m.ReceiverID == userA) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// UnreadCount counts unread messages from senderID to receiverID.
func (s *MemoryStore) UnreadCount(ctx context.Context, senderID, receiverID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, m := range s.msgs {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Read {
			n++
		}
	}
	return n, nil
}
