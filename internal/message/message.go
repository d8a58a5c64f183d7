package message

import "time"

// Message is one direct message between two users. CreatedAt is assigned by
// the store at creation time, never taken from the client, so history order
// is trustworthy. A message is immutable once created except for the read
// flag, which only MarkAllRead flips.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}
