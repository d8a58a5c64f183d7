package ws

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON structure exchanged over the WebSocket, in both
// directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client-to-server event names. Server-to-client names live in the relay
// package next to their payloads.
const (
	typeSend     = "send"
	typeMarkRead = "markRead"
)

// SendPayload asks the server to deliver content to another user.
type SendPayload struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// MarkReadPayload acknowledges every message from SenderID to the calling
// user. SenderID is the author of the messages being acknowledged, not the
// caller.
type MarkReadPayload struct {
	SenderID string `json:"sender_id"`
}

// ErrorPayload reports a rejected request to the offending connection only.
type ErrorPayload struct {
	Message string `json:"message"`
}

// marshalEvent wraps payload in an Envelope and marshals the whole frame.
func marshalEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	frame, err := json.Marshal(Envelope{Type: event, Payload: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return frame, nil
}
