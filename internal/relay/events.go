// Package relay holds the services between the WebSocket gateway and the
// stores: message routing, read-receipt propagation and presence. Each one
// is a pure function over a registry snapshot plus its collaborators, so the
// package tests without any socket.
package relay

import "context"

// Server-to-client event names.
const (
	EventReceiveMessage    = "receiveMessage"
	EventMessagesRead      = "messagesRead"
	EventUserStatusChanged = "userStatusChanged"
)

// Presence statuses.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Sessions is the registry view the relay services need: a consistent
// snapshot of one user's live connections.
type Sessions interface {
	ConnectionsFor(userID string) []string
}

// Deliverer writes one event to live connections. Delivery to a connection
// that is gone by the time the snapshot is used is dropped silently.
type Deliverer interface {
	Deliver(connIDs []string, event string, payload any)
	DeliverAll(event string, payload any)
}

// OnlineSetter is the directory view presence needs.
type OnlineSetter interface {
	SetOnline(ctx context.Context, id string, online bool) error
}

// ReadReceipt tells a sender's sessions that the reader has seen all of the
// sender's messages.
type ReadReceipt struct {
	ReaderID string `json:"reader_id"`
	SenderID string `json:"sender_id"`
}

// StatusChange announces a presence transition.
type StatusChange struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}
