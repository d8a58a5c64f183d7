package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mwhitfield/courier/internal/message"
)

// Validation errors are reported to the sending connection only; nothing is
// persisted or delivered when they fire.
var (
	ErrEmptyContent   = errors.New("relay: message content is required")
	ErrContentTooLong = errors.New("relay: message content too long")
)

// IsValidation reports whether err rejects the request itself rather than
// signalling a storage failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyContent) || errors.Is(err, ErrContentTooLong)
}

// Router validates a send request, persists the message and fans it out to
// every live session of the receiver and of the sender.
type Router struct {
	store      message.Store
	sessions   Sessions
	out        Deliverer
	maxContent int
	log        zerolog.Logger
}

// NewRouter creates a Router. maxContent is the content limit in bytes.
func NewRouter(store message.Store, sessions Sessions, out Deliverer, maxContent int, log zerolog.Logger) *Router {
	return &Router{
		store:      store,
		sessions:   sessions,
		out:        out,
		maxContent: maxContent,
		log:        log,
	}
}

// Route persists and delivers one message. Fan-out only happens after the
// message is durably stored; a persistence failure aborts with no delivery.
// The sender's other sessions receive the same echo as the receiver so every
// session converges on the same conversation.
func (r *Router) Route(ctx context.Context, senderID, receiverID, content string) (*message.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > r.maxContent {
		return nil, ErrContentTooLong
	}

	msg, err := r.store.Create(ctx, senderID, receiverID, content)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	targets := r.sessions.ConnectionsFor(receiverID)
	if senderID != receiverID {
		targets = append(targets, r.sessions.ConnectionsFor(senderID)...)
	}
	r.out.Deliver(targets, EventReceiveMessage, msg)

	r.log.Debug().
		Str("message_id", msg.ID).
		Str("sender_id", senderID).
		Str("receiver_id", receiverID).
		Int("sessions", len(targets)).
		Msg("message routed")
	return msg, nil
}
