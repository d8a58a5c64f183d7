package relay

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mwhitfield/courier/internal/message"
)

// Receipts propagates read acknowledgements back to the original sender's
// live sessions.
type Receipts struct {
	store    message.Store
	sessions Sessions
	out      Deliverer
	log      zerolog.Logger
}

// NewReceipts creates a Receipts propagator.
func NewReceipts(store message.Store, sessions Sessions, out Deliverer, log zerolog.Logger) *Receipts {
	return &Receipts{store: store, sessions: sessions, out: out, log: log}
}

// MarkRead flips every unread message from senderID to readerID in one bulk
// update, then notifies each of the sender's live sessions. The storage
// update must succeed before any notification. Repeating the call with
// nothing left to flip is a safe no-op that still notifies.
func (p *Receipts) MarkRead(ctx context.Context, readerID, senderID string) (int, error) {
	n, err := p.store.MarkAllRead(ctx, senderID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}

	p.out.Deliver(p.sessions.ConnectionsFor(senderID), EventMessagesRead, ReadReceipt{
		ReaderID: readerID,
		SenderID: senderID,
	})

	p.log.Debug().
		Str("reader_id", readerID).
		Str("sender_id", senderID).
		Int("flipped", n).
		Msg("read receipt propagated")
	return n, nil
}
