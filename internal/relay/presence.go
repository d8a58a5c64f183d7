package relay

import (
	"context"

	"github.com/rs/zerolog"
)

// Presence publishes online/offline transitions. Broadcasts fire only at the
// zero-to-nonzero and nonzero-to-zero session boundaries; the caller passes
// the transition decision made atomically by the registry.
type Presence struct {
	dir OnlineSetter
	out Deliverer
	log zerolog.Logger
}

// NewPresence creates a Presence publisher.
func NewPresence(dir OnlineSetter, out Deliverer, log zerolog.Logger) *Presence {
	return &Presence{dir: dir, out: out, log: log}
}

// Connected persists the online flag and, when this is the user's first live
// session, broadcasts the online transition to every connection. The flag
// write is idempotent, so it happens on every connect.
func (p *Presence) Connected(ctx context.Context, userID string, first bool) {
	if err := p.dir.SetOnline(ctx, userID, true); err != nil {
		p.log.Error().Err(err).Str("user_id", userID).Msg("persist online flag")
	}
	if !first {
		return
	}
	p.out.DeliverAll(EventUserStatusChanged, StatusChange{UserID: userID, Status: StatusOnline})
	p.log.Info().Str("user_id", userID).Msg("user online")
}

// Disconnected persists the offline flag and broadcasts the offline
// transition, but only when the user's last session is gone.
func (p *Presence) Disconnected(ctx context.Context, userID string, last bool) {
	if !last {
		return
	}
	if err := p.dir.SetOnline(ctx, userID, false); err != nil {
		p.log.Error().Err(err).Str("user_id", userID).Msg("persist offline flag")
	}
	p.out.DeliverAll(EventUserStatusChanged, StatusChange{UserID: userID, Status: StatusOffline})
	p.log.Info().Str("user_id", userID).Msg("user offline")
}
