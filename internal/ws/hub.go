package ws

import (
	"github.com/rs/zerolog"

	"github.com/mwhitfield/courier/internal/registry"
)

// Hub delivers relay events to live connections. It marshals each event
// once and hands the frame to the connection manager, which owns the actual
// writes. Hub implements relay.Deliverer.
type Hub struct {
	reg   *registry.Registry
	conns *ConnManager
	log   zerolog.Logger
}

// NewHub creates a Hub over the given registry and connection manager.
func NewHub(reg *registry.Registry, conns *ConnManager, log zerolog.Logger) *Hub {
	return &Hub{reg: reg, conns: conns, log: log}
}

// Registry returns the session registry backing this hub.
func (h *Hub) Registry() *registry.Registry {
	return h.reg
}

// ConnMgr returns the connection manager backing this hub.
func (h *Hub) ConnMgr() *ConnManager {
	return h.conns
}

// Deliver sends one event to each of the given connections. Connections
// that disappeared since the snapshot was taken are skipped silently.
func (h *Hub) Deliver(connIDs []string, event string, payload any) {
	if len(connIDs) == 0 {
		return
	}
	frame, err := marshalEvent(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal event")
		return
	}
	for _, id := range connIDs {
		h.conns.Send(id, frame)
	}
}

// DeliverAll sends one event to every live connection.
func (h *Hub) DeliverAll(event string, payload any) {
	frame, err := marshalEvent(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("marshal event")
		return
	}
	h.conns.Broadcast(frame)
}
