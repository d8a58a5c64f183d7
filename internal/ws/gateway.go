package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/mwhitfield/courier/internal/relay"
)

// TokenVerifier resolves a handshake credential to a user identity.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Gateway owns the lifetime of each WebSocket connection: it authenticates
// the handshake, registers the session, runs the read loop and deregisters
// on any disconnect. It is the sole mutator of the session registry.
type Gateway struct {
	hub      *Hub
	verifier TokenVerifier
	router   *relay.Router
	receipts *relay.Receipts
	presence *relay.Presence
	log      zerolog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(hub *Hub, verifier TokenVerifier, router *relay.Router, receipts *relay.Receipts, presence *relay.Presence, log zerolog.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		router:   router,
		receipts: receipts,
		presence: presence,
		log:      log,
	}
}

// ServeHTTP upgrades the connection, authenticates it exactly once and runs
// the client's event loop until disconnect.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		g.log.Debug().Err(err).Msg("accept error")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// A missing credential and an invalid one get the same close: nothing
	// observable reveals which case it was.
	token := bearerToken(r)
	if token == "" {
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}
	userID, err := g.verifier.Verify(token)
	if err != nil {
		g.log.Debug().Msg("handshake token rejected")
		conn.Close(websocket.StatusPolicyViolation, "unauthorized")
		return
	}

	client := &Client{
		conn:   conn,
		id:     uuid.NewString(),
		userID: userID,
	}

	connCtx := g.hub.ConnMgr().Add(client)
	if connCtx.Err() != nil {
		// Manager is shutting down or at capacity; Add already closed the
		// socket with the right status.
		return
	}

	first := g.hub.Registry().Register(client.id, userID)
	g.presence.Connected(r.Context(), userID, first)
	g.log.Info().Str("conn_id", client.id).Str("user_id", userID).Bool("first_session", first).Msg("connected")

	defer func() {
		g.hub.ConnMgr().Remove(client)
		if gone, last, ok := g.hub.Registry().Deregister(client.id); ok {
			// The request context is gone by now; presence writes use a
			// fresh one.
			g.presence.Disconnected(context.Background(), gone, last)
			g.log.Info().Str("conn_id", client.id).Str("user_id", gone).Bool("last_session", last).Msg("disconnected")
		}
	}()

	g.readLoop(r.Context(), connCtx, client)
}

// readLoop dispatches inbound envelopes until the connection closes or the
// connection manager cancels connCtx. Events from one connection are
// handled serially, preserving causal order per client.
func (g *Gateway) readLoop(ctx context.Context, connCtx context.Context, client *Client) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		g.hub.ConnMgr().TouchActivity(client.id)

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.sendError(ctx, client, "invalid JSON")
			continue
		}

		// Identity comes from the registry entry for this connection, never
		// from the payload. A connection that is not registered (for
		// instance mid-shutdown) has its events dropped, not its socket
		// closed.
		userID, ok := g.hub.Registry().UserFor(client.id)
		if !ok {
			g.log.Warn().Str("conn_id", client.id).Str("event", env.Type).Msg("event from unregistered connection dropped")
			continue
		}

		switch env.Type {
		case typeSend:
			g.handleSend(ctx, client, userID, env.Payload)
		case typeMarkRead:
			g.handleMarkRead(ctx, client, userID, env.Payload)
		default:
			g.sendError(ctx, client, "unknown event type")
		}
	}
}

func (g *Gateway) handleSend(ctx context.Context, client *Client, userID string, payload json.RawMessage) {
	var p SendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		g.sendError(ctx, client, "invalid send payload")
		return
	}
	if p.ReceiverID == "" {
		g.sendError(ctx, client, "receiver_id is required")
		return
	}

	if _, err := g.router.Route(ctx, userID, p.ReceiverID, p.Content); err != nil {
		if relay.IsValidation(err) {
			g.sendError(ctx, client, err.Error())
			return
		}
		// Persistence failure: nothing was delivered; the connection stays
		// open and the client may retry.
		g.log.Error().Err(err).Str("user_id", userID).Str("receiver_id", p.ReceiverID).Msg("route failed")
		g.sendError(ctx, client, "message could not be delivered")
	}
}

func (g *Gateway) handleMarkRead(ctx context.Context, client *Client, userID string, payload json.RawMessage) {
	var p MarkReadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		g.sendError(ctx, client, "invalid markRead payload")
		return
	}
	if p.SenderID == "" {
		g.sendError(ctx, client, "sender_id is required")
		return
	}

	if _, err := g.receipts.MarkRead(ctx, userID, p.SenderID); err != nil {
		g.log.Error().Err(err).Str("reader_id", userID).Str("sender_id", p.SenderID).Msg("mark read failed")
	}
}

// sendError writes an error envelope to the client, bypassing the send
// queue so rejections are not dropped under backpressure.
func (g *Gateway) sendError(ctx context.Context, client *Client, msg string) {
	frame, err := marshalEvent("error", ErrorPayload{Message: msg})
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := client.conn.Write(writeCtx, websocket.MessageText, frame); err != nil {
		g.log.Debug().Err(err).Str("conn_id", client.id).Msg("write error frame failed")
	}
}

// bearerToken extracts the handshake credential: an Authorization bearer
// header, or a token query parameter for browser clients that cannot set
// WebSocket headers.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
