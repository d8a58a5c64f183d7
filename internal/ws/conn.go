package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of frames that can be queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second

	// idleCheckInterval is how often the idle reaper runs.
	idleCheckInterval = 30 * time.Second
)

// Client is one live WebSocket connection for one authenticated user.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	id     string // connection ID, unique for the connection's lifetime
	userID string
}

// connEntry holds per-connection metadata alongside the cancel function.
type connEntry struct {
	client      *Client
	cancel      context.CancelFunc
	connectedAt time.Time
	lastActive  time.Time
}

// ConnStats holds point-in-time connection statistics.
type ConnStats struct {
	Active        int
	MaxConns      int
	Rejected      int64
	DroppedFrames int64
	IdleReaped    int64
}

// ConnManager tracks all active WebSocket connections by connection ID and
// provides lifecycle management: per-client buffered send channels with a
// write pump each, connection limits, idle detection and graceful shutdown.
type ConnManager struct {
	mu       sync.Mutex
	clients  map[string]*connEntry
	closed   bool
	maxConns int
	idleTTL  time.Duration
	stopIdle context.CancelFunc
	log      zerolog.Logger

	rejected      atomic.Int64
	droppedFrames atomic.Int64
	idleReaped    atomic.Int64
}

// ConnManagerOption configures a ConnManager.
type ConnManagerOption func(*ConnManager)

// WithMaxConns sets the maximum number of concurrent connections. New
// connections beyond the limit are rejected. 0 means unlimited (default).
func WithMaxConns(n int) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.maxConns = n
	}
}

// WithIdleTimeout sets how long a connection can be idle before it is
// closed. 0 disables idle reaping (default).
func WithIdleTimeout(d time.Duration) ConnManagerOption {
	return func(cm *ConnManager) {
		cm.idleTTL = d
	}
}

// NewConnManager creates a connection manager.
func NewConnManager(log zerolog.Logger, opts ...ConnManagerOption) *ConnManager {
	cm := &ConnManager{
		clients: make(map[string]*connEntry),
		log:     log,
	}
	for _, opt := range opts {
		opt(cm)
	}
	if cm.idleTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		cm.stopIdle = cancel
		go cm.idleReapLoop(ctx)
	}
	return cm
}

// Add registers a client and starts its write pump. The returned context is
// cancelled when the client is removed or the manager shuts down; callers
// select on ctx.Done() in their read loop. Returns an already-cancelled
// context if the manager is closed or at capacity.
func (cm *ConnManager) Add(c *Client) context.Context {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.closed {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}

	if cm.maxConns > 0 && len(cm.clients) >= cm.maxConns {
		cm.rejected.Add(1)
		c.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	now := time.Now()
	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	cm.clients[c.id] = &connEntry{
		client:      c,
		cancel:      cancel,
		connectedAt: now,
		lastActive:  now,
	}

	go cm.writePump(ctx, c)

	return ctx
}

// Remove stops a client's write pump and forgets it. The send channel is
// left open so a racing fan-out never writes to a closed channel; queued
// frames are simply dropped with the pump gone.
func (cm *ConnManager) Remove(c *Client) {
	cm.mu.Lock()
	entry, ok := cm.clients[c.id]
	if ok {
		delete(cm.clients, c.id)
	}
	cm.mu.Unlock()

	if ok {
		entry.cancel()
	}
}

// Send queues a frame for delivery to one connection. Returns false if the
// connection is gone or its buffer is full (slow consumer); both are dropped
// silently at this layer.
func (cm *ConnManager) Send(connID string, data []byte) bool {
	cm.mu.Lock()
	entry, ok := cm.clients[connID]
	cm.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case entry.client.send <- data:
		return true
	default:
		cm.droppedFrames.Add(1)
		cm.log.Warn().Str("conn_id", connID).Msg("send buffer full, dropping frame")
		return false
	}
}

// Broadcast queues a frame for every live connection.
func (cm *ConnManager) Broadcast(data []byte) {
	cm.mu.Lock()
	targets := make([]*Client, 0, len(cm.clients))
	for _, entry := range cm.clients {
		targets = append(targets, entry.client)
	}
	cm.mu.Unlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			cm.droppedFrames.Add(1)
		}
	}
}

// TouchActivity updates the last-active timestamp for a connection. Called
// on every inbound frame so idle reaping spares active connections.
func (cm *ConnManager) TouchActivity(connID string) {
	cm.mu.Lock()
	if entry, ok := cm.clients[connID]; ok {
		entry.lastActive = time.Now()
	}
	cm.mu.Unlock()
}

// Count returns the number of active connections.
func (cm *ConnManager) Count() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.clients)
}

// Stats returns point-in-time connection statistics.
func (cm *ConnManager) Stats() ConnStats {
	cm.mu.Lock()
	active := len(cm.clients)
	maxConns := cm.maxConns
	cm.mu.Unlock()
	return ConnStats{
		Active:        active,
		MaxConns:      maxConns,
		Rejected:      cm.rejected.Load(),
		DroppedFrames: cm.droppedFrames.Load(),
		IdleReaped:    cm.idleReaped.Load(),
	}
}

// Shutdown gracefully closes all connections.
func (cm *ConnManager) Shutdown() {
	cm.mu.Lock()
	cm.closed = true
	entries := make([]*connEntry, 0, len(cm.clients))
	for _, entry := range cm.clients {
		entries = append(entries, entry)
	}
	cm.clients = make(map[string]*connEntry)
	cm.mu.Unlock()

	if cm.stopIdle != nil {
		cm.stopIdle()
	}

	for _, entry := range entries {
		entry.cancel()
		entry.client.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// idleReapLoop periodically closes idle connections.
func (cm *ConnManager) idleReapLoop(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm.reapIdle()
		}
	}
}

// reapIdle closes connections that have been idle longer than idleTTL.
func (cm *ConnManager) reapIdle() {
	cm.mu.Lock()
	now := time.Now()
	var stale []*connEntry
	for id, entry := range cm.clients {
		if now.Sub(entry.lastActive) > cm.idleTTL {
			stale = append(stale, entry)
			delete(cm.clients, id)
		}
	}
	cm.mu.Unlock()

	for _, entry := range stale {
		entry.cancel()
		entry.client.conn.Close(websocket.StatusPolicyViolation, "idle timeout")
		cm.idleReaped.Add(1)
		cm.log.Info().Str("conn_id", entry.client.id).Str("user_id", entry.client.userID).Msg("reaped idle connection")
	}
}

// writePump drains the client's send channel, writing each frame to the
// WebSocket connection. It exits when ctx is cancelled.
func (cm *ConnManager) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				cm.log.Debug().Err(err).Str("conn_id", c.id).Msg("write failed")
				return
			}
		}
	}
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
