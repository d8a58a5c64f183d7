package registry

import "sync"

// Registry is the live mapping between WebSocket connections and the users
// they authenticated as. A user may hold several connections at once
// (multiple tabs or devices); the reverse index keeps presence decisions
// correct in that case. All mutations happen under a single mutex so that
// "register + was this the first session" and "deregister + was this the
// last session" are atomic.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]string              // connection ID -> user ID
	users map[string]map[string]struct{} // user ID -> set of connection IDs
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		conns: make(map[string]string),
		users: make(map[string]map[string]struct{}),
	}
}

// Register records connID as a live session for userID and reports whether
// it is the user's first live session. Registering an already-known
// connection ID replaces the previous entry.
func (r *Registry) Register(connID, userID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[connID]; ok {
		r.removeLocked(connID, prev)
	}

	first = len(r.users[userID]) == 0
	r.conns[connID] = userID
	if r.users[userID] == nil {
		r.users[userID] = make(map[string]struct{})
	}
	r.users[userID][connID] = struct{}{}
	return first
}

// Deregister removes connID from both maps. It returns the user the
// connection belonged to and whether it was that user's last live session.
// Deregistering an unknown connection is a no-op with ok == false.
func (r *Registry) Deregister(connID string) (userID string, last, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.conns[connID]
	if !ok {
		return "", false, false
	}
	r.removeLocked(connID, userID)
	return userID, len(r.users[userID]) == 0, true
}

// removeLocked deletes a single session. Must be called while holding mu.
func (r *Registry) removeLocked(connID, userID string) {
	delete(r.conns, connID)
	if set, ok := r.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.users, userID)
		}
	}
}

// ConnectionsFor returns a snapshot of the user's live connection IDs.
// The result is empty for an offline user and safe to iterate while the
// registry keeps changing.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.users[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// UserFor returns the user a connection authenticated as.
func (r *Registry) UserFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.conns[connID]
	return userID, ok
}

// Online reports whether the user has at least one live session.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// NumConnections returns the total number of live sessions.
func (r *Registry) NumConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// NumUsers returns the number of distinct online users.
func (r *Registry) NumUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
