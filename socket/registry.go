package socket

import "sync"

// Client is the part of a realtime connection the notifier drives.
// socketio.Conn satisfies it.
type Client interface {
	ID() string
	Emit(event string, v ...interface{})
	Close() error
}

// Registry maps each userId to its single live connection.
type Registry struct {
	mu    sync.Mutex
	conns map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Client)}
}

// Register makes c the live connection for userID and returns the connection it replaced, if any.
func (r *Registry) Register(userID string, c Client) Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.conns[userID]
	r.conns[userID] = c
	if previous != nil && previous.ID() == c.ID() {
		return nil
	}
	return previous
}

// Get returns the live connection for userID
func (r *Registry) Get(userID string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Take removes and returns the live connection for userID
func (r *Registry) Take(userID string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[userID]
	if ok {
		delete(r.conns, userID)
	}
	return c, ok
}

// Remove unregisters c only while it is still userID's live connection.
func (r *Registry) Remove(userID string, c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.conns[userID]
	if !ok || current.ID() != c.ID() {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Len returns the number of live connections
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
