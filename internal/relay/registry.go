package relay

import "sync"

// Handle pushes envelopes to exactly one live session. Push must not block
// on the target's transport.
type Handle interface {
	Push(env Envelope) error
}

// Registry maps connection ids to the handle of the session currently
// registered under that id. It is created once per server and shared by
// every session. The lock only guards map access; no I/O happens under it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Handle)}
}

// Register inserts or overwrites the handle for id. A superseded handle is
// neither notified nor closed; it just stops being reachable via Lookup.
func (r *Registry) Register(id string, h Handle) {
	r.mu.Lock()
	r.entries[id] = h
	r.mu.Unlock()
}

// Unregister removes the entry for id if present.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Release removes the entry for id only while it still points at h, and
// reports whether it did. A closing session uses it so that it never
// removes a successor registered under the same id.
func (r *Registry) Release(id string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.entries[id]; ok && cur == h {
		delete(r.entries, id)
		return true
	}
	return false
}

// Lookup returns the current handle for id.
func (r *Registry) Lookup(id string) (Handle, bool) {
	r.mu.RLock()
	h, ok := r.entries[id]
	r.mu.RUnlock()
	return h, ok
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
