package realtime

import "sync"

// Registry maps a user to the set of live connection ids it currently holds.
// Each user entry carries its own lock so concurrent churn for different
// users never contends; the outer lock only guards the entry table itself.
// Entries are deleted once their last connection drains, keeping memory
// bounded to users that are actually online.
type Registry struct {
	mu    sync.RWMutex
	users map[uint]*registryEntry
}

type registryEntry struct {
	mu    sync.Mutex
	dead  bool
	conns map[string]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[uint]*registryEntry)}
}

// Add records a connection for a user and reports whether this was the
// user's first live connection (the offline→online transition).
func (r *Registry) Add(userID uint, connID string) bool {
	for {
		r.mu.RLock()
		entry := r.users[userID]
		r.mu.RUnlock()

		if entry == nil {
			r.mu.Lock()
			entry = r.users[userID]
			if entry == nil {
				entry = &registryEntry{conns: make(map[string]struct{})}
				r.users[userID] = entry
			}
			r.mu.Unlock()
		}

		entry.mu.Lock()
		// A concurrent Remove may have drained this entry and dropped it
		// from the table between the lookup and the lock; inserting into
		// the orphan would make the connection invisible.
		if entry.dead {
			entry.mu.Unlock()
			continue
		}
		wasEmpty := len(entry.conns) == 0
		entry.conns[connID] = struct{}{}
		entry.mu.Unlock()
		return wasEmpty
	}
}

// Remove drops a connection for a user and reports whether the user went
// offline as a result. Removing an unknown connection is a no-op.
func (r *Registry) Remove(userID uint, connID string) bool {
	r.mu.RLock()
	entry := r.users[userID]
	r.mu.RUnlock()
	if entry == nil {
		return false
	}

	entry.mu.Lock()
	if _, ok := entry.conns[connID]; !ok {
		entry.mu.Unlock()
		return false
	}
	delete(entry.conns, connID)
	drained := len(entry.conns) == 0
	entry.mu.Unlock()

	if !drained {
		return false
	}

	// Re-check under the table lock: a concurrent Add may have raced the
	// drain and the entry must survive in that case.
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.users[userID]
	if current != entry {
		return false
	}
	current.mu.Lock()
	empty := len(current.conns) == 0
	if empty {
		current.dead = true
		delete(r.users, userID)
	}
	current.mu.Unlock()
	return empty
}

// ConnectionsFor returns a snapshot of the user's live connection ids.
func (r *Registry) ConnectionsFor(userID uint) []string {
	r.mu.RLock()
	entry := r.users[userID]
	r.mu.RUnlock()
	if entry == nil {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	out := make([]string, 0, len(entry.conns))
	for id := range entry.conns {
		out = append(out, id)
	}
	return out
}

// Online reports whether the user holds at least one live connection.
func (r *Registry) Online(userID uint) bool {
	return len(r.ConnectionsFor(userID)) > 0
}

// Count returns the number of users with at least one live connection.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
