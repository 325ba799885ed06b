package player

import "sync"

// Registry owns all per-guild player states and the per-guild enqueue
// locks. Locks are created lazily on first use and persist for the process
// lifetime; states are created on the first playback request and removed on
// voice-session teardown.
//
// Distinct guilds never share a lock, so enqueue workflows on different
// guilds proceed fully in parallel.
type Registry struct {
	mu     sync.Mutex
	states map[string]*State
	locks  map[string]*sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		states: make(map[string]*State),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Lock returns the guild's enqueue lock, creating it on first use. The
// caller must hold it for the entire resolve→append→post→persist sequence.
func (r *Registry) Lock(guildID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[guildID] = l
	}
	return l
}

// Get returns the guild's state, or nil when none exists.
func (r *Registry) Get(guildID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[guildID]
}

// GetOrCreate returns the guild's state, creating it when absent. The
// second result reports whether this call created it.
func (r *Registry) GetOrCreate(guildID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[guildID]; ok {
		return s, false
	}
	s := newState(guildID)
	r.states[guildID] = s
	return s, true
}

// Remove drops the guild's state. The enqueue lock is retained so an
// in-flight workflow on another goroutine still serializes correctly.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, guildID)
}

// All returns a snapshot of every live state.
func (r *Registry) All() []*State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*State, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	return out
}
