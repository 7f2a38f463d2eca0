package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrFull is returned by Register when the connection limit is reached.
var ErrFull = errors.New("registry: maximum connections reached")

// Entry describes one connected session.
type Entry struct {
	// ID is the per-process session number shown in the prompt.
	ID uint64
	// TraceID correlates log lines and audit records of one connection.
	TraceID   string
	Username  string
	Peer      string
	Root      bool
	StartedAt time.Time
}

// Registry tracks connected sessions and hands out session numbers.
// Numbers start at 1, are issued once and never reused.
type Registry struct {
	mu       sync.RWMutex
	next     uint64
	sessions map[uint64]Entry
	max      int
	nowFn    func() time.Time
}

// New returns a Registry that admits at most max sessions. Zero means no limit.
func New(max int) *Registry {
	return &Registry{
		sessions: make(map[uint64]Entry),
		max:      max,
		nowFn:    time.Now,
	}
}

// Register allocates a session number and records the session.
func (r *Registry) Register(username, peer string, root bool) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.sessions) >= r.max {
		return Entry{}, ErrFull
	}
	r.next++
	e := Entry{
		ID:        r.next,
		TraceID:   uuid.NewString(),
		Username:  username,
		Peer:      peer,
		Root:      root,
		StartedAt: r.nowFn(),
	}
	r.sessions[e.ID] = e
	return e, nil
}

// Unregister removes a session. It reports false if id was not registered,
// so callers can assert a session is removed exactly once.
func (r *Registry) Unregister(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// List returns a snapshot of connected sessions ordered by session number.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SetNowFunc replaces the clock. Used by tests.
func (r *Registry) SetNowFunc(fn func() time.Time) {
	r.mu.Lock()
	r.nowFn = fn
	r.mu.Unlock()
}
