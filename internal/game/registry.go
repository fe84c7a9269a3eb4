package game

import "sync"

// Registry serializes access to each session: all engine mutations for one
// session run under that session's lock, while different sessions proceed in
// parallel. Created once at process start and passed by handle into the
// engine and recovery service; there is no package-level instance.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{locks: map[string]*sync.Mutex{}}
}

// Lock acquires the per-session lock, creating it on first use, and returns
// the unlock func. The external AI call path must release before calling out
// and re-acquire afterwards.
func (r *Registry) Lock(sessionID string) func() {
	r.mu.Lock()
	l := r.locks[sessionID]
	if l == nil {
		l = &sync.Mutex{}
		r.locks[sessionID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Release drops a finished session's lock entry. Safe to call while other
// goroutines still hold a reference; they keep their own pointer.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	delete(r.locks, sessionID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
