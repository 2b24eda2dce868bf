package interview

import (
	"context"
	"sort"
	"sync"
)

// Registry maps connection ids to their live sessions. A session leaves the
// live table as soon as it ends. The last ended session of each connection
// stays reachable through Ended until the connection is removed, so its
// final feedback can be sent again.
type Registry struct {
	cfg  Config
	deps Deps

	mu        sync.Mutex
	sessions  map[string]*Session
	ended     map[string]*Session
	finishing map[*Session]struct{}
}

func NewRegistry(cfg Config, deps Deps) *Registry {
	return &Registry{
		cfg:       cfg,
		deps:      deps,
		sessions:  make(map[string]*Session),
		ended:     make(map[string]*Session),
		finishing: make(map[*Session]struct{}),
	}
}

// Start creates and starts a session under id. A session already running
// under the same id ends with ReasonRestart first.
func (r *Registry) Start(ctx context.Context, id string, params StartParams, emitter Emitter) *Session {
	s := newSession(ctx, id, params, r.cfg, r.deps, emitter)
	s.onEnd = func() { r.detach(s) }

	r.mu.Lock()
	prev := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()

	if prev != nil {
		prev.End(ReasonRestart)
	}
	s.start()
	return s
}

// detach moves an ended session out of the live table. The entry is only
// dropped while it still points at s, since a restart may already have
// replaced it.
func (r *Registry) detach(s *Session) {
	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	r.ended[s.id] = s
	r.finishing[s] = struct{}{}
	r.mu.Unlock()

	go func() {
		s.Wait()
		r.mu.Lock()
		delete(r.finishing, s)
		r.mu.Unlock()
	}()
}

// Get returns the live session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Ended returns the most recently ended session for id.
func (r *Registry) Ended(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.ended[id]
	return s, ok
}

// Remove forgets everything held for id and ends its live session with
// reason. Unknown ids are ignored.
func (r *Registry) Remove(id string, reason Reason) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	delete(r.ended, id)
	r.mu.Unlock()

	if ok {
		s.End(reason)
	}

	r.mu.Lock()
	delete(r.ended, id)
	r.mu.Unlock()
}

// Len counts live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns a snapshot of every live session, ordered by id.
func (r *Registry) List() []State {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	states := make([]State, 0, len(sessions))
	for _, s := range sessions {
		states = append(states, s.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].SessionID < states[j].SessionID })
	return states
}

// Shutdown ends every live session and waits until all ended sessions have
// finished their feedback and archiving, or for ctx to expire.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	live := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		live = append(live, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.End(ReasonShutdown)
	}

	// A live session may already be inside End from another goroutine, so
	// wait on it whether or not it has reached the finishing set.
	pending := make(map[*Session]struct{}, len(live))
	for _, s := range live {
		pending[s] = struct{}{}
	}
	r.mu.Lock()
	for s := range r.finishing {
		pending[s] = struct{}{}
	}
	r.ended = make(map[string]*Session)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for s := range pending {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Wait()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
