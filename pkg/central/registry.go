package central

import "sync"

// registry is the identity cache: it maps a device identifier to the one
// LinkSession instance representing that device. Sessions are created lazily
// on first reference and live as long as the owning Coordinator, so every
// path to a device (discovery, direct retrieval, event dispatch) converges
// on the same instance and the same observable state.
type registry struct {
	mu       sync.Mutex
	create   func(id string) *LinkSession
	sessions map[string]*LinkSession
	order    []string
}

func newRegistry(create func(id string) *LinkSession) *registry {
	return &registry{
		create:   create,
		sessions: make(map[string]*LinkSession),
	}
}

// resolve returns the session for id, creating it on first reference.
func (r *registry) resolve(id string) *LinkSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = r.create(id)
		r.sessions[id] = s
		r.order = append(r.order, id)
	}
	return s
}

// lookup returns the session for id without creating one.
func (r *registry) lookup(id string) (*LinkSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// all returns every known session in creation order.
func (r *registry) all() []*LinkSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*LinkSession, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}
