package relay

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry is the concurrency-safe map of live call sessions. It is the
// only state shared between calls; each handler goroutine works against
// its own CallSession otherwise.
type Registry struct {
	mu    sync.RWMutex
	calls map[CallID]*CallSession
}

func NewRegistry() *Registry {
	return &Registry{calls: make(map[CallID]*CallSession)}
}

func (r *Registry) Bind(s *CallSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[s.CallID] = s
	log.Info().Str("module", "relay.registry").Str("call", string(s.CallID)).Str("stream", string(s.StreamID)).Msg("bound call session")
}

func (r *Registry) Get(id CallID) (*CallSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.calls[id]
	return s, ok
}

func (r *Registry) Unbind(id CallID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, id)
	log.Info().Str("module", "relay.registry").Str("call", string(id)).Msg("unbound call session")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}
