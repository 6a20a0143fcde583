package dispatch

import (
	"sort"
	"sync"

	"github.com/ggoodman/vppcall-go/api"
)

// Subscriptions tracks which notification streams are enabled and where
// they are delivered. Routing never removes an entry. Once closed it stays
// empty.
type Subscriptions struct {
	mu     sync.RWMutex
	routes map[string]func(api.Message)
	closed bool
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{routes: make(map[string]func(api.Message))}
}

// Enable routes name to deliver, replacing any previous route. It reports
// false after Close.
func (s *Subscriptions) Enable(name string, deliver func(api.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.routes[name] = deliver
	return true
}

// Disable stops routing name. Disabling an unknown name is a no-op.
func (s *Subscriptions) Disable(name string) {
	s.mu.Lock()
	delete(s.routes, name)
	s.mu.Unlock()
}

// Route returns the delivery func for name, if enabled.
func (s *Subscriptions) Route(name string) (func(api.Message), bool) {
	s.mu.RLock()
	deliver, ok := s.routes[name]
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, false
	}
	return deliver, ok
}

// Clear drops every route.
func (s *Subscriptions) Clear() {
	s.mu.Lock()
	clear(s.routes)
	s.mu.Unlock()
}

// Close drops every route and refuses new ones.
func (s *Subscriptions) Close() {
	s.mu.Lock()
	s.closed = true
	clear(s.routes)
	s.mu.Unlock()
}

func (s *Subscriptions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routes)
}

// Names returns the enabled notification names, sorted.
func (s *Subscriptions) Names() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.routes))
	for name := range s.routes {
		out = append(out, name)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}
