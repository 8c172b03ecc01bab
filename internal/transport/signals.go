package transport

import (
	"sync"
	"time"
)

// UnauthorizedEvent is emitted when the authenticated client receives a 401.
type UnauthorizedEvent struct {
	Method    string
	Path      string
	RequestID string
	At        time.Time
}

// Signals fans transport events out to subscribers. The transport only
// reports; deciding what to do about an unauthorized response belongs to
// whoever owns the session.
type Signals struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(UnauthorizedEvent)
}

// NewSignals creates an empty signal hub.
func NewSignals() *Signals {
	return &Signals{subs: make(map[int]func(UnauthorizedEvent))}
}

// OnUnauthorized registers fn and returns a function that removes it.
func (s *Signals) OnUnauthorized(fn func(UnauthorizedEvent)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Signals) emitUnauthorized(ev UnauthorizedEvent) {
	s.mu.RLock()
	fns := make([]func(UnauthorizedEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
