package sets

import (
	"sync"
	"sync/atomic"
)

// Subscription is a live registration of a Handler on a topic.
// Every successful Subscribe must be paired with Unsubscribe.
type Subscription struct {
	id      string
	topic   string
	handler Handler
	session *Session

	mu     sync.Mutex // held while the handler runs
	closed atomic.Bool
}

// ID returns the STOMP subscription id.
func (s *Subscription) ID() string { return s.id }

// Topic returns the subscribed destination.
func (s *Subscription) Topic() string { return s.topic }

// Active reports whether the handler can still be invoked.
func (s *Subscription) Active() bool { return !s.closed.Load() }

// Unsubscribe disposes the subscription. It is idempotent, and once it
// returns the handler is not running and will not be invoked again. Called
// from another goroutine it waits for a running handler to return, so do not
// call it while holding a lock that handler needs. Called from inside a
// handler it returns at once. A subscription that was dropped together with
// its connection is already inactive; Unsubscribe then only waits.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	if s.closed.CompareAndSwap(false, true) {
		s.session.unsubscribe(s)
	}
	if s.session.onReadGoroutine() {
		return
	}
	// Wait out a running handler.
	s.mu.Lock()
	s.mu.Unlock()
}

func (s *Subscription) deliver(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.session.log().Error("subscription handler panicked", map[string]any{
				"topic": s.topic,
				"panic": r,
			})
		}
	}()
	s.handler(m)
}

func (s *Subscription) drop() {
	s.closed.Store(true)
}
