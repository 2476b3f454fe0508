// Package notify fans live notifications out to connected subscribers.
//
// Every subscriber owns a bounded buffer. When a subscriber cannot keep up its
// channel is closed and Lagged reports true, so the client reconnects and
// reconciles from the store instead of silently missing messages.
package notify

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when subscribing to a hub that has been shut down.
var ErrClosed = errors.New("notify: hub closed")

// DefaultBuffer is the per-subscriber queue length used when none is configured.
const DefaultBuffer = 32

// Subscription receives messages published for one user.
type Subscription[T any] struct {
	hub    *Hub[T]
	userID string
	id     uint64
	ch     chan T

	mu     sync.Mutex
	closed bool
	lagged bool
	// stop detaches the context watcher; nil once the subscription is closed.
	stop func() bool
}

// C returns the receive channel. It is closed when the subscription ends.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Lagged reports whether the subscription was closed because its buffer overflowed.
func (s *Subscription[T]) Lagged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

// Close detaches the subscription from the hub. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.hub.remove(s.userID, s.id)
	s.shutdown(false)
}

func (s *Subscription[T]) shutdown(lagged bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.lagged = lagged
	close(s.ch)
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// watch closes the subscription when ctx is done. The watcher is released as
// soon as the subscription closes for any other reason.
func (s *Subscription[T]) watch(ctx context.Context) {
	if ctx == nil || ctx.Done() == nil {
		return
	}
	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return
	}
	s.stop = stop
	s.mu.Unlock()
}

// offer performs a non-blocking send and reports whether the message was queued.
func (s *Subscription[T]) offer(msg T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

// Hub routes messages to subscriptions keyed by user ID.
type Hub[T any] struct {
	mu     sync.Mutex
	buffer int
	nextID uint64
	subs   map[string]map[uint64]*Subscription[T]
	closed bool
}

// NewHub constructs a hub whose subscribers buffer up to buffer messages.
func NewHub[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub[T]{buffer: buffer, subs: make(map[string]map[uint64]*Subscription[T])}
}

// Subscribe registers a subscriber for userID. The subscription is closed when ctx is done.
func (h *Hub[T]) Subscribe(ctx context.Context, userID string) (*Subscription[T], error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.nextID++
	sub := &Subscription[T]{hub: h, userID: userID, id: h.nextID, ch: make(chan T, h.buffer)}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[uint64]*Subscription[T])
	}
	h.subs[userID][sub.id] = sub
	h.mu.Unlock()

	sub.watch(ctx)
	return sub, nil
}

// Publish delivers msg to every live subscription of userID without blocking.
// Subscribers whose buffer is full are closed as lagged.
func (h *Hub[T]) Publish(userID string, msg T) int {
	h.mu.Lock()
	targets := make([]*Subscription[T], 0, len(h.subs[userID]))
	for _, sub := range h.subs[userID] {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	delivered := 0
	for _, sub := range targets {
		if sub.offer(msg) {
			delivered++
			continue
		}
		h.remove(userID, sub.id)
		sub.shutdown(true)
	}
	return delivered
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub[T]) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Close ends every subscription and rejects new ones.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := h.subs
	h.subs = make(map[string]map[uint64]*Subscription[T])
	h.mu.Unlock()

	for _, byID := range all {
		for _, sub := range byID {
			sub.shutdown(false)
		}
	}
}

func (h *Hub[T]) remove(userID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	byID := h.subs[userID]
	if byID == nil {
		return
	}
	delete(byID, id)
	if len(byID) == 0 {
		delete(h.subs, userID)
	}
}
