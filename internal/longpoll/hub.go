// Package longpoll implements the in-process wait/notify registry: a reader
// that found nothing registers a waiter for a key and blocks until a writer
// publishes matching items or the waiter's timeout elapses.
package longpoll

import (
	"context"
	"sync"
	"time"
)

// Hub fans writer notifications out to per-key waiters. Each waiter carries
// its own acceptance predicate and timeout and is satisfied independently of
// the others. Notifications are not replayed: a waiter registered after a
// Notify call returns never observes that notification.
type Hub[T any] struct {
	mu      sync.Mutex
	waiters map[string][]*Waiter[T]
}

type Waiter[T any] struct {
	hub    *Hub[T]
	key    string
	accept func(T) bool
	ch     chan []T
	timer  *time.Timer
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{waiters: make(map[string][]*Waiter[T])}
}

// Register creates a waiter for key without blocking. accept may be nil, in
// which case every notified item satisfies the waiter.
func (h *Hub[T]) Register(key string, timeout time.Duration, accept func(T) bool) *Waiter[T] {
	w := &Waiter[T]{
		hub:    h,
		key:    key,
		accept: accept,
		ch:     make(chan []T, 1),
		timer:  time.NewTimer(timeout),
	}
	h.mu.Lock()
	h.waiters[key] = append(h.waiters[key], w)
	h.mu.Unlock()
	return w
}

// Block suspends the caller until the waiter is satisfied, its timeout
// elapses, or ctx is done. On timeout or cancellation it returns nil; this is
// the bounded-wait contract, not an error.
func (w *Waiter[T]) Block(ctx context.Context) []T {
	defer w.timer.Stop()
	select {
	case items := <-w.ch:
		return items
	case <-w.timer.C:
	case <-ctx.Done():
	}
	w.hub.remove(w)
	// A notification may have landed between the timeout and removal.
	select {
	case items := <-w.ch:
		return items
	default:
		return nil
	}
}

// Notify delivers items to every waiter registered for key whose predicate
// accepts at least one item. Satisfied waiters are removed; the rest keep
// waiting. The lock is held only for bookkeeping, never while a waiter is
// blocked.
func (h *Hub[T]) Notify(key string, items []T) {
	if len(items) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.waiters[key][:0]
	for _, w := range h.waiters[key] {
		matched := filter(items, w.accept)
		if len(matched) == 0 {
			kept = append(kept, w)
			continue
		}
		w.ch <- matched
	}
	if len(kept) == 0 {
		delete(h.waiters, key)
	} else {
		h.waiters[key] = kept
	}
}

// Pending reports the number of waiters currently registered for key.
func (h *Hub[T]) Pending(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters[key])
}

func (h *Hub[T]) remove(w *Waiter[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.waiters[w.key]
	for i, cand := range list {
		if cand == w {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.waiters, w.key)
	} else {
		h.waiters[w.key] = list
	}
}

func filter[T any](items []T, accept func(T) bool) []T {
	if accept == nil {
		return append([]T(nil), items...)
	}
	var out []T
	for _, it := range items {
		if accept(it) {
			out = append(out, it)
		}
	}
	return out
}
