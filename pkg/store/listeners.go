package store

import (
	"slices"
	"sync"
)

// listeners fans state snapshots out to subscribers in the order the store
// produced them.
//
// A store calls enqueue while holding its own lock, so the queue order is
// the transition order, and deliver after releasing it. Only one goroutine
// delivers at a time; a dispatch that finds delivery in progress (from
// another goroutine, or from inside a subscriber) leaves its snapshot to
// the active deliverer and returns.
type listeners[S any] struct {
	mu         sync.Mutex
	next       int
	fns        map[int]func(S)
	queue      []S
	delivering bool
}

func (l *listeners[S]) add(fn func(S)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(S))
	}
	id := l.next
	l.next++
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// enqueue must be called with the owning store's lock held.
func (l *listeners[S]) enqueue(state S) {
	l.mu.Lock()
	l.queue = append(l.queue, state)
	l.mu.Unlock()
}

// deliver hands queued snapshots to subscribers until the queue is empty.
func (l *listeners[S]) deliver() {
	l.mu.Lock()
	if l.delivering {
		l.mu.Unlock()
		return
	}
	l.delivering = true

	for len(l.queue) > 0 {
		state := l.queue[0]
		var zero S
		l.queue[0] = zero
		l.queue = l.queue[1:]
		fns := l.subscribers()
		l.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					l.mu.Lock()
					l.delivering = false
					l.mu.Unlock()
					panic(r)
				}
			}()
			for _, fn := range fns {
				fn(state)
			}
		}()

		l.mu.Lock()
	}

	l.delivering = false
	l.mu.Unlock()
}

// subscribers must be called with l.mu held. Registration order is kept.
func (l *listeners[S]) subscribers() []func(S) {
	ids := make([]int, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(S), len(ids))
	for i, id := range ids {
		fns[i] = l.fns[id]
	}
	return fns
}
