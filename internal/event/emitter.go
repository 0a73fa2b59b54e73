// Package event provides a typed in-process emitter whose registrations
// return unsubscribe handles instead of relying on a matching Off call.
package event

import "sync"

// Subscription is the handle returned by Emitter.On
type Subscription interface {
	Unsubscribe()
}

// Emitter fans out values of type T to registered handlers.
// Handlers run synchronously on the emitting goroutine, in registration order.
type Emitter[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id uint64
	fn func(T)
}

// On registers fn and returns a handle that removes it
func (e *Emitter[T]) On(fn func(T)) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.handlers = append(e.handlers, handlerEntry[T]{id: id, fn: fn})
	return &subscription{cancel: func() { e.off(id) }}
}

// Once registers fn for a single delivery
func (e *Emitter[T]) Once(fn func(T)) Subscription {
	var sub Subscription
	var once sync.Once
	sub = e.On(func(v T) {
		once.Do(func() {
			sub.Unsubscribe()
			fn(v)
		})
	})
	return sub
}

func (e *Emitter[T]) off(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, h := range e.handlers {
		if h.id == id {
			// Copy so in-flight Emit snapshots stay intact
			next := make([]handlerEntry[T], 0, len(e.handlers)-1)
			next = append(next, e.handlers[:i]...)
			e.handlers = append(next, e.handlers[i+1:]...)
			return
		}
	}
}

// Emit delivers v to every handler registered at the time of the call
func (e *Emitter[T]) Emit(v T) {
	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

// Len returns the number of registered handlers
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers)
}

type subscription struct {
	once   sync.Once
	cancel func()
}

func (s *subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Group collects subscriptions so a component can release them together on teardown
type Group struct {
	mu   sync.Mutex
	subs []Subscription
}

// Add tracks sub and returns it
func (g *Group) Add(sub Subscription) Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, sub)
	return sub
}

// Unsubscribe releases every tracked subscription
func (g *Group) Unsubscribe() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
