package reactive

import (
	"sync"

	"github.com/recera/pactrend/pkg/scheduler"
)

// State is an observable value
type State[T any] struct {
	mu    sync.RWMutex
	value T

	marker   Marker
	readers  subscribers
	watchMu  sync.Mutex
	watchers map[uint64]func(T)
	watchID  uint64
}

// NewState returns a state holding initial. Writes mark readers through m,
// which may be nil for states no fiber renders.
func NewState[T any](initial T, m Marker) *State[T] {
	return &State[T]{value: initial, marker: m}
}

// Get returns the value, subscribing the fiber being rendered
func (s *State[T]) Get() T {
	s.readers.add(CurrentFiber())
	return s.Peek()
}

// Peek returns the value without subscribing
func (s *State[T]) Peek() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set stores v and notifies watchers and readers
func (s *State[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
	s.changed(v)
}

// Update replaces the value with fn(value) under the lock
func (s *State[T]) Update(fn func(T) T) {
	s.mu.Lock()
	v := fn(s.value)
	s.value = v
	s.mu.Unlock()
	s.changed(v)
}

// Watch calls fn after every write until cancel is called
func (s *State[T]) Watch(fn func(T)) (cancel func()) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watchers == nil {
		s.watchers = make(map[uint64]func(T))
	}
	id := s.watchID
	s.watchID++
	s.watchers[id] = fn

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

func (s *State[T]) changed(v T) {
	s.watchMu.Lock()
	fns := make([]func(T), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
	s.readers.markAll(s.marker)
}

// Subscribe makes writes mark fiber dirty
func (s *State[T]) Subscribe(fiber *scheduler.Fiber) { s.readers.add(fiber) }

// Unsubscribe undoes Subscribe
func (s *State[T]) Unsubscribe(fiber *scheduler.Fiber) { s.readers.remove(fiber) }

// Subscribers returns the number of subscribed fibers
func (s *State[T]) Subscribers() int { return s.readers.len() }

// Computed memoizes a derived value until Invalidate. compute runs without
// the Computed's lock held, so it may take locks held by whoever invalidates.
type Computed[T any] struct {
	compute func() T
	marker  Marker
	readers subscribers

	mu    sync.Mutex
	value T
	valid bool
	gen   uint64 // bumped by Invalidate; a stale compute is not stored
}

// NewComputed returns an empty Computed; the first Get runs compute
func NewComputed[T any](compute func() T, m Marker) *Computed[T] {
	return &Computed[T]{compute: compute, marker: m}
}

// Get returns the memoized value, computing it when invalid. The fiber being
// rendered is subscribed.
func (c *Computed[T]) Get() T {
	c.readers.add(CurrentFiber())

	c.mu.Lock()
	if c.valid {
		defer c.mu.Unlock()
		return c.value
	}
	gen := c.gen
	c.mu.Unlock()

	v := c.compute()

	c.mu.Lock()
	if c.gen == gen {
		c.value, c.valid = v, true
	}
	c.mu.Unlock()
	return v
}

// Invalidate drops the memoized value and marks readers dirty
func (c *Computed[T]) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.gen++
	c.mu.Unlock()
	c.readers.markAll(c.marker)
}

// Unsubscribe stops marking fiber on Invalidate
func (c *Computed[T]) Unsubscribe(fiber *scheduler.Fiber) { c.readers.remove(fiber) }

// DependsOn invalidates c whenever s is written. The returned func detaches it.
func DependsOn[T, U any](c *Computed[T], s *State[U]) (cancel func()) {
	return s.Watch(func(U) { c.Invalidate() })
}
