// Package reactive holds observable values. Reading a State inside a fiber
// render subscribes the fiber; writing it marks every subscriber dirty.
package reactive

import (
	"sync"
	"sync/atomic"

	"github.com/recera/pactrend/pkg/scheduler"
)

// Marker queues fibers for rendering. *scheduler.Scheduler is one.
type Marker interface {
	MarkDirty(fiber *scheduler.Fiber)
}

// rendering is the fiber whose render is running, if any
var rendering atomic.Pointer[scheduler.Fiber]

// SetCurrentFiber records the fiber being rendered; nil ends the render
func SetCurrentFiber(fiber *scheduler.Fiber) {
	rendering.Store(fiber)
}

// CurrentFiber returns the fiber being rendered, nil outside renders
func CurrentFiber() *scheduler.Fiber {
	return rendering.Load()
}

// Track makes reads during the scheduler's renders subscribe the fiber
func Track(s *scheduler.Scheduler) {
	s.SetRenderHook(SetCurrentFiber)
}

// subscribers is the set of fibers that read a value
type subscribers struct {
	mu     sync.Mutex
	fibers map[uint32]*scheduler.Fiber
}

func (s *subscribers) add(f *scheduler.Fiber) {
	if f == nil {
		return
	}
	s.mu.Lock()
	if s.fibers == nil {
		s.fibers = make(map[uint32]*scheduler.Fiber)
	}
	s.fibers[f.ID()] = f
	s.mu.Unlock()
}

func (s *subscribers) remove(f *scheduler.Fiber) {
	if f == nil {
		return
	}
	s.mu.Lock()
	delete(s.fibers, f.ID())
	s.mu.Unlock()
}

func (s *subscribers) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fibers)
}

// markAll marks every subscriber, outside the lock since MarkDirty may
// re-enter
func (s *subscribers) markAll(m Marker) {
	s.mu.Lock()
	fibers := make([]*scheduler.Fiber, 0, len(s.fibers))
	for _, f := range s.fibers {
		fibers = append(fibers, f)
	}
	s.mu.Unlock()

	for _, f := range fibers {
		mark(m, f)
	}
}

type pending struct {
	marker Marker
	fiber  *scheduler.Fiber
}

// batch collects marks until RunBatch returns
type batch struct {
	mu    sync.Mutex
	marks map[pending]struct{}
}

var activeBatch atomic.Pointer[batch]

// RunBatch runs fn with dirty marks held back until it returns, so a
// sample replacement and the transform re-clamp reach the renderer as one
// repaint. Each held mark goes to the Marker that raised it, once.
func RunBatch(fn func()) {
	b := &batch{marks: make(map[pending]struct{})}
	outer := activeBatch.Swap(b)
	defer func() {
		activeBatch.Store(outer)
		b.mu.Lock()
		marks := b.marks
		b.marks = nil
		b.mu.Unlock()
		for p := range marks {
			mark(p.marker, p.fiber)
		}
	}()
	fn()
}

func mark(m Marker, f *scheduler.Fiber) {
	if m == nil {
		return
	}
	if b := activeBatch.Load(); b != nil {
		b.mu.Lock()
		if b.marks != nil {
			b.marks[pending{m, f}] = struct{}{}
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()
	}
	m.MarkDirty(f)
}
