// Package scheduler re-renders dirty fibers on a single loop goroutine,
// diffs each result against the previous tree and hands the patches to the
// fiber's sink. Every live chart session owns one fiber.
package scheduler

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/recera/pactrend/pkg/vango/vdom"
)

// RenderFunc builds the tree of one fiber
type RenderFunc func() *vdom.VNode

// PatchSink receives the patches produced by one render of a fiber
type PatchSink func(fiber *Fiber, patches []vdom.Patch)

// ErrorHandler is called with the panic message of a failed render.
// Returning false removes the fiber.
type ErrorHandler func(fiber *Fiber, err interface{}) bool

// Fiber is one render function with the tree it last produced
type Fiber struct {
	id     uint32
	render RenderFunc
	sink   PatchSink
	dirty  atomic.Bool

	mu    sync.Mutex
	vnode *vdom.VNode
}

// ID returns the fiber's unique ID
func (f *Fiber) ID() uint32 { return f.id }

// VNode returns the last rendered tree, nil before the first render
func (f *Fiber) VNode() *vdom.VNode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vnode
}

// debugLog is installed by the CLI at debug level
var debugLog func(args ...interface{})

// SetDebugLog sets the debug logging function
func SetDebugLog(fn func(args ...interface{})) {
	debugLog = fn
}

// wakeQueue is the capacity of the dirty queue. Marks beyond it are dropped
// while the fiber is already queued, so it only bounds distinct fibers.
const wakeQueue = 1024

// Scheduler owns a set of fibers and renders the dirty ones
type Scheduler struct {
	mu     sync.Mutex
	fibers map[uint32]*Fiber
	nextID uint32

	wake    chan *Fiber
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	onError    ErrorHandler
	renderHook func(*Fiber)
}

// NewScheduler returns a stopped scheduler. Flush renders without the loop.
func NewScheduler() *Scheduler {
	return &Scheduler{
		fibers: make(map[uint32]*Fiber),
		nextID: 1,
		wake:   make(chan *Fiber, wakeQueue),
	}
}

// SetDefaultErrorHandler sets what happens when a render panics. Without
// one the fiber is removed.
func (s *Scheduler) SetDefaultErrorHandler(handler ErrorHandler) {
	s.onError = handler
}

// SetRenderHook installs fn to be called with the fiber before each render and
// with nil afterwards. Dependency tracking uses it to learn which fiber is
// reading state.
func (s *Scheduler) SetRenderHook(fn func(*Fiber)) {
	s.renderHook = fn
}

// CreateFiber registers render; its patches go to sink, which may be nil
// when only the rendered tree matters
func (s *Scheduler) CreateFiber(render RenderFunc, sink PatchSink) *Fiber {
	s.mu.Lock()
	defer s.mu.Unlock()

	fiber := &Fiber{id: s.nextID, render: render, sink: sink}
	s.nextID++
	s.fibers[fiber.id] = fiber
	return fiber
}

// RemoveFiber unregisters a fiber. A queued render of it is skipped.
func (s *Scheduler) RemoveFiber(fiber *Fiber) {
	if fiber == nil {
		return
	}
	s.mu.Lock()
	delete(s.fibers, fiber.id)
	s.mu.Unlock()
}

func (s *Scheduler) registered(fiber *Fiber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fibers[fiber.id] == fiber
}

// FiberCount returns the number of registered fibers
func (s *Scheduler) FiberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fibers)
}

// MarkDirty queues a fiber for rendering. Marks on a fiber that is already
// queued coalesce into one render.
func (s *Scheduler) MarkDirty(fiber *Fiber) {
	if fiber == nil {
		return
	}
	if !fiber.dirty.CompareAndSwap(false, true) {
		return
	}
	select {
	case s.wake <- fiber:
	default:
		fiber.dirty.Store(false)
		if debugLog != nil {
			debugLog("[Scheduler] Queue full, dropped fiber", fiber.ID())
		}
	}
}

// Start begins the render loop
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go s.loop(stop, done)
}

// Stop stops the render loop and waits for it to exit. Queued fibers stay
// queued for the next Start or Flush.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// IsRunning reports whether the loop is running
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case fiber := <-s.wake:
			n := 1
			s.render(fiber)
			// Drain what queued up meanwhile before blocking again.
			n += s.Flush()
			if debugLog != nil {
				debugLog("[Scheduler] Rendered", n, "fibers")
			}
		}
	}
}

// Flush synchronously renders every queued fiber and returns how many
// rendered. It is meant for callers that do not run the loop.
func (s *Scheduler) Flush() int {
	n := 0
	for {
		select {
		case f := <-s.wake:
			if s.render(f) {
				n++
			}
		default:
			return n
		}
	}
}

// render runs one fiber, diffs the result and sends the patches
func (s *Scheduler) render(fiber *Fiber) (ok bool) {
	if !fiber.dirty.CompareAndSwap(true, false) || !s.registered(fiber) {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			s.fail(fiber, r)
			ok = false
		}
	}()

	if s.renderHook != nil {
		s.renderHook(fiber)
		defer s.renderHook(nil)
	}

	next := fiber.render()

	fiber.mu.Lock()
	patches := vdom.Diff(fiber.vnode, next)
	fiber.vnode = next
	fiber.mu.Unlock()

	if len(patches) > 0 && fiber.sink != nil {
		fiber.sink(fiber, patches)
	}
	return true
}

func (s *Scheduler) fail(fiber *Fiber, r interface{}) {
	msg := fmt.Sprintf("fiber %d panic: %v\n%s", fiber.id, r, debug.Stack())
	if s.onError == nil || !s.onError(fiber, msg) {
		s.RemoveFiber(fiber)
	}
}
