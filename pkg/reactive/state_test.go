package reactive

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/recera/pactrend/pkg/scheduler"
	"github.com/recera/pactrend/pkg/vango/vdom"
)

func TestState_GetSet(t *testing.T) {
	sched := scheduler.NewScheduler()
	state := NewState(42, sched)

	if got := state.Get(); got != 42 {
		t.Errorf("Expected initial value 42, got %d", got)
	}

	state.Set(100)
	if got := state.Get(); got != 100 {
		t.Errorf("Expected value 100 after Set, got %d", got)
	}
}

func TestState_DependencyTracking(t *testing.T) {
	sched := scheduler.NewScheduler()
	Track(sched)
	state := NewState("08:00", sched)

	var renderCount atomic.Int32
	fiber := sched.CreateFiber(func() *vdom.VNode {
		renderCount.Add(1)
		return vdom.NewText(state.Get())
	}, nil)

	sched.MarkDirty(fiber)
	sched.Flush()

	if renderCount.Load() != 1 {
		t.Errorf("Expected 1 initial render, got %d", renderCount.Load())
	}
	if state.Subscribers() != 1 {
		t.Fatalf("render did not subscribe the fiber, deps = %d", state.Subscribers())
	}
	if CurrentFiber() != nil {
		t.Error("current fiber leaked past the render")
	}

	state.Set("08:05")
	sched.Flush()

	if renderCount.Load() != 2 {
		t.Errorf("Expected 2 renders after state update, got %d", renderCount.Load())
	}
	if got := fiber.VNode().Text; got != "08:05" {
		t.Errorf("fiber tree text = %q", got)
	}
}

func TestState_PeekDoesNotSubscribe(t *testing.T) {
	state := NewState(1, nil)
	fiber := &scheduler.Fiber{}

	SetCurrentFiber(fiber)
	_ = state.Peek()
	SetCurrentFiber(nil)

	if state.Subscribers() != 0 {
		t.Errorf("Peek subscribed the current fiber")
	}
}

func TestState_Update(t *testing.T) {
	state := NewState(10, nil)

	state.Update(func(v int) int {
		return v * 2
	})

	if got := state.Get(); got != 20 {
		t.Errorf("Expected value 20 after Update, got %d", got)
	}
}

func TestState_Watch(t *testing.T) {
	state := NewState(0, nil)

	var seen []int
	cancel := state.Watch(func(v int) { seen = append(seen, v) })

	state.Set(1)
	state.Update(func(v int) int { return v + 1 })
	cancel()
	state.Set(9)

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("watcher saw %v, want [1 2]", seen)
	}
}

func TestState_ConcurrentAccess(t *testing.T) {
	sched := scheduler.NewScheduler()
	state := NewState(0, sched)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(val int) {
			defer wg.Done()
			state.Set(val)
		}(i)
		go func() {
			defer wg.Done()
			_ = state.Get()
		}()
	}
	wg.Wait()
}

func TestComputed_InvalidatedByState(t *testing.T) {
	count := NewState(5, nil)
	double := NewComputed(func() int {
		return count.Peek() * 2
	}, nil)
	cancel := DependsOn(double, count)
	defer cancel()

	if got := double.Get(); got != 10 {
		t.Errorf("Expected computed value 10, got %d", got)
	}

	count.Set(7)
	if got := double.Get(); got != 14 {
		t.Errorf("Expected computed value 14 after update, got %d", got)
	}
}

func TestComputed_Memoization(t *testing.T) {
	var computeCount atomic.Int32
	expensive := NewComputed(func() int {
		computeCount.Add(1)
		return 42
	}, nil)

	_ = expensive.Get()
	_ = expensive.Get()
	if computeCount.Load() != 1 {
		t.Errorf("Expected 1 computation (memoized), got %d", computeCount.Load())
	}

	expensive.Invalidate()
	_ = expensive.Get()
	if computeCount.Load() != 2 {
		t.Errorf("Expected 2 computations after invalidation, got %d", computeCount.Load())
	}
}

func TestComputed_StaleComputeNotStored(t *testing.T) {
	var calls atomic.Int32
	var c *Computed[int]
	c = NewComputed(func() int {
		n := calls.Add(1)
		if n == 1 {
			// A write lands while the first value is being computed.
			c.Invalidate()
		}
		return int(n)
	}, nil)

	if got := c.Get(); got != 1 {
		t.Errorf("first Get = %d, want 1", got)
	}
	if got := c.Get(); got != 2 {
		t.Errorf("second Get = %d, want a fresh compute", got)
	}
	if got := c.Get(); got != 2 {
		t.Errorf("third Get = %d, want the memoized 2", got)
	}
}

func TestComputed_MarksReadersDirty(t *testing.T) {
	sched := scheduler.NewScheduler()
	Track(sched)

	base := NewState(1, sched)
	plus := NewComputed(func() int { return base.Peek() + 1 }, sched)
	DependsOn(plus, base)

	var renders atomic.Int32
	fiber := sched.CreateFiber(func() *vdom.VNode {
		renders.Add(1)
		_ = plus.Get()
		return nil
	}, nil)
	sched.MarkDirty(fiber)
	sched.Flush()

	base.Set(2)
	sched.Flush()
	if renders.Load() != 2 {
		t.Errorf("Expected 2 renders, got %d", renders.Load())
	}
}

// countingMarker counts MarkDirty calls per fiber
type countingMarker struct {
	mu    sync.Mutex
	marks map[uint32]int
}

func (m *countingMarker) MarkDirty(fiber *scheduler.Fiber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.marks == nil {
		m.marks = make(map[uint32]int)
	}
	m.marks[fiber.ID()]++
}

func (m *countingMarker) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.marks {
		n += c
	}
	return n
}

func TestRunBatch(t *testing.T) {
	sched := scheduler.NewScheduler()
	fiber := sched.CreateFiber(func() *vdom.VNode { return nil }, nil)

	marker := &countingMarker{}
	samples := NewState(1, marker)
	view := NewState(2, marker)
	samples.Subscribe(fiber)
	view.Subscribe(fiber)

	samples.Set(10)
	view.Set(20)
	if got := marker.total(); got != 2 {
		t.Errorf("Expected 2 marks without batch, got %d", got)
	}

	marker.marks = nil
	RunBatch(func() {
		samples.Set(100)
		view.Set(200)
		RunBatch(func() { view.Set(300) })
		if got := marker.total(); got != 0 {
			t.Errorf("MarkDirty called %d times inside batch", got)
		}
	})
	if got := marker.total(); got != 1 {
		t.Errorf("Expected 1 mark after batch, got %d", got)
	}
}

func TestRunBatch_MarksReachTheirOwnMarker(t *testing.T) {
	sched := scheduler.NewScheduler()
	fiber := sched.CreateFiber(func() *vdom.VNode { return nil }, nil)

	a, b := &countingMarker{}, &countingMarker{}
	left, right := NewState(0, a), NewState(0, b)
	left.Subscribe(fiber)
	right.Subscribe(fiber)

	RunBatch(func() {
		left.Set(1)
		right.Set(1)
	})
	if a.total() != 1 || b.total() != 1 {
		t.Errorf("marks = %d and %d, want one each", a.total(), b.total())
	}
}

func TestSignal_NilFiber(t *testing.T) {
	state := NewState(42, nil)

	// Should not panic with nil fiber
	state.Subscribe(nil)
	state.Unsubscribe(nil)

	SetCurrentFiber(nil)
	if val := state.Get(); val != 42 {
		t.Errorf("Expected value 42, got %d", val)
	}
}

func BenchmarkState_Set(b *testing.B) {
	state := NewState(0, scheduler.NewScheduler())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		state.Set(i)
	}
}
