package scheduler

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/recera/pactrend/pkg/vango/vdom"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 1s")
}

func TestScheduler_CreateFiber(t *testing.T) {
	sched := NewScheduler()

	renderCalled := false
	fiber := sched.CreateFiber(func() *vdom.VNode {
		renderCalled = true
		return vdom.NewText("test")
	}, nil)

	if fiber.ID() == 0 {
		t.Error("fiber ids start at 1")
	}
	if renderCalled {
		t.Error("render ran during creation")
	}
	if fiber.VNode() != nil {
		t.Error("tree before the first render")
	}
	if sched.FiberCount() != 1 {
		t.Errorf("FiberCount() = %d, want 1", sched.FiberCount())
	}
}

func TestScheduler_LoopRendersDirtyFibers(t *testing.T) {
	sched := NewScheduler()

	var renders, patches atomic.Int32
	label := atomic.Value{}
	label.Store("08:00")

	fiber := sched.CreateFiber(func() *vdom.VNode {
		renders.Add(1)
		return vdom.NewElement("text", nil, vdom.NewText(label.Load().(string)))
	}, func(_ *Fiber, p []vdom.Patch) {
		patches.Add(int32(len(p)))
	})

	sched.Start()
	defer sched.Stop()

	sched.MarkDirty(fiber)
	waitFor(t, func() bool { return renders.Load() == 1 })
	// First render replaces the empty root.
	waitFor(t, func() bool { return patches.Load() == 1 })

	label.Store("08:05")
	sched.MarkDirty(fiber)
	waitFor(t, func() bool { return patches.Load() == 2 })

	if got := fiber.VNode().Kids[0].Text; got != "08:05" {
		t.Errorf("fiber tree = %q, want 08:05", got)
	}
}

func TestScheduler_PatchesReachOwnSink(t *testing.T) {
	sched := NewScheduler()

	var mu sync.Mutex
	got := map[uint32]int{}
	sink := func(f *Fiber, patches []vdom.Patch) {
		mu.Lock()
		got[f.ID()] += len(patches)
		mu.Unlock()
	}

	a := sched.CreateFiber(func() *vdom.VNode { return vdom.NewText("a") }, sink)
	b := sched.CreateFiber(func() *vdom.VNode { return vdom.NewText("b") }, sink)
	silent := sched.CreateFiber(func() *vdom.VNode { return vdom.NewText("c") }, nil)

	sched.MarkDirty(a)
	sched.MarkDirty(b)
	sched.MarkDirty(silent)
	if n := sched.Flush(); n != 3 {
		t.Fatalf("Flush rendered %d fibers, want 3", n)
	}

	// Same tree again: nothing to send.
	sched.MarkDirty(b)
	sched.Flush()

	mu.Lock()
	defer mu.Unlock()
	if got[a.ID()] != 1 || got[b.ID()] != 1 {
		t.Errorf("patch counts = %v, want one each for a and b", got)
	}
	if _, ok := got[silent.ID()]; ok {
		t.Error("fiber without sink reached another sink")
	}
	if silent.VNode() == nil {
		t.Error("fiber without sink still keeps its tree")
	}
}

func TestScheduler_MarksCoalesce(t *testing.T) {
	sched := NewScheduler()

	var renders atomic.Int32
	fiber := sched.CreateFiber(func() *vdom.VNode {
		renders.Add(1)
		return nil
	}, nil)

	for i := 0; i < 5; i++ {
		sched.MarkDirty(fiber)
	}
	if n := sched.Flush(); n != 1 {
		t.Errorf("Flush rendered %d times, want 1", n)
	}
	if renders.Load() != 1 {
		t.Errorf("render ran %d times", renders.Load())
	}
}

func TestScheduler_RenderHook(t *testing.T) {
	sched := NewScheduler()

	var seen []*Fiber
	sched.SetRenderHook(func(f *Fiber) { seen = append(seen, f) })

	fiber := sched.CreateFiber(func() *vdom.VNode { return vdom.NewText("x") }, nil)
	sched.MarkDirty(fiber)
	sched.Flush()

	if len(seen) != 2 || seen[0] != fiber || seen[1] != nil {
		t.Errorf("render hook calls = %v, want [fiber nil]", seen)
	}
}

func TestScheduler_PanickingRender(t *testing.T) {
	tests := []struct {
		name       string
		handler    ErrorHandler
		wantFibers int
	}{
		{"no handler removes", nil, 0},
		{"handler keeps", func(*Fiber, interface{}) bool { return true }, 1},
		{"handler removes", func(*Fiber, interface{}) bool { return false }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := NewScheduler()
			var msg string
			if tt.handler != nil {
				h := tt.handler
				sched.SetDefaultErrorHandler(func(f *Fiber, err interface{}) bool {
					msg, _ = err.(string)
					return h(f, err)
				})
			}

			fiber := sched.CreateFiber(func() *vdom.VNode { panic("bad scene") }, nil)
			sched.MarkDirty(fiber)
			if n := sched.Flush(); n != 0 {
				t.Errorf("a panicking render counted as rendered")
			}
			if sched.FiberCount() != tt.wantFibers {
				t.Errorf("FiberCount() = %d, want %d", sched.FiberCount(), tt.wantFibers)
			}
			if tt.handler != nil && !strings.Contains(msg, "bad scene") {
				t.Errorf("handler got %q", msg)
			}
		})
	}
}

func TestScheduler_ConcurrentMarkDirty(t *testing.T) {
	sched := NewScheduler()

	var renders atomic.Int32
	fiber := sched.CreateFiber(func() *vdom.VNode {
		renders.Add(1)
		return vdom.NewText("concurrent")
	}, nil)

	sched.Start()
	defer sched.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.MarkDirty(fiber)
		}()
	}
	wg.Wait()

	waitFor(t, func() bool { return renders.Load() > 0 })
}

func TestScheduler_RemoveFiber(t *testing.T) {
	sched := NewScheduler()

	removed := sched.CreateFiber(func() *vdom.VNode { return nil }, nil)
	kept := sched.CreateFiber(func() *vdom.VNode { return nil }, nil)

	sched.MarkDirty(removed)
	sched.RemoveFiber(removed)
	if sched.FiberCount() != 1 {
		t.Errorf("FiberCount() = %d, want 1", sched.FiberCount())
	}

	// The queued render of a removed fiber is skipped.
	sched.MarkDirty(kept)
	if n := sched.Flush(); n != 1 {
		t.Errorf("Flush rendered %d fibers, want only the kept one", n)
	}
}

func TestScheduler_StopStart(t *testing.T) {
	sched := NewScheduler()
	if sched.IsRunning() {
		t.Error("running before Start")
	}

	sched.Start()
	sched.Start()
	if !sched.IsRunning() {
		t.Error("not running after Start")
	}
	sched.Stop()
	sched.Stop()
	if sched.IsRunning() {
		t.Error("running after Stop")
	}

	var renders atomic.Int32
	fiber := sched.CreateFiber(func() *vdom.VNode {
		renders.Add(1)
		return nil
	}, nil)

	sched.MarkDirty(fiber)
	time.Sleep(20 * time.Millisecond)
	if renders.Load() != 0 {
		t.Error("rendered while stopped")
	}

	// Work queued while stopped runs once the loop restarts.
	sched.Start()
	defer sched.Stop()
	waitFor(t, func() bool { return renders.Load() == 1 })
}

func TestScheduler_NilFiber(t *testing.T) {
	sched := NewScheduler()
	sched.MarkDirty(nil)
	sched.RemoveFiber(nil)
}

func BenchmarkScheduler_MarkDirty(b *testing.B) {
	sched := NewScheduler()
	fiber := sched.CreateFiber(func() *vdom.VNode {
		return vdom.NewText("bench")
	}, nil)

	sched.Start()
	defer sched.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sched.MarkDirty(fiber)
	}
}
