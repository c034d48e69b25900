package live

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/recera/pactrend/pkg/components/trendchart"
	"github.com/recera/pactrend/pkg/reactive"
	"github.com/recera/pactrend/pkg/scheduler"
	"github.com/recera/pactrend/pkg/trend/series"
	"github.com/recera/pactrend/pkg/vango/vdom"
)

// SampleSource delivers sample batches. Subscribe replays the latest batch,
// if any, before returning.
type SampleSource interface {
	Subscribe(fn func([]series.Sample)) (cancel func())
}

// ChartFactory builds the chart and its data source for an upgrade request
type ChartFactory func(r *http.Request) (*trendchart.Chart, SampleSource, error)

// SchedulerBridge runs every live chart on one scheduler loop. Each chart
// fiber carries its own sink, so patches reach only the session that owns it.
type SchedulerBridge struct {
	mu        sync.Mutex
	scheduler *scheduler.Scheduler
	charts    map[string]*ChartSession
}

// NewSchedulerBridge creates a bridge with a stopped scheduler
func NewSchedulerBridge() *SchedulerBridge {
	sched := scheduler.NewScheduler()
	reactive.Track(sched)
	sched.SetDefaultErrorHandler(func(fiber *scheduler.Fiber, err interface{}) bool {
		log.Printf("[SchedulerBridge] Fiber %d error: %v", fiber.ID(), err)
		// Keep the fiber; the next event may render fine.
		return true
	})
	return &SchedulerBridge{
		scheduler: sched,
		charts:    make(map[string]*ChartSession),
	}
}

// Scheduler returns the shared scheduler
func (b *SchedulerBridge) Scheduler() *scheduler.Scheduler { return b.scheduler }

// Start starts the render loop
func (b *SchedulerBridge) Start() { b.scheduler.Start() }

// Stop stops the render loop
func (b *SchedulerBridge) Stop() { b.scheduler.Stop() }

// Factory adapts a ChartFactory into a live HandlerFactory
func (b *SchedulerBridge) Factory(newChart ChartFactory) HandlerFactory {
	return func(r *http.Request) (SessionHandler, error) {
		chart, source, err := newChart(r)
		if err != nil {
			return nil, err
		}
		return &ChartSession{bridge: b, chart: chart, source: source}, nil
	}
}

// Get returns the chart session mounted under a session id
func (b *SchedulerBridge) Get(sessionID string) (*ChartSession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs, ok := b.charts[sessionID]
	return cs, ok
}

// Count returns the number of mounted chart sessions
func (b *SchedulerBridge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.charts)
}

// Each calls fn for every mounted chart session
func (b *SchedulerBridge) Each(fn func(*ChartSession)) {
	b.mu.Lock()
	sessions := make([]*ChartSession, 0, len(b.charts))
	for _, cs := range b.charts {
		sessions = append(sessions, cs)
	}
	b.mu.Unlock()

	for _, cs := range sessions {
		fn(cs)
	}
}

// ChartSession binds one chart to one live session
type ChartSession struct {
	bridge  *SchedulerBridge
	chart   *trendchart.Chart
	source  SampleSource
	session *Session
	cancel  func()
}

// Chart returns the session's chart
func (c *ChartSession) Chart() *trendchart.Chart { return c.chart }

// Mount attaches the chart fiber and the sample subscription
func (c *ChartSession) Mount(s *Session) error {
	c.session = s
	c.chart.Mount(c.bridge.scheduler, func(_ *scheduler.Fiber, patches []vdom.Patch) {
		if err := s.SendPatches(patches); err != nil {
			log.Printf("[SchedulerBridge] Failed to send %d patches to %s: %v", len(patches), s.ID, err)
			if errors.Is(err, ErrSendBufferFull) {
				// The client missed a frame and can no longer apply diffs.
				s.Close()
			}
		}
	})
	if c.source != nil {
		c.cancel = c.source.Subscribe(c.chart.SetSamples)
	}

	c.bridge.mu.Lock()
	old := c.bridge.charts[s.ID]
	c.bridge.charts[s.ID] = c
	c.bridge.mu.Unlock()
	if old != nil && old != c {
		s.Logger().Debug("replacing chart session")
	}

	s.Logger().Info("chart mounted", "chart", c.chart.ID())
	return nil
}

// HandleEvent routes one client event to the chart
func (c *ChartSession) HandleEvent(evt *Event) error {
	switch {
	case evt.Type == EventControl:
		if !c.chart.Control(evt.Action) {
			return fmt.Errorf("unknown action %q", evt.Action)
		}
	case evt.Type == EventResize:
		if !c.chart.Resize(evt.Width, evt.Height) {
			return fmt.Errorf("rejected size %gx%g", evt.Width, evt.Height)
		}
	case evt.IsGesture():
		c.chart.Handle(evt.Gesture())
	default:
		return ErrUnknownEvent
	}
	return nil
}

// Close drops the subscription and the fiber
func (c *ChartSession) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.chart.Unmount()

	if c.session == nil {
		return
	}
	c.bridge.mu.Lock()
	if c.bridge.charts[c.session.ID] == c {
		delete(c.bridge.charts, c.session.ID)
	}
	c.bridge.mu.Unlock()
}
