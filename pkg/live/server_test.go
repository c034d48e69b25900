package live

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recera/pactrend/pkg/components/trendchart"
	"github.com/recera/pactrend/pkg/trend/series"
	"github.com/recera/pactrend/pkg/vango/vdom"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func samples() []series.Sample {
	return []series.Sample{
		{Timestamp: epoch, Value: 0},
		{Timestamp: epoch.Add(time.Second), Value: 150},
		{Timestamp: epoch.Add(2 * time.Second), Value: 300},
	}
}

// staticSource replays one batch and counts live subscriptions.
type staticSource struct {
	mu    sync.Mutex
	batch []series.Sample
	subs  int
}

func (s *staticSource) Subscribe(fn func([]series.Sample)) func() {
	s.mu.Lock()
	s.subs++
	batch := s.batch
	s.mu.Unlock()
	if batch != nil {
		fn(batch)
	}
	return func() {
		s.mu.Lock()
		s.subs--
		s.mu.Unlock()
	}
}

func (s *staticSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs
}

type fixture struct {
	bridge *SchedulerBridge
	server *Server
	http   *httptest.Server
	source *staticSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{bridge: NewSchedulerBridge(), source: &staticSource{}}
	f.bridge.Start()

	f.server = NewServer("/live/", f.bridge.Factory(func(r *http.Request) (*trendchart.Chart, SampleSource, error) {
		if r.URL.Query().Get("machine") == "missing" {
			return nil, nil, &HTTPError{Status: http.StatusNotFound, Err: errors.New("unknown machine")}
		}
		c := trendchart.New(trendchart.Options{
			ID:     "speed-7",
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			Series: series.Options{Padding: 15, MaxValue: 300, Location: time.UTC},
		})
		// Loaded before mount so the first frame already holds the line.
		c.SetSamples(samples())
		return c, f.source, nil
	}))
	f.http = httptest.NewServer(f.server)

	t.Cleanup(func() {
		f.server.Shutdown()
		f.http.Close()
		f.bridge.Stop()
	})
	return f
}

func (f *fixture) dial(t *testing.T, sessionID string) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/live/" + sessionID + "?machine=7&metric=speed"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	return c
}

func next(t *testing.T, c *Client) *Frame {
	t.Helper()
	f, err := c.Next()
	require.NoError(t, err)
	return f
}

func TestServer_MountAndControl(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "s1")

	hello := next(t, c)
	assert.Equal(t, FrameControl, hello.Type)
	assert.Equal(t, "HELLO", hello.Control)
	assert.Equal(t, uint64(0), hello.Seq)

	mount := next(t, c)
	require.Equal(t, FramePatches, mount.Type)
	assert.Equal(t, uint64(1), mount.Seq)
	require.Len(t, mount.Patches, 1)
	assert.Equal(t, byte(vdom.OpReplaceNode), mount.Patches[0].Op)
	assert.Equal(t, "", mount.Patches[0].Path)
	assert.Contains(t, mount.Patches[0].HTML, `data-chart="speed-7"`)
	assert.Contains(t, mount.Patches[0].HTML, "M 40,185 L 300,92.5 L 560,0")

	require.NoError(t, c.Send(Event{Type: EventControl, Action: trendchart.ActionZoomIn}))
	zoom := next(t, c)
	require.Equal(t, FramePatches, zoom.Type)
	assert.Equal(t, uint64(2), zoom.Seq)

	found := false
	for _, p := range zoom.Patches {
		assert.NotEqual(t, "", p.Path, "zoom should patch inside the root")
		if strings.Contains(p.Value, "zoom 1.20x") {
			found = true
		}
	}
	assert.True(t, found, "status line should report the new scale: %+v", zoom.Patches)

	cs, ok := f.bridge.Get("s1")
	require.True(t, ok)
	assert.InDelta(t, 1.2, cs.Chart().Transform().Scale, 1e-9)
	assert.Equal(t, 1, f.source.count())
}

func TestServer_GesturesReachChart(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "s2")
	next(t, c) // HELLO
	next(t, c) // mount

	require.NoError(t, c.Send(Event{Type: EventWheel, DeltaY: -100, Modifier: true}))
	frame := next(t, c)
	assert.Equal(t, FramePatches, frame.Type)

	cs, ok := f.bridge.Get("s2")
	require.True(t, ok)
	assert.InDelta(t, 1.1, cs.Chart().Transform().Scale, 1e-9)

	// A new width repaints.
	require.NoError(t, c.Send(Event{Type: EventResize, Width: 800, Height: 200}))
	frame = next(t, c)
	assert.Equal(t, uint64(3), frame.Seq)
}

func TestServer_PingPong(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "s3")
	next(t, c)
	next(t, c)

	require.NoError(t, c.Ping())
	pong := next(t, c)
	assert.Equal(t, FrameControl, pong.Type)
	assert.Equal(t, "PONG", pong.Control)
}

func TestServer_CloseReleasesSession(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t, "s4")
	next(t, c)
	next(t, c)

	assert.Eventually(t, func() bool { return f.server.SessionCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.bridge.Count())

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool {
		return f.server.SessionCount() == 0 && f.bridge.Count() == 0 && f.source.count() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.bridge.Scheduler().FiberCount())
}

func TestServer_RejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"no session", "/live/", http.StatusBadRequest},
		{"nested path", "/live/a/b", http.StatusBadRequest},
		{"factory rejects", "/live/s5?machine=missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(f.http.URL + tt.path)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, f.server.SessionCount())
}

func TestScriptHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ScriptHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ScriptPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
	assert.Contains(t, rec.Body.String(), "data-live")
	assert.Equal(t, len(ClientScript()), rec.Body.Len())
}
