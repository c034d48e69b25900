// Package dashboard wires the chart pages, the JSON API and the live
// endpoint onto one router.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/recera/pactrend/app/routes"
	"github.com/recera/pactrend/internal/config"
	"github.com/recera/pactrend/internal/feed"
	"github.com/recera/pactrend/pkg/components/trendchart"
	"github.com/recera/pactrend/pkg/live"
	"github.com/recera/pactrend/pkg/server"
	"github.com/recera/pactrend/pkg/trend/series"
	"github.com/recera/pactrend/pkg/vango/vdom"
)

// LivePrefix is where chart sessions connect
const LivePrefix = "/live/"

// MachineLister loads the machine list. *feed.Client implements it.
type MachineLister interface {
	FetchMachines(ctx context.Context) ([]feed.Machine, error)
}

// App serves the dashboard. The config can be swapped while serving.
type App struct {
	cfg      atomic.Pointer[config.Config]
	machines MachineLister
	hub      *feed.Hub
	bridge   *live.SchedulerBridge
	live     *live.Server
	router   *server.Router
	started  time.Time
}

// New builds the app. The bridge must be started by the caller.
func New(cfg *config.Config, machines MachineLister, hub *feed.Hub, bridge *live.SchedulerBridge, opts ...live.Option) *App {
	a := &App{
		machines: machines,
		hub:      hub,
		bridge:   bridge,
		router:   server.NewRouter(),
		started:  time.Now(),
	}
	a.cfg.Store(cfg)

	opts = append([]live.Option{
		live.WithPingInterval(cfg.Server.PingInterval),
		live.WithReadTimeout(cfg.Server.ReadTimeout),
	}, opts...)
	if len(cfg.Server.AllowedOrigins) > 0 {
		opts = append([]live.Option{live.WithCheckOrigin(checkOrigin(cfg.Server.AllowedOrigins))}, opts...)
	}
	a.live = live.NewServer(LivePrefix, bridge.Factory(a.liveChart), opts...)

	a.routes()
	return a
}

func (a *App) routes() {
	r := a.router
	r.SetLayout("/", func(child *vdom.VNode) *vdom.VNode {
		return server.InjectLiveClient(routes.Layout(child), live.ScriptPath)
	})
	r.SetNotFound(func(ctx *server.Ctx) (*vdom.VNode, error) {
		return routes.ErrorPage(http.StatusNotFound, "No page at "+ctx.Path()), nil
	})
	r.SetErrorPage(func(ctx *server.Ctx, err error) *vdom.VNode {
		return routes.ErrorPage(ctx.StatusCode(), err.Error())
	})

	r.AddRoute("/", a.index, noStore)
	r.AddRoute("/machines/[id:id]", a.machine)
	r.AddRoute("/machines/[id:id]/[metric]", a.chart, noStore)

	r.AddAPIRoute("/api/machines", a.apiMachines)
	r.AddAPIRoute("/api/machines/[id:id]/[metric]", a.apiSamples)
	r.AddAPIRoute("/healthz", a.health)

	r.Handle(LivePrefix, a.live)
	r.Handle(live.ScriptPath, live.ScriptHandler())
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler { return a.router }

// Config returns the active config
func (a *App) Config() *config.Config { return a.cfg.Load() }

// SetConfig swaps the config. New charts pick it up at once; mounted charts
// get the new renderer options, and the hub the new poll interval.
func (a *App) SetConfig(cfg *config.Config) {
	a.cfg.Store(cfg)
	a.hub.SetInterval(cfg.Poll.Interval)

	restyled := 0
	a.bridge.Each(func(cs *live.ChartSession) {
		metric, _, ok := strings.Cut(cs.Chart().ID(), "-")
		if !ok {
			return
		}
		if cc, ok := cfg.Charts[metric]; ok {
			cs.Chart().SetOptions(cc.SeriesOptions())
			restyled++
		}
	})
	log.Printf("[Dashboard] Config reloaded, poll interval %s, %d live charts updated", cfg.Poll.Interval, restyled)
}

// Shutdown closes every live session
func (a *App) Shutdown() { a.live.Shutdown() }

// Sessions returns the number of connected live sessions
func (a *App) Sessions() int { return a.live.SessionCount() }

// NewChart builds the chart of one machine trend from the active config
func (a *App) NewChart(machineID, metric string) (*trendchart.Chart, error) {
	return NewChart(a.Config(), machineID, metric)
}

// NewChart builds the chart of one machine trend from cfg
func NewChart(cfg *config.Config, machineID, metric string) (*trendchart.Chart, error) {
	cc, ok := cfg.Charts[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", feed.ErrUnknownMetric, metric)
	}
	return trendchart.New(trendchart.Options{
		ID:       ChartID(machineID, metric),
		Title:    cc.Title,
		Subtitle: "Machine " + machineID,
		Height:   cc.Height,
		Viewport: cc.ViewportConfig(),
		Series:   cc.SeriesOptions(),
	}), nil
}

// ChartID names a machine trend in markup. Metric names carry no dash.
func ChartID(machineID, metric string) string {
	return metric + "-" + machineID
}

func (a *App) metrics() []routes.Metric {
	cfg := a.Config()
	metrics := make([]routes.Metric, 0, len(cfg.Charts))
	for _, key := range cfg.Metrics() {
		metrics = append(metrics, routes.Metric{Key: key, Title: cfg.Charts[key].Title})
	}
	return metrics
}

func (a *App) index(ctx *server.Ctx) (*vdom.VNode, error) {
	machines, err := a.machines.FetchMachines(ctx.Context())
	if err != nil {
		ctx.Logger().Warn("machine list failed", "err", err)
	}
	return routes.IndexPage(routes.IndexProps{
		Machines: machines,
		Metrics:  a.metrics(),
		Err:      err,
	}), nil
}

func (a *App) machine(ctx *server.Ctx) (*vdom.VNode, error) {
	metrics := a.Config().Metrics()
	if len(metrics) == 0 {
		return nil, server.Errorf(http.StatusNotFound, "no charts configured")
	}
	ctx.Redirect(routes.ChartPath(ctx.Param("id"), metrics[0]), http.StatusFound)
	return nil, nil
}

func (a *App) chart(ctx *server.Ctx) (*vdom.VNode, error) {
	id, metric := ctx.Param("id"), ctx.Param("metric")
	chart, err := a.NewChart(id, metric)
	if err != nil {
		return nil, server.Error(http.StatusNotFound, err)
	}

	var notice string
	samples, err := a.hub.Snapshot(ctx.Context(), id, metric)
	switch {
	case errors.Is(err, feed.ErrNotFound):
		return nil, server.Errorf(http.StatusNotFound, "machine %q not found", id)
	case err != nil:
		ctx.Logger().Warn("snapshot failed", "machine", id, "metric", metric, "err", err)
		notice = "Live data is unavailable right now. The chart fills in once the feed answers."
	default:
		chart.SetSamples(samples)
	}

	sid := server.NewSessionID()
	liveURL := server.LiveURL(LivePrefix, sid, url.Values{
		"machine": {id},
		"metric":  {metric},
	})
	return routes.MachinePage(routes.MachineProps{
		MachineID: id,
		Metric:    metric,
		Metrics:   a.metrics(),
		Chart:     chart.Render(),
		LiveURL:   liveURL,
		Notice:    notice,
	}), nil
}

// liveChart is the factory behind every /live/ upgrade
func (a *App) liveChart(r *http.Request) (*trendchart.Chart, live.SampleSource, error) {
	q := r.URL.Query()
	id, metric := q.Get("machine"), q.Get("metric")
	if !server.ValidID(id) {
		return nil, nil, &live.HTTPError{Status: http.StatusBadRequest, Err: fmt.Errorf("invalid machine id %q", id)}
	}
	chart, err := a.NewChart(id, metric)
	if err != nil {
		return nil, nil, &live.HTTPError{Status: http.StatusNotFound, Err: err}
	}
	return chart, a.hub.Source(id, metric), nil
}

type machinesResponse struct {
	Machines []feed.Machine `json:"machines"`
	Metrics  []string       `json:"metrics"`
}

func (a *App) apiMachines(ctx *server.Ctx) (any, error) {
	machines, err := a.machines.FetchMachines(ctx.Context())
	if err != nil {
		return nil, server.Error(http.StatusBadGateway, err)
	}
	return machinesResponse{Machines: machines, Metrics: a.Config().Metrics()}, nil
}

type samplesResponse struct {
	Machine string          `json:"machine"`
	Metric  string          `json:"metric"`
	Count   int             `json:"count"`
	Samples []series.Sample `json:"samples"`
}

func (a *App) apiSamples(ctx *server.Ctx) (any, error) {
	id, metric := ctx.Param("id"), ctx.Param("metric")
	if _, ok := a.Config().Charts[metric]; !ok {
		return nil, server.Errorf(http.StatusNotFound, "unknown metric %q", metric)
	}
	samples, err := a.hub.Snapshot(ctx.Context(), id, metric)
	switch {
	case errors.Is(err, feed.ErrNotFound):
		return nil, server.Errorf(http.StatusNotFound, "machine %q not found", id)
	case err != nil:
		return nil, server.Error(http.StatusBadGateway, err)
	}
	if samples == nil {
		samples = []series.Sample{}
	}
	return samplesResponse{Machine: id, Metric: metric, Count: len(samples), Samples: samples}, nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Charts   int    `json:"charts"`
	Pollers  int    `json:"pollers"`
	Uptime   string `json:"uptime"`
}

func (a *App) health(ctx *server.Ctx) (any, error) {
	return healthResponse{
		Status:   "ok",
		Sessions: a.live.SessionCount(),
		Charts:   a.bridge.Count(),
		Pollers:  a.hub.Pollers(),
		Uptime:   time.Since(a.started).Round(time.Second).String(),
	}, nil
}

// noStore keeps pages that embed a session id out of shared caches
func noStore(next server.HandlerFunc) server.HandlerFunc {
	return func(ctx *server.Ctx) (*vdom.VNode, error) {
		ctx.SetHeader("Cache-Control", "no-store")
		return next(ctx)
	}
}

// checkOrigin accepts same-host requests and the listed origins
func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
