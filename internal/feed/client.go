// Package feed fetches machine histories from the upstream API and fans
// fresh batches out to live charts.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recera/pactrend/internal/config"
	"github.com/recera/pactrend/pkg/trend/series"
)

var (
	// ErrNotFound is returned for unknown machines
	ErrNotFound = errors.New("feed: not found")
	// ErrUnknownMetric is returned for metrics other than speed and oee
	ErrUnknownMetric = errors.New("feed: unknown metric")
)

const maxBody = 32 << 20

// Machine is one entry of the machine list
type Machine struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Line string `json:"line,omitempty"`
}

// StatusError carries an unexpected upstream status
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feed: %s returned %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// Client talks to the machine history API
type Client struct {
	base  *url.URL
	api   config.APIConfig
	http  *http.Client
	token string
}

// NewClient builds a client for cfg. The bearer token, if any, is read from
// the environment variable cfg.TokenEnv.
func NewClient(cfg config.APIConfig, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("feed: base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{base: base, api: cfg, http: httpClient}
	if cfg.TokenEnv != "" {
		c.token = os.Getenv(cfg.TokenEnv)
	}
	return c, nil
}

// FetchMachines lists the machines the API knows about, sorted by id
func (c *Client) FetchMachines(ctx context.Context) ([]Machine, error) {
	var machines []Machine
	if err := c.get(ctx, c.api.MachinesPath, &machines); err != nil {
		return nil, err
	}
	sort.SliceStable(machines, func(i, j int) bool { return lessID(machines[i].ID, machines[j].ID) })
	return machines, nil
}

// FetchSpeedHistory returns the speed history of a machine in time order
func (c *Client) FetchSpeedHistory(ctx context.Context, machineID string) ([]series.Sample, error) {
	return c.history(ctx, c.api.SpeedPath, machineID)
}

// FetchOeeHistory returns the OEE history of a machine in time order
func (c *Client) FetchOeeHistory(ctx context.Context, machineID string) ([]series.Sample, error) {
	return c.history(ctx, c.api.OEEPath, machineID)
}

// FetchHistory dispatches on the metric name
func (c *Client) FetchHistory(ctx context.Context, machineID, metric string) ([]series.Sample, error) {
	switch metric {
	case config.MetricSpeed:
		return c.FetchSpeedHistory(ctx, machineID)
	case config.MetricOEE:
		return c.FetchOeeHistory(ctx, machineID)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
}

// FetchAll fetches both histories of a machine concurrently
func (c *Client) FetchAll(ctx context.Context, machineID string) (speed, oee []series.Sample, err error) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		speed, err = c.FetchSpeedHistory(ctx, machineID)
		return err
	})
	g.Go(func() error {
		var err error
		oee, err = c.FetchOeeHistory(ctx, machineID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return speed, oee, nil
}

func (c *Client) history(ctx context.Context, pathTemplate, machineID string) ([]series.Sample, error) {
	if machineID == "" {
		return nil, fmt.Errorf("%w: empty machine id", ErrNotFound)
	}
	path := strings.ReplaceAll(pathTemplate, "{id}", url.PathEscape(machineID))

	var rows []row
	if err := c.get(ctx, path, &rows); err != nil {
		return nil, err
	}
	samples := make([]series.Sample, 0, len(rows))
	for _, r := range rows {
		samples = append(samples, series.Sample{Timestamp: r.Timestamp.Time, Value: r.Value})
	}
	if !series.Ordered(samples) {
		sort.SliceStable(samples, func(i, j int) bool {
			return samples[i].Timestamp.Before(samples[j].Timestamp)
		})
	}
	return samples, nil
}

func (c *Client) get(ctx context.Context, path string, into any) error {
	u := c.base.JoinPath(strings.Split(strings.TrimPrefix(path, "/"), "/")...)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("feed: GET %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{URL: u.Redacted(), Status: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(into); err != nil {
		return fmt.Errorf("feed: decode %s: %w", path, err)
	}
	return nil
}

// row is one history point as served by the API
type row struct {
	Timestamp timestamp `json:"timestamp"`
	Value     float64   `json:"value"`
}

// timestamp accepts RFC 3339 strings or Unix milliseconds
type timestamp struct{ time.Time }

func (t *timestamp) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", b, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

// lessID orders numeric ids numerically and everything else lexically
func lessID(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}
