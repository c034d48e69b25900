package feed

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/recera/pactrend/internal/cache"
	"github.com/recera/pactrend/pkg/trend/series"
)

// Fetcher loads one history. *Client implements it.
type Fetcher interface {
	FetchHistory(ctx context.Context, machineID, metric string) ([]series.Sample, error)
}

// Hub runs one poller per (machine, metric) while someone watches it. Every
// poll delivers the whole batch to all subscribers; a failed poll keeps the
// previous batch on screen.
type Hub struct {
	fetcher Fetcher
	cache   *cache.Cache
	timeout time.Duration

	mu       sync.Mutex
	interval time.Duration
	pollers  map[string]*poller
	closed   bool
}

// NewHub creates a hub. store may be nil.
func NewHub(fetcher Fetcher, store *cache.Cache, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Hub{
		fetcher:  fetcher,
		cache:    store,
		timeout:  interval,
		interval: interval,
		pollers:  make(map[string]*poller),
	}
}

// SetInterval changes the poll period of running and future pollers
func (h *Hub) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	h.mu.Lock()
	h.interval = d
	h.timeout = d
	pollers := make([]*poller, 0, len(h.pollers))
	for _, p := range h.pollers {
		pollers = append(pollers, p)
	}
	h.mu.Unlock()

	for _, p := range pollers {
		select {
		case p.reset <- d:
		default:
		}
	}
}

// Source returns the sample source of one trend
func (h *Hub) Source(machineID, metric string) *Source {
	return &Source{hub: h, machineID: machineID, metric: metric}
}

// Pollers returns the number of running pollers
func (h *Hub) Pollers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pollers)
}

// Snapshot returns the freshest batch available: the running poller's, then
// a direct fetch, then the disk cache.
func (h *Hub) Snapshot(ctx context.Context, machineID, metric string) ([]series.Sample, error) {
	key := cache.Key(machineID, metric)

	h.mu.Lock()
	p := h.pollers[key]
	h.mu.Unlock()
	if p != nil {
		if batch, ok := p.latest(); ok {
			return batch, nil
		}
	}

	batch, err := h.fetcher.FetchHistory(ctx, machineID, metric)
	if err == nil {
		h.store(key, batch)
		return batch, nil
	}
	if h.cache != nil {
		if cached, _, ok := h.cache.GetSamples(key); ok {
			log.Printf("[Feed] %s: serving cached batch after fetch error: %v", key, err)
			return cached, nil
		}
	}
	return nil, err
}

// Close stops every poller
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	pollers := h.pollers
	h.pollers = make(map[string]*poller)
	h.mu.Unlock()

	for _, p := range pollers {
		p.stop()
	}
}

func (h *Hub) store(key string, batch []series.Sample) {
	if h.cache == nil {
		return
	}
	if err := h.cache.PutSamples(key, batch); err != nil {
		log.Printf("[Feed] %s: cache write failed: %v", key, err)
	}
}

func (h *Hub) subscribe(machineID, metric string, fn func([]series.Sample)) func() {
	key := cache.Key(machineID, metric)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	p, ok := h.pollers[key]
	if !ok {
		p = newPoller(h, key, machineID, metric, h.interval)
		h.pollers[key] = p
	}
	id := p.add(fn)
	h.mu.Unlock()

	if !ok {
		p.seed()
		go p.run()
	}
	p.replay(id)

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(key, p, id) })
	}
}

func (h *Hub) unsubscribe(key string, p *poller, id int) {
	h.mu.Lock()
	last := p.remove(id)
	if last && h.pollers[key] == p {
		delete(h.pollers, key)
	}
	h.mu.Unlock()

	if last {
		p.stop()
	}
}

// Source is the sample source of one trend. It satisfies the live package's
// SampleSource.
type Source struct {
	hub       *Hub
	machineID string
	metric    string
}

// Subscribe registers fn and replays the latest batch, if any.
func (s *Source) Subscribe(fn func([]series.Sample)) (cancel func()) {
	return s.hub.subscribe(s.machineID, s.metric, fn)
}

type poller struct {
	hub       *Hub
	key       string
	machineID string
	metric    string
	interval  time.Duration

	mu     sync.Mutex
	subs   map[int]func([]series.Sample)
	nextID int
	batch  []series.Sample
	have   bool
	// deliver serialises callbacks so subscribers see batches in order
	deliver sync.Mutex

	reset    chan time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func newPoller(h *Hub, key, machineID, metric string, interval time.Duration) *poller {
	return &poller{
		hub:       h,
		key:       key,
		machineID: machineID,
		metric:    metric,
		interval:  interval,
		subs:      make(map[int]func([]series.Sample)),
		reset:     make(chan time.Duration, 1),
		done:      make(chan struct{}),
	}
}

// add must be called with the hub lock held.
func (p *poller) add(fn func([]series.Sample)) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.subs[p.nextID] = fn
	return p.nextID
}

// remove reports whether the last subscriber left. Hub lock held.
func (p *poller) remove(id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, id)
	return len(p.subs) == 0
}

func (p *poller) latest() ([]series.Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batch, p.have
}

// seed loads the disk snapshot so new viewers see the last known history.
func (p *poller) seed() {
	if p.hub.cache == nil {
		return
	}
	batch, stored, ok := p.hub.cache.GetSamples(p.key)
	if !ok {
		return
	}
	p.mu.Lock()
	if !p.have {
		p.batch, p.have = batch, true
	}
	p.mu.Unlock()
	log.Printf("[Feed] %s: seeded %d samples cached at %s", p.key, len(batch), stored.Format(time.RFC3339))
}

func (p *poller) replay(id int) {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	fn, ok := p.subs[id]
	batch, have := p.batch, p.have
	p.mu.Unlock()
	if ok && have {
		fn(batch)
	}
}

func (p *poller) publish(batch []series.Sample) {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	p.mu.Lock()
	p.batch, p.have = batch, true
	fns := make([]func([]series.Sample), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(batch)
	}
}

func (p *poller) poll(ctx context.Context) {
	p.hub.mu.Lock()
	timeout := p.hub.timeout
	p.hub.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	batch, err := p.hub.fetcher.FetchHistory(ctx, p.machineID, p.metric)
	if err != nil {
		if !isStopped(p.done) {
			log.Printf("[Feed] %s: poll failed, keeping previous batch: %v", p.key, err)
		}
		return
	}
	p.publish(batch)
	p.hub.store(p.key, batch)
}

func (p *poller) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-p.done
		cancel()
	}()

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case d := <-p.reset:
			ticker.Reset(d)
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *poller) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

func isStopped(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
