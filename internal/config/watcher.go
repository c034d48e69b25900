package config

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file when it changes on disk. Editors write files
// in bursts (truncate, write, rename), so events are debounced.
type Watcher struct {
	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	mu      sync.RWMutex
	current *Config
	subs    []func(*Config)
	env     LookupFunc
}

// NewWatcher loads path and starts watching its directory. The directory is
// watched rather than the file so that atomic renames are seen.
func NewWatcher(path string, debounce time.Duration) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		watcher:  fw,
		current:  cfg,
	}, nil
}

// Current returns the last valid configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// UseEnv applies PACTREND_* overrides to the current config and to every
// reload after it
func (w *Watcher) UseEnv(lookup LookupFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg := *w.current
	cfg.Charts = cloneCharts(w.current.Charts)
	if err := cfg.ApplyEnv(lookup); err != nil {
		return err
	}
	w.current = &cfg
	w.env = lookup
	return nil
}

// OnChange registers fn to run after every successful reload
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Run processes file events until ctx is done. Invalid edits are logged and
// the previous configuration stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	debounce := time.NewTimer(0)
	<-debounce.C
	pending := false

	for {
		select {
		case <-ctx.Done():
			debounce.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			pending = true
			debounce.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Config] Watcher error: %v", err)

		case <-debounce.C:
			if pending {
				pending = false
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		// Mid-rename or deleted; wait for the next event.
		log.Printf("[Config] Cannot read %s: %v", w.path, err)
		return
	}
	cfg, err := Parse(data)
	w.mu.RLock()
	env := w.env
	w.mu.RUnlock()
	if err == nil && env != nil {
		err = cfg.ApplyEnv(env)
	}
	if err != nil {
		log.Printf("[Config] Keeping previous config, reload of %s failed: %v", w.path, err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	subs := append([]func(*Config){}, w.subs...)
	w.mu.Unlock()

	log.Printf("[Config] Reloaded %s", w.path)
	for _, fn := range subs {
		fn(cfg)
	}
}

func cloneCharts(charts map[string]ChartConfig) map[string]ChartConfig {
	out := make(map[string]ChartConfig, len(charts))
	for k, v := range charts {
		out[k] = v
	}
	return out
}
