// Package cache keeps the last good sample batch of every trend on disk so a
// restarted dashboard can draw something before the first poll succeeds.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/recera/pactrend/pkg/trend/series"
)

// ErrTooLarge is returned when one snapshot exceeds the whole cache budget.
var ErrTooLarge = errors.New("cache: snapshot larger than cache")

const indexVersion = "2"

// Cache stores snapshots under dir: index.json plus one file per key.
type Cache struct {
	mu       sync.RWMutex
	dir      string
	index    *Index
	maxSize  int64
	maxAge   time.Duration
	strategy EvictionStrategy
	stopCh   chan struct{}
	stopOnce sync.Once

	totalSize int64
	evictions int64
	hits      atomic.Int64
	misses    atomic.Int64
}

// Index tracks all cached entries
type Index struct {
	Version string            `json:"version"`
	Entries map[string]*Entry `json:"entries"`
	Updated time.Time         `json:"updated"`
}

// Entry describes one stored snapshot
type Entry struct {
	Key         string    `json:"key"`
	Hash        string    `json:"hash"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	Samples     int       `json:"samples"`
	Created     time.Time `json:"created"`
	LastAccess  time.Time `json:"last_access"`
	AccessCount int       `json:"access_count"`
}

// Stats is a point-in-time view of cache usage
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	TotalSize  int64 `json:"total_size"`
	EntryCount int   `json:"entry_count"`
}

// EvictionStrategy defines how entries are removed when the cache is full
type EvictionStrategy int

const (
	// LRU removes least recently used entries
	LRU EvictionStrategy = iota
	// LFU removes least frequently used entries
	LFU
	// FIFO removes oldest entries first
	FIFO
)

// ParseStrategy maps "lru", "lfu" and "fifo" to a strategy.
func ParseStrategy(s string) (EvictionStrategy, error) {
	switch strings.ToLower(s) {
	case "", "lru":
		return LRU, nil
	case "lfu":
		return LFU, nil
	case "fifo":
		return FIFO, nil
	}
	return LRU, fmt.Errorf("cache: unknown eviction strategy %q", s)
}

func (s EvictionStrategy) String() string {
	switch s {
	case LFU:
		return "lfu"
	case FIFO:
		return "fifo"
	default:
		return "lru"
	}
}

// Config holds cache configuration
type Config struct {
	Dir      string           // Cache directory (default: $HOME/.cache/pactrend)
	MaxSize  int64            // Maximum cache size in bytes (default: 64 MB, <= 0 unlimited)
	MaxAge   time.Duration    // Maximum snapshot age (default: 24h, <= 0 never expires)
	Strategy EvictionStrategy // Eviction strategy (default: LRU)
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	homeDir, _ := os.UserHomeDir()
	return Config{
		Dir:      filepath.Join(homeDir, ".cache", "pactrend"),
		MaxSize:  64 << 20,
		MaxAge:   24 * time.Hour,
		Strategy: LRU,
	}
}

// New opens (or creates) a cache directory. A missing or corrupt index
// starts an empty cache.
func New(config Config) (*Cache, error) {
	if config.Dir == "" {
		config.Dir = DefaultConfig().Dir
	}

	if err := os.MkdirAll(filepath.Join(config.Dir, "snapshots"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		dir:      config.Dir,
		maxSize:  config.MaxSize,
		maxAge:   config.MaxAge,
		strategy: config.Strategy,
		stopCh:   make(chan struct{}),
		index:    newIndex(),
	}

	if err := c.loadIndex(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[Cache] Ignoring unreadable index in %s: %v", c.dir, err)
		c.index = newIndex()
		c.totalSize = 0
	}

	go c.cleanup(time.Hour)

	return c, nil
}

func newIndex() *Index {
	return &Index{
		Version: indexVersion,
		Entries: make(map[string]*Entry),
		Updated: time.Now(),
	}
}

// Key names the snapshot of one metric on one machine.
func Key(machineID, metric string) string {
	return machineID + "/" + metric
}

// Get returns the raw snapshot stored under key.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, exists := c.index.Entries[key]
	var expired bool
	var path string
	if exists {
		expired = c.isExpired(entry)
		path = entry.Path
	}
	c.mu.RUnlock()

	if !exists {
		c.misses.Add(1)
		return nil, false
	}

	if expired {
		c.drop(key, entry)
		c.misses.Add(1)
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		c.drop(key, entry)
		c.misses.Add(1)
		return nil, false
	}

	c.mu.Lock()
	entry.LastAccess = time.Now()
	entry.AccessCount++
	c.mu.Unlock()

	c.hits.Add(1)
	return data, true
}

// Put stores data under key, evicting other entries if needed.
func (c *Cache) Put(key string, data []byte) error {
	return c.put(key, data, 0)
}

func (c *Cache) put(key string, data []byte, samples int) error {
	hash := hashOf(data)
	size := int64(len(data))

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.index.Entries[key]; ok && existing.Hash == hash {
		existing.Created = time.Now()
		return c.saveIndexLocked()
	}
	if c.maxSize > 0 && size > c.maxSize {
		return ErrTooLarge
	}

	if old, ok := c.index.Entries[key]; ok {
		c.removeLocked(key, old)
	}
	c.ensureSpaceLocked(size)

	path := filepath.Join(c.dir, "snapshots", fmt.Sprintf("%s_%s.json", sanitizeKey(key), hash[:8]))
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	now := time.Now()
	c.index.Entries[key] = &Entry{
		Key:        key,
		Hash:       hash,
		Path:       path,
		Size:       size,
		Samples:    samples,
		Created:    now,
		LastAccess: now,
	}
	c.totalSize += size
	return c.saveIndexLocked()
}

// snapshot is the on-disk form of a sample batch.
type snapshot struct {
	Samples []sampleJSON `json:"samples"`
}

type sampleJSON struct {
	Timestamp time.Time `json:"t"`
	Value     float64   `json:"v"`
}

// PutSamples stores a sample batch under key.
func (c *Cache) PutSamples(key string, samples []series.Sample) error {
	snap := snapshot{Samples: make([]sampleJSON, len(samples))}
	for i, s := range samples {
		snap.Samples[i] = sampleJSON{Timestamp: s.Timestamp, Value: s.Value}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.put(key, data, len(samples))
}

// GetSamples returns the batch stored under key and when it was stored.
func (c *Cache) GetSamples(key string) ([]series.Sample, time.Time, bool) {
	data, ok := c.Get(key)
	if !ok {
		return nil, time.Time{}, false
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[Cache] Dropping corrupt snapshot %s: %v", key, err)
		c.Delete(key)
		return nil, time.Time{}, false
	}

	c.mu.RLock()
	var created time.Time
	if e, ok := c.index.Entries[key]; ok {
		created = e.Created
	}
	c.mu.RUnlock()

	samples := make([]series.Sample, len(snap.Samples))
	for i, s := range snap.Samples {
		samples[i] = series.Sample{Timestamp: s.Timestamp, Value: s.Value}
	}
	return samples, created, true
}

// Delete removes an entry from the cache
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.index.Entries[key]
	if !ok {
		return nil
	}
	c.removeLocked(key, entry)
	return c.saveIndexLocked()
}

// drop removes entry unless a concurrent Put already replaced it.
func (c *Cache) drop(key string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index.Entries[key] != entry {
		return
	}
	c.removeLocked(key, entry)
	if err := c.saveIndexLocked(); err != nil {
		log.Printf("[Cache] Failed to save index: %v", err)
	}
}

// Entries returns copies of the stored entries ordered by key
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.index.Entries))
	for _, e := range c.index.Entries {
		entries = append(entries, *e)
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

// Clear removes all cached entries
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshots := filepath.Join(c.dir, "snapshots")
	if err := os.RemoveAll(snapshots); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	if err := os.MkdirAll(snapshots, 0755); err != nil {
		return err
	}

	c.index = newIndex()
	c.totalSize = 0
	c.evictions = 0
	c.hits.Store(0)
	c.misses.Store(0)

	return c.saveIndexLocked()
}

// GetStats returns cache statistics
func (c *Cache) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions,
		TotalSize:  c.totalSize,
		EntryCount: len(c.index.Entries),
	}
}

// Close stops the cleanup goroutine and saves the index
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveIndexLocked()
}

func (c *Cache) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(c.dir, "index.json"))
	if err != nil {
		return err
	}

	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return err
	}
	if index.Version != indexVersion {
		return fmt.Errorf("index version %q", index.Version)
	}
	if index.Entries == nil {
		index.Entries = make(map[string]*Entry)
	}

	c.index = &index
	c.totalSize = 0
	for _, entry := range c.index.Entries {
		c.totalSize += entry.Size
	}
	return nil
}

// saveIndexLocked needs at least a read lock.
func (c *Cache) saveIndexLocked() error {
	data, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(c.dir, "index.json"), data)
}

func (c *Cache) isExpired(entry *Entry) bool {
	if c.maxAge <= 0 {
		return false
	}
	return time.Since(entry.Created) > c.maxAge
}

// ensureSpaceLocked evicts until needed more bytes fit. Caller holds c.mu.
func (c *Cache) ensureSpaceLocked(needed int64) {
	if c.maxSize <= 0 {
		return
	}

	for c.totalSize+needed > c.maxSize && len(c.index.Entries) > 0 {
		key, entry := c.victimLocked()
		if entry == nil {
			return
		}
		c.removeLocked(key, entry)
		c.evictions++
	}
}

func (c *Cache) victimLocked() (string, *Entry) {
	var victimKey string
	var victim *Entry

	for key, entry := range c.index.Entries {
		if victim == nil {
			victimKey, victim = key, entry
			continue
		}
		var better bool
		switch c.strategy {
		case LFU:
			better = entry.AccessCount < victim.AccessCount ||
				(entry.AccessCount == victim.AccessCount && entry.LastAccess.Before(victim.LastAccess))
		case FIFO:
			better = entry.Created.Before(victim.Created)
		default:
			better = entry.LastAccess.Before(victim.LastAccess)
		}
		if better {
			victimKey, victim = key, entry
		}
	}
	return victimKey, victim
}

func (c *Cache) removeLocked(key string, entry *Entry) {
	removeFile(entry.Path)
	delete(c.index.Entries, key)
	c.totalSize -= entry.Size
	c.index.Updated = time.Now()
}

func (c *Cache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Prune()
		case <-c.stopCh:
			return
		}
	}
}

// Prune drops expired entries and returns how many went.
func (c *Cache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, entry := range c.index.Entries {
		if c.isExpired(entry) {
			c.removeLocked(key, entry)
			n++
		}
	}
	if n > 0 {
		if err := c.saveIndexLocked(); err != nil {
			log.Printf("[Cache] Failed to save index: %v", err)
		}
	}
	return n
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Cache] Failed to remove %s: %v", path, err)
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

var keyReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

func sanitizeKey(key string) string {
	sanitized := keyReplacer.Replace(key)
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	return sanitized
}
