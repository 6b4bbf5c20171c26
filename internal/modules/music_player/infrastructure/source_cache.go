package infrastructure

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
	"golang.org/x/time/rate"
)

// Ensure SourceCache implements ports.SourceCache.
var _ ports.SourceCache = (*SourceCache)(nil)

type cacheState int

const (
	cacheInProgress cacheState = iota
	cacheReady
)

type cacheEntry struct {
	state  cacheState
	done   chan struct{} // closed when the fetch settles
	handle ports.CacheHandle
	err    error // set before done is closed on failure

	waiters int // callers blocked on done, guarded by SourceCache.mu
}

// SourceCacheConfig configures a SourceCache.
type SourceCacheConfig struct {
	Dir        string
	FetchRate  float64 // fetch starts per second, zero for unlimited
	FetchBurst int
}

// SourceCache stores downloaded sources on disk.
// Each normalized URL is fetched at most once at a time no matter how many rooms ask for it.
type SourceCache struct {
	dir     string
	fetcher ports.SourceFetcher
	limiter *rate.Limiter

	mu      sync.Mutex
	entries map[string]*cacheEntry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSourceCache creates a SourceCache writing into cfg.Dir.
func NewSourceCache(cfg SourceCacheConfig, fetcher ports.SourceFetcher) (*SourceCache, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	limit := rate.Inf
	if cfg.FetchRate > 0 {
		limit = rate.Limit(cfg.FetchRate)
	}
	burst := cfg.FetchBurst
	if burst <= 0 {
		burst = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &SourceCache{
		dir:     cfg.Dir,
		fetcher: fetcher,
		limiter: rate.NewLimiter(limit, burst),
		entries: make(map[string]*cacheEntry),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// IsReady reports whether url has a completed local copy.
func (c *SourceCache) IsReady(rawURL string) bool {
	_, ok := c.Lookup(rawURL)
	return ok
}

// IsInProgress reports whether url is being downloaded.
func (c *SourceCache) IsInProgress(rawURL string) bool {
	key := NormalizeSourceURL(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	return ok && entry.state == cacheInProgress
}

// Lookup returns the local copy of url if it is ready.
func (c *SourceCache) Lookup(rawURL string) (ports.CacheHandle, bool) {
	key := NormalizeSourceURL(rawURL)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.state != cacheReady {
		return ports.CacheHandle{}, false
	}
	return entry.handle, true
}

// Acquire returns the local copy of url, downloading it if needed.
func (c *SourceCache) Acquire(ctx context.Context, rawURL string) (ports.CacheHandle, error) {
	key := NormalizeSourceURL(rawURL)

	c.mu.Lock()
	entry := c.getOrStartLocked(key, rawURL)
	entry.waiters++
	c.mu.Unlock()

	return c.wait(ctx, entry)
}

// Await waits for an in-flight download but never starts one.
func (c *SourceCache) Await(ctx context.Context, rawURL string) (ports.CacheHandle, error) {
	key := NormalizeSourceURL(rawURL)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok {
		entry.waiters++
	}
	c.mu.Unlock()

	if !ok {
		return ports.CacheHandle{}, domain.ErrNotCached
	}
	return c.wait(ctx, entry)
}

// Prefetch starts a download if url is missing and returns immediately.
func (c *SourceCache) Prefetch(rawURL string) {
	key := NormalizeSourceURL(rawURL)

	c.mu.Lock()
	c.getOrStartLocked(key, rawURL)
	c.mu.Unlock()
}

// Sweep removes ready entries older than maxAge and deletes their files.
// In-flight downloads are never touched.
func (c *SourceCache) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	c.mu.Lock()
	var stale []ports.CacheHandle
	for key, entry := range c.entries {
		if entry.state == cacheReady && entry.handle.CompletedAt.Before(cutoff) {
			stale = append(stale, entry.handle)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for _, handle := range stale {
		if err := os.Remove(handle.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("failed to remove cached source", "path", handle.Path, "error", err)
		}
	}

	if len(stale) > 0 {
		slog.Debug("swept source cache", "removed", len(stale))
	}
	return len(stale)
}

// Run sweeps the cache every interval until ctx is cancelled.
func (c *SourceCache) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(maxAge)
		}
	}
}

// Close cancels in-flight downloads and waits for them to settle.
func (c *SourceCache) Close() {
	c.cancel()
	c.wg.Wait()
}

// getOrStartLocked returns the entry for key, starting a fetch if there is none.
// c.mu must be held; the Missing to InProgress transition happens only here.
func (c *SourceCache) getOrStartLocked(key, rawURL string) *cacheEntry {
	if entry, ok := c.entries[key]; ok {
		return entry
	}

	entry := &cacheEntry{
		state: cacheInProgress,
		done:  make(chan struct{}),
	}
	c.entries[key] = entry

	c.wg.Add(1)
	go c.fetch(key, rawURL, entry)

	slog.Debug("source cache fetch started", "key", key)
	return entry
}

func (c *SourceCache) fetch(key, rawURL string, entry *cacheEntry) {
	defer c.wg.Done()

	handle, err := c.download(key, rawURL)

	c.mu.Lock()
	if err != nil {
		entry.err = fmt.Errorf("%w: %w", domain.ErrCacheFetchFailed, err)
		if c.entries[key] == entry {
			delete(c.entries, key)
		}
	} else {
		entry.state = cacheReady
		entry.handle = handle
	}
	close(entry.done)
	waiters := entry.waiters
	c.mu.Unlock()

	if err != nil {
		slog.Warn("source cache fetch failed", "key", key, "waiters", waiters, "error", err)
		return
	}
	slog.Debug("source cache fetch completed", "key", key, "waiters", waiters, "size", handle.Size)
}

func (c *SourceCache) download(key, rawURL string) (ports.CacheHandle, error) {
	if err := c.limiter.Wait(c.ctx); err != nil {
		return ports.CacheHandle{}, err
	}

	path := filepath.Join(c.dir, cacheFileName(key))
	partPath := path + ".part"

	if err := c.fetcher.Fetch(c.ctx, rawURL, partPath); err != nil {
		_ = os.Remove(partPath)
		return ports.CacheHandle{}, err
	}

	if err := os.Rename(partPath, path); err != nil {
		_ = os.Remove(partPath)
		return ports.CacheHandle{}, fmt.Errorf("failed to finalize cached source: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return ports.CacheHandle{}, fmt.Errorf("failed to stat cached source: %w", err)
	}

	return ports.CacheHandle{
		URL:         key,
		Path:        path,
		Size:        info.Size(),
		CompletedAt: time.Now(),
	}, nil
}

func (c *SourceCache) wait(ctx context.Context, entry *cacheEntry) (ports.CacheHandle, error) {
	select {
	case <-entry.done:
	case <-ctx.Done():
		return ports.CacheHandle{}, ctx.Err()
	}

	if entry.err != nil {
		return ports.CacheHandle{}, entry.err
	}
	return entry.handle, nil
}

func cacheFileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NormalizeSourceURL returns the cache key for a source URL.
// YouTube watch, short, music and youtu.be links to the same video share one key.
func NormalizeSourceURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")

	if id := youtubeVideoID(host, u); id != "" {
		return "https://youtube.com/watch?v=" + id
	}

	u.Scheme = scheme
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String()
}

func youtubeVideoID(host string, u *url.URL) string {
	switch host {
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v")
		}
		if id, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			return strings.Trim(id, "/")
		}
	}
	return ""
}
