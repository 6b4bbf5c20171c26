package ports

import (
	"context"
	"io"
	"time"
)

// CacheHandle points at a fully downloaded source.
type CacheHandle struct {
	URL         string // Normalized source URL
	Path        string
	Size        int64
	CompletedAt time.Time
}

// SourceCache keeps local copies of remote sources and deduplicates concurrent downloads.
type SourceCache interface {
	// IsReady reports whether url has a completed local copy.
	IsReady(url string) bool

	// IsInProgress reports whether url is being downloaded.
	IsInProgress(url string) bool

	// Lookup returns the local copy of url if it is ready.
	Lookup(url string) (CacheHandle, bool)

	// Acquire returns the local copy of url, downloading it if needed.
	// Cancelling ctx abandons the wait without cancelling the download.
	Acquire(ctx context.Context, url string) (CacheHandle, error)

	// Await waits for an in-flight download but never starts one.
	// It returns domain.ErrNotCached when url is neither ready nor in progress.
	Await(ctx context.Context, url string) (CacheHandle, error)

	// Prefetch starts a download if url is missing and returns immediately.
	Prefetch(url string)
}

// SourceFetcher retrieves remote audio.
type SourceFetcher interface {
	// Fetch downloads the best audio of url into dest.
	Fetch(ctx context.Context, url, dest string) error

	// Stream returns the audio of url as it is downloaded.
	Stream(ctx context.Context, url string) (io.ReadCloser, error)
}
