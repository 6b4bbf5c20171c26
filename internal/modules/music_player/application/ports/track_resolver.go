package ports

import (
	"context"
	"time"
)

// TrackResolver turns user queries into track metadata.
// Implementations never download audio.
type TrackResolver interface {
	// LoadTracks resolves a URL or a "<prefix>:<term>" search such as "ytsearch:lofi".
	// An unmatched query is reported as LoadTypeEmpty, not as an error.
	LoadTracks(ctx context.Context, query string) (*LoadResult, error)
}

// LoadType classifies a LoadResult.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search" // Tracks are ordered by relevance
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error" // The backend rejected the query
)

// LoadResult is what a TrackResolver found for a query.
type LoadResult struct {
	Type         LoadType
	Tracks       []*TrackInfo
	PlaylistName string // Set for LoadTypePlaylist
}

// TrackInfo is resolver-neutral track metadata.
type TrackInfo struct {
	Identifier string // Platform ID, e.g. a YouTube video ID
	Title      string
	Artist     string
	Duration   time.Duration // Zero for live streams
	URL        string        // Page URL, used as the fetch source
	ArtworkURL string
	SourceName string // Lavalink source name or yt-dlp extractor key
	IsLive     bool
}
