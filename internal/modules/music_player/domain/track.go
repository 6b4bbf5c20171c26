package domain

import (
	"fmt"
	"time"
)

// Track is an immutable description of a playable source produced by a resolver.
type Track struct {
	Identifier string // Source-specific ID (e.g. YouTube video ID)
	URL        string
	Title      string
	Artist     string
	Duration   time.Duration // Zero for live sources
	ArtworkURL string
	SourceName string // e.g., "youtube", "soundcloud", "http"
	IsLive     bool
}

// Source returns the parsed TrackSource for this track.
func (t *Track) Source() TrackSource {
	return ParseTrackSource(t.SourceName)
}

// IsSeekable reports whether playback of this track can start at an offset.
func (t *Track) IsSeekable() bool {
	return !t.IsLive && t.Duration > 0 && t.Source().Seekable()
}

// IsValid returns true if the track has the minimum required fields.
func (t *Track) IsValid() bool {
	return t.URL != "" && t.Title != ""
}

// FormattedDuration returns the duration as mm:ss or hh:mm:ss, or LIVE for live sources.
func (t *Track) FormattedDuration() string {
	if t.IsLive {
		return "LIVE"
	}
	return FormatPosition(t.Duration)
}

// FormatPosition formats d as mm:ss, or hh:mm:ss when it spans an hour.
func FormatPosition(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
