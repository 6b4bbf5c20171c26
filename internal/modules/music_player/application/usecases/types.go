package usecases

import (
	"time"

	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

// Re-export domain types for presentation layer use.
// This allows presentation to depend only on usecases without importing domain directly.

// Track is an alias for domain.Track.
type Track = domain.Track

// QueuedTrack is an alias for domain.QueuedTrack.
type QueuedTrack = domain.QueuedTrack

// LoopMode is an alias for domain.LoopMode.
type LoopMode = domain.LoopMode

// Filter is an alias for domain.Filter.
type Filter = domain.Filter

// SearchSource is an alias for domain.SearchSource.
type SearchSource = domain.SearchSource

// RoomStatus is an alias for domain.RoomStatus.
type RoomStatus = domain.RoomStatus

// Loop modes.
const (
	LoopModeOff   = domain.LoopModeOff
	LoopModeTrack = domain.LoopModeTrack
	LoopModeQueue = domain.LoopModeQueue
)

// Search sources.
const (
	SourceYouTube    = domain.SourceYouTube
	SourceSoundCloud = domain.SourceSoundCloud
)

// Room statuses.
const (
	RoomStatusIdle    = domain.RoomStatusIdle
	RoomStatusPlaying = domain.RoomStatusPlaying
	RoomStatusPaused  = domain.RoomStatusPaused
)

// ParseLoopMode parses a loop mode name.
func ParseLoopMode(s string) (LoopMode, error) {
	return domain.ParseLoopMode(s)
}

// ParseFilter parses a filter name.
func ParseFilter(name string) (Filter, error) {
	return domain.ParseFilter(name)
}

// AllFilters returns every supported filter.
func AllFilters() []Filter {
	return domain.AllFilters()
}

// ParsePosition parses a playback position such as "90", "1:30" or "1:02:03".
func ParsePosition(s string) (time.Duration, error) {
	return domain.ParsePosition(s)
}

// FormatPosition formats a duration as mm:ss or hh:mm:ss.
func FormatPosition(d time.Duration) string {
	return domain.FormatPosition(d)
}
