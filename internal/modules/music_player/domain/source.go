package domain

import "strings"

// TrackSource represents the origin platform of a track.
type TrackSource string

const (
	TrackSourceYouTube    TrackSource = "youtube"
	TrackSourceSoundCloud TrackSource = "soundcloud"
	TrackSourceBandcamp   TrackSource = "bandcamp"
	TrackSourceTwitch     TrackSource = "twitch"
	TrackSourceHTTP       TrackSource = "http"
	TrackSourceOther      TrackSource = "other"
)

// ParseTrackSource converts a resolver source name to a TrackSource.
// Extractor keys from yt-dlp ("Youtube", "SoundcloudTrack") are accepted as well.
func ParseTrackSource(name string) TrackSource {
	name = strings.ToLower(name)
	switch {
	case strings.HasPrefix(name, "youtube"):
		return TrackSourceYouTube
	case strings.HasPrefix(name, "soundcloud"):
		return TrackSourceSoundCloud
	case strings.HasPrefix(name, "bandcamp"):
		return TrackSourceBandcamp
	case strings.HasPrefix(name, "twitch"):
		return TrackSourceTwitch
	case name == "http" || name == "generic":
		return TrackSourceHTTP
	default:
		return TrackSourceOther
	}
}

// Seekable reports whether sources from this platform support offset playback.
// Twitch only serves live and VOD HLS, neither of which is cached.
func (s TrackSource) Seekable() bool {
	return s != TrackSourceTwitch
}

// Color returns the embed color used for this source.
func (s TrackSource) Color() int {
	switch s {
	case TrackSourceYouTube:
		return 0xFF0000
	case TrackSourceSoundCloud:
		return 0xFF5500
	case TrackSourceBandcamp:
		return 0x629AA9
	case TrackSourceTwitch:
		return 0x9146FF
	default:
		return 0x08C404
	}
}

// IconURL returns the platform icon shown in embeds, or "" for unknown sources.
func (s TrackSource) IconURL() string {
	switch s {
	case TrackSourceYouTube:
		return "https://www.youtube.com/s/desktop/favicon_144x144.png"
	case TrackSourceSoundCloud:
		return "https://a-v2.sndcdn.com/assets/images/sc-icons/favicon-2cadd14bdb.ico"
	case TrackSourceBandcamp:
		return "https://s4.bcbits.com/img/favicon/favicon-32x32.png"
	case TrackSourceTwitch:
		return "https://static.twitchcdn.net/assets/favicon-32-e29e246c157142c94346.png"
	default:
		return ""
	}
}
