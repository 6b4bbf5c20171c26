package ports

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// NotificationSender posts playback notices to a guild's text channel.
type NotificationSender interface {
	// SendNowPlaying posts the "Now Playing" card and returns its message ID
	// so it can be removed when the track ends.
	SendNowPlaying(channelID snowflake.ID, info *NowPlayingInfo) (messageID snowflake.ID, err error)
	DeleteMessage(channelID snowflake.ID, messageID snowflake.ID) error
	SendError(channelID snowflake.ID, message string) error
	SendInfo(channelID snowflake.ID, message string) error
}

// NowPlayingInfo is the content of a "Now Playing" card.
type NowPlayingInfo struct {
	Identifier         string
	Title              string
	Artist             string
	Duration           string // Preformatted, ignored for live tracks
	URL                string
	ArtworkURL         string
	SourceName         string
	IsLive             bool
	Filters            []string
	RequesterID        snowflake.ID
	RequesterName      string
	RequesterAvatarURL string
	EnqueuedAt         time.Time
}

// UserInfoProvider looks up how a guild member should be displayed.
type UserInfoProvider interface {
	GetUserInfo(guildID, userID snowflake.ID) (*UserInfo, error)
}

// UserInfo is a member's display name and avatar.
type UserInfo struct {
	DisplayName string
	AvatarURL   string
}
