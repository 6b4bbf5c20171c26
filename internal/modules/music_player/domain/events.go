package domain

import "github.com/disgoorg/snowflake/v2"

// PlaybackStartedEvent is published when a queue entry starts playing.
// Relaunches of the same entry for a seek or a filter change are not announced.
type PlaybackStartedEvent struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID
	PlaybackID            string // Pairs this event with its PlaybackFinishedEvent
	Entry                 *QueuedTrack
	Filters               []Filter
}

// PlaybackFinishedEvent is published when an announced playback is left behind.
// This signals that the "Now Playing" message should be deleted.
type PlaybackFinishedEvent struct {
	GuildID    snowflake.ID
	PlaybackID string
}

// PlaybackFailedEvent is published when a track could not be played and was skipped.
type PlaybackFailedEvent struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID
	Track                 *Track
	Err                   error
}

// RoomDestroyedEvent is published when a room is torn down.
// Reason is nil for requested teardowns.
type RoomDestroyedEvent struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID
	Reason                error
}
