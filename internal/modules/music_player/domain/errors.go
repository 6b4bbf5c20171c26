package domain

import (
	"errors"
	"fmt"
)

// Playback errors.
var (
	// ErrSourceUnavailable is returned when a track's audio cannot be obtained.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrPipelineSpawnFailed is returned when the transcoder process cannot be started.
	ErrPipelineSpawnFailed = errors.New("failed to start transcoder")

	// ErrVoiceReconnectTimeout is returned when the voice transport does not recover in time.
	ErrVoiceReconnectTimeout = errors.New("voice connection did not recover in time")

	// ErrCacheFetchFailed wraps the cause of a failed cache download.
	ErrCacheFetchFailed = errors.New("failed to fetch source into cache")

	// ErrNotCached is returned when a source has no cached or in-flight download.
	ErrNotCached = errors.New("source is not cached")

	// ErrBusy is returned when a track transition is already in flight.
	ErrBusy = errors.New("a track change is already in progress")

	// ErrSkipBusy is returned when a skip arrives during a track transition.
	ErrSkipBusy = fmt.Errorf("cannot skip right now: %w", ErrBusy)

	// ErrSeekBusy is returned when a seek arrives during a track transition.
	ErrSeekBusy = fmt.Errorf("cannot seek right now: %w", ErrBusy)

	// ErrSeekRejected is returned when the current track cannot be seeked.
	ErrSeekRejected = errors.New("cannot seek this track")
)

// Room errors.
var (
	// ErrRoomNotFound is returned when the guild has no active room.
	ErrRoomNotFound = errors.New("not connected to a voice channel")

	// ErrRoomDestroyed is returned for requests that reach a room after teardown.
	ErrRoomDestroyed = errors.New("playback session has ended")

	// ErrIdleTimeout is the reason a room leaves after staying idle.
	ErrIdleTimeout = errors.New("nothing was played for a while")

	// ErrRoomFault is the reason a room is torn down after an internal failure.
	ErrRoomFault = errors.New("playback stopped after an internal error")

	// ErrUserNotInVoice is returned when the user is not in a voice channel.
	ErrUserNotInVoice = errors.New("you must be in a voice channel")

	// ErrNotInSameChannel is returned when a vote comes from outside the bot's channel.
	ErrNotInSameChannel = errors.New("you must be in the same voice channel as the bot")

	// ErrNotPlaying is returned when no track is currently playing.
	ErrNotPlaying = errors.New("nothing is currently playing")

	// ErrAlreadyPaused is returned when trying to pause while already paused.
	ErrAlreadyPaused = errors.New("playback is already paused")

	// ErrNotPaused is returned when trying to resume while not paused.
	ErrNotPaused = errors.New("playback is not paused")

	// ErrQueueEmpty is returned when the queue is empty.
	ErrQueueEmpty = errors.New("the queue is empty")

	// ErrInvalidPosition is returned when an invalid queue position is specified.
	ErrInvalidPosition = errors.New("invalid queue position")

	// ErrNothingToClear is returned when only the current track is queued.
	ErrNothingToClear = errors.New("nothing to clear")

	// ErrIsCurrentTrack is returned when trying to remove the currently playing track.
	ErrIsCurrentTrack = errors.New("cannot remove current track, use skip instead")

	// ErrUnknownFilter is returned for filter names outside the supported set.
	ErrUnknownFilter = errors.New("unknown filter")

	// ErrNoResults is returned when a search yields no results.
	ErrNoResults = errors.New("no results found")

	// ErrInvalidTimestamp is returned for seek positions that cannot be parsed.
	ErrInvalidTimestamp = errors.New("invalid timestamp, use seconds or [hh:]mm:ss")
)
