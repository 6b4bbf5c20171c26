package domain

import (
	"github.com/disgoorg/snowflake/v2"
)

// RoomStatus is the externally visible state of a room.
type RoomStatus int

const (
	RoomStatusIdle RoomStatus = iota
	RoomStatusPlaying
	RoomStatusPaused
	RoomStatusDestroyed
)

// String returns a human-readable representation of the status.
func (s RoomStatus) String() string {
	switch s {
	case RoomStatusPlaying:
		return "playing"
	case RoomStatusPaused:
		return "paused"
	case RoomStatusDestroyed:
		return "destroyed"
	default:
		return "idle"
	}
}

// AdvanceReason describes why the now-playing track is being left.
type AdvanceReason int

const (
	AdvanceFinished AdvanceReason = iota // Natural end of the track
	AdvanceSkipped                       // Skip request or vote
	AdvanceFailed                        // The track could not be played
)

// RoomState is the playback state of one guild's room.
// It is not safe for concurrent use; the owning room only touches it from its executor.
//
// Skip voters are non-empty only while a track is playing and no transition is in flight.
type RoomState struct {
	guildID               snowflake.ID
	voiceChannelID        snowflake.ID
	notificationChannelID snowflake.ID

	queue *TrackQueue

	nowPlaying      *QueueKey
	nowPlayingIndex uint64
	playing         bool // false while paused

	loopMode      LoopMode
	shuffle       bool
	stayConnected bool
	filters       FilterSet

	skipVoters   map[snowflake.ID]struct{}
	transition   bool
	destroyed    bool
	failures     int
	userSettings bool // settings were changed in this session
}

// NewRoomState creates an idle RoomState for the given guild.
func NewRoomState(guildID, voiceChannelID, notificationChannelID snowflake.ID) *RoomState {
	return &RoomState{
		guildID:               guildID,
		voiceChannelID:        voiceChannelID,
		notificationChannelID: notificationChannelID,
		queue:                 NewTrackQueue(),
		filters:               make(FilterSet),
		skipVoters:            make(map[snowflake.ID]struct{}),
	}
}

// GuildID returns the guild ID.
func (s *RoomState) GuildID() snowflake.ID {
	return s.guildID
}

// VoiceChannelID returns the voice channel the room plays into.
func (s *RoomState) VoiceChannelID() snowflake.ID {
	return s.voiceChannelID
}

// SetVoiceChannelID updates the voice channel ID.
func (s *RoomState) SetVoiceChannelID(channelID snowflake.ID) {
	s.voiceChannelID = channelID
}

// NotificationChannelID returns the text channel used for notifications.
func (s *RoomState) NotificationChannelID() snowflake.ID {
	return s.notificationChannelID
}

// SetNotificationChannelID updates the notification channel, ignoring zero IDs.
func (s *RoomState) SetNotificationChannelID(channelID snowflake.ID) {
	if channelID != 0 {
		s.notificationChannelID = channelID
	}
}

// Queue returns the room's track queue.
func (s *RoomState) Queue() *TrackQueue {
	return s.queue
}

// Status derives the room status from its flags.
func (s *RoomState) Status() RoomStatus {
	switch {
	case s.destroyed:
		return RoomStatusDestroyed
	case s.nowPlaying == nil:
		return RoomStatusIdle
	case s.playing:
		return RoomStatusPlaying
	default:
		return RoomStatusPaused
	}
}

// NowPlaying returns the entry currently playing, or nil.
func (s *RoomState) NowPlaying() *QueuedTrack {
	if s.nowPlaying == nil {
		return nil
	}
	entry, ok := s.queue.Get(*s.nowPlaying)
	if !ok {
		return nil
	}
	return entry
}

// NowPlayingKey returns the key of the now-playing entry.
func (s *RoomState) NowPlayingKey() (QueueKey, bool) {
	if s.nowPlaying == nil {
		return "", false
	}
	return *s.nowPlaying, true
}

// SetNowPlaying marks entry as the now-playing track and clears skip votes.
func (s *RoomState) SetNowPlaying(entry *QueuedTrack) {
	key := entry.Key
	s.nowPlaying = &key
	s.nowPlayingIndex = entry.Index
	s.playing = true
	clear(s.skipVoters)
}

// ClearNowPlaying returns the room to idle and clears skip votes.
func (s *RoomState) ClearNowPlaying() {
	s.nowPlaying = nil
	s.playing = false
	clear(s.skipVoters)
}

// IsPlaying returns true if a track is set and not paused.
func (s *RoomState) IsPlaying() bool {
	return s.nowPlaying != nil && s.playing
}

// SetPaused pauses or resumes the now-playing track.
func (s *RoomState) SetPaused(paused bool) {
	s.playing = !paused
}

// LoopMode returns the current loop mode.
func (s *RoomState) LoopMode() LoopMode {
	return s.loopMode
}

// SetLoopMode sets the loop mode.
func (s *RoomState) SetLoopMode(mode LoopMode) {
	s.loopMode = mode
	s.userSettings = true
}

// Shuffle returns whether the next track is picked at random.
func (s *RoomState) Shuffle() bool {
	return s.shuffle
}

// SetShuffle enables or disables shuffle.
func (s *RoomState) SetShuffle(enabled bool) {
	s.shuffle = enabled
	s.userSettings = true
}

// StayConnected returns whether the room stays in voice when idle.
func (s *RoomState) StayConnected() bool {
	return s.stayConnected
}

// SetStayConnected sets whether the room stays in voice when idle.
func (s *RoomState) SetStayConnected(enabled bool) {
	s.stayConnected = enabled
	s.userSettings = true
}

// Filters returns the enabled filter set. Callers must not modify it.
func (s *RoomState) Filters() FilterSet {
	return s.filters
}

// SetFilter enables or disables f and reports whether the set changed.
func (s *RoomState) SetFilter(f Filter, enabled bool) bool {
	_, had := s.filters[f]
	if had == enabled {
		return false
	}
	if enabled {
		s.filters[f] = struct{}{}
	} else {
		delete(s.filters, f)
	}
	s.userSettings = true
	return true
}

// Settings returns a snapshot of the persisted preferences.
func (s *RoomState) Settings() RoomSettings {
	return RoomSettings{
		LoopMode:      s.loopMode,
		Shuffle:       s.shuffle,
		StayConnected: s.stayConnected,
		Filters:       s.filters.Enabled(),
	}
}

// ApplySettings loads stored preferences unless they were already changed in this session.
// It reports whether the settings were applied.
func (s *RoomState) ApplySettings(settings RoomSettings) bool {
	if s.userSettings {
		return false
	}
	s.loopMode = settings.LoopMode
	s.shuffle = settings.Shuffle
	s.stayConnected = settings.StayConnected
	clear(s.filters)
	for _, f := range settings.Filters {
		if _, ok := filterSpecs[f]; ok {
			s.filters[f] = struct{}{}
		}
	}
	return true
}

// TransitionInFlight reports whether a track change is being prepared.
func (s *RoomState) TransitionInFlight() bool {
	return s.transition
}

// BeginTransition closes the gate for skips and seeks and clears skip votes.
func (s *RoomState) BeginTransition() {
	s.transition = true
	clear(s.skipVoters)
}

// EndTransition reopens the gate.
func (s *RoomState) EndTransition() {
	s.transition = false
}

// ToggleSkipVote adds or withdraws userID's vote and reports whether the user now has a vote.
func (s *RoomState) ToggleSkipVote(userID snowflake.ID) (bool, error) {
	if s.nowPlaying == nil {
		return false, ErrNotPlaying
	}
	if s.transition {
		return false, ErrSkipBusy
	}
	if _, ok := s.skipVoters[userID]; ok {
		delete(s.skipVoters, userID)
		return false, nil
	}
	s.skipVoters[userID] = struct{}{}
	return true, nil
}

// SkipVoteCount returns the number of users currently voting to skip.
func (s *RoomState) SkipVoteCount() int {
	return len(s.skipVoters)
}

// HasSkipVote reports whether userID is voting to skip.
func (s *RoomState) HasSkipVote(userID snowflake.ID) bool {
	_, ok := s.skipVoters[userID]
	return ok
}

// RequiredSkipVotes returns ceil(listeners/2), never less than one.
func RequiredSkipVotes(listeners int) int {
	required := (listeners + 1) / 2
	if required < 1 {
		return 1
	}
	return required
}

// RecordFailure counts a consecutive playback failure and returns the new count.
func (s *RoomState) RecordFailure() int {
	s.failures++
	return s.failures
}

// ResetFailures clears the consecutive failure count.
func (s *RoomState) ResetFailures() {
	s.failures = 0
}

// IsDestroyed reports whether the room was torn down.
func (s *RoomState) IsDestroyed() bool {
	return s.destroyed
}

// Destroy marks the room as torn down and discards its queue.
func (s *RoomState) Destroy() {
	s.destroyed = true
	s.transition = false
	s.ClearNowPlaying()
	s.queue.Clear()
}

// Advance leaves the now-playing track for the given reason and returns the entry to play
// next, or nil when playback should stop. It does not change the now-playing key.
//
// Under LoopModeOff the finished entry is removed. Under LoopModeQueue it stays and the next
// higher index is chosen, wrapping to the lowest. Under LoopModeTrack a natural end replays the
// same entry; skips and failures behave like LoopModeOff. With shuffle enabled the next entry is
// picked with pick(n) among the candidates other than the finished one.
func (s *RoomState) Advance(reason AdvanceReason, pick func(n int) int) *QueuedTrack {
	var current *QueuedTrack
	if s.nowPlaying != nil {
		current, _ = s.queue.Get(*s.nowPlaying)
	}

	mode := s.loopMode
	if mode == LoopModeTrack {
		if reason == AdvanceFinished && current != nil {
			return current
		}
		mode = LoopModeOff
	}

	if mode == LoopModeOff && current != nil {
		s.queue.Remove(current.Key)
	}

	if s.queue.IsEmpty() {
		return nil
	}

	if s.shuffle {
		candidates := make([]*QueuedTrack, 0, s.queue.Len())
		for entry := range s.queue.Ordered() {
			if current == nil || entry.Key != current.Key {
				candidates = append(candidates, entry)
			}
		}
		if len(candidates) == 0 {
			return current
		}
		return candidates[pick(len(candidates))]
	}

	if mode == LoopModeQueue && s.nowPlaying != nil {
		if next := s.queue.After(s.nowPlayingIndex); next != nil {
			return next
		}
	}
	return s.queue.Head()
}
