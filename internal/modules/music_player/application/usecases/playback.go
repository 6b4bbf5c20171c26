package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

// PauseInput contains the input for the Pause use case.
type PauseInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// ResumeInput contains the input for the Resume use case.
type ResumeInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// SkipInput contains the input for the Skip use case.
type SkipInput struct {
	GuildID               snowflake.ID
	UserID                snowflake.ID
	Privileged            bool         // DJ or guild manager: skips without a vote
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// SkipOutput contains the result of the Skip use case.
type SkipOutput struct {
	Track    *domain.Track // The track that was skipped or voted on
	Skipped  bool
	Voted    bool // Whether the user has a standing vote after the request
	Votes    int
	Required int
}

// SeekInput contains the input for the Seek use case.
type SeekInput struct {
	GuildID               snowflake.ID
	Position              time.Duration
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// SeekOutput contains the result of the Seek use case.
type SeekOutput struct {
	Track    *domain.Track
	Position time.Duration
}

// StopInput contains the input for the Stop use case.
type StopInput struct {
	GuildID               snowflake.ID
	ClearQueue            bool
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// SetLoopModeInput contains the input for the SetLoopMode use case.
type SetLoopModeInput struct {
	GuildID               snowflake.ID
	Mode                  domain.LoopMode
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// CycleLoopModeInput contains the input for the CycleLoopMode use case.
type CycleLoopModeInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// CycleLoopModeOutput contains the result of the CycleLoopMode use case.
type CycleLoopModeOutput struct {
	NewMode domain.LoopMode
}

// SetShuffleInput contains the input for the SetShuffle use case.
type SetShuffleInput struct {
	GuildID               snowflake.ID
	Enabled               bool
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// ToggleShuffleInput contains the input for the ToggleShuffle use case.
type ToggleShuffleInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// SetStayConnectedInput contains the input for the SetStayConnected use case.
type SetStayConnectedInput struct {
	GuildID               snowflake.ID
	Enabled               bool
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// SetFilterInput contains the input for the SetFilter use case.
type SetFilterInput struct {
	GuildID               snowflake.ID
	Filter                domain.Filter
	Enabled               bool
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// SetFilterOutput contains the result of the SetFilter use case.
type SetFilterOutput struct {
	Changed bool
	Applied bool // The playing track was restarted with the new filters
	Filters []domain.Filter
}

// PlaybackService handles playback operations.
type PlaybackService struct {
	orchestrator *Orchestrator
	voiceState   ports.VoiceStateProvider
}

// NewPlaybackService creates a new PlaybackService.
func NewPlaybackService(
	orchestrator *Orchestrator,
	voiceState ports.VoiceStateProvider,
) *PlaybackService {
	return &PlaybackService{
		orchestrator: orchestrator,
		voiceState:   voiceState,
	}
}

// Pause pauses the current playback.
func (p *PlaybackService) Pause(ctx context.Context, input PauseInput) error {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return err
	}

	return p.orchestrator.do(ctx, r, func() error {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		switch r.state.Status() {
		case domain.RoomStatusIdle:
			return domain.ErrNotPlaying
		case domain.RoomStatusPaused:
			return domain.ErrAlreadyPaused
		}

		r.state.SetPaused(true)
		if r.pipeline != nil {
			r.pipeline.SetPaused(true)
		}
		return nil
	})
}

// Resume resumes the paused playback.
func (p *PlaybackService) Resume(ctx context.Context, input ResumeInput) error {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return err
	}

	return p.orchestrator.do(ctx, r, func() error {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		switch r.state.Status() {
		case domain.RoomStatusIdle:
			return domain.ErrNotPlaying
		case domain.RoomStatusPlaying:
			return domain.ErrNotPaused
		}

		r.state.SetPaused(false)
		if r.pipeline != nil && !r.reconnecting {
			r.pipeline.SetPaused(false)
		}
		return nil
	})
}

// Skip skips the current track or toggles the user's vote to skip it.
// Privileged users and the track's requester skip immediately. Otherwise the track is
// skipped once votes reach half of the listeners in the bot's channel, rounded up.
func (p *PlaybackService) Skip(ctx context.Context, input SkipInput) (*SkipOutput, error) {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return nil, err
	}

	return callRoom(ctx, r, func() (*SkipOutput, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		entry := r.state.NowPlaying()
		if entry == nil {
			return nil, domain.ErrNotPlaying
		}
		if r.state.TransitionInFlight() {
			return nil, domain.ErrSkipBusy
		}

		out := &SkipOutput{Track: entry.Track}

		if input.Privileged || entry.RequesterID == input.UserID {
			p.orchestrator.advance(r, domain.AdvanceSkipped)
			out.Skipped = true
			return out, nil
		}

		channelID := r.state.VoiceChannelID()
		userChannelID, err := p.voiceState.GetUserVoiceChannel(input.GuildID, input.UserID)
		if err != nil {
			return nil, err
		}
		if userChannelID == 0 {
			return nil, domain.ErrUserNotInVoice
		}
		if userChannelID != channelID {
			return nil, domain.ErrNotInSameChannel
		}

		listeners, err := p.voiceState.CountListeners(input.GuildID, channelID)
		if err != nil {
			return nil, err
		}

		voted, err := r.state.ToggleSkipVote(input.UserID)
		if err != nil {
			return nil, err
		}

		out.Voted = voted
		out.Votes = r.state.SkipVoteCount()
		out.Required = domain.RequiredSkipVotes(listeners)

		if out.Votes >= out.Required {
			p.orchestrator.advance(r, domain.AdvanceSkipped)
			out.Skipped = true
		}
		return out, nil
	})
}

type seekPlan struct {
	entry      *domain.QueuedTrack
	url        string
	generation uint64
}

// Seek restarts the current track at the given position.
// A source still being downloaded is awaited; a source that is neither cached nor
// downloading is rejected rather than fetched.
func (p *PlaybackService) Seek(ctx context.Context, input SeekInput) (*SeekOutput, error) {
	o := p.orchestrator
	r, err := o.room(input.GuildID)
	if err != nil {
		return nil, err
	}

	var out *SeekOutput
	plan, err := callRoom(ctx, r, func() (*seekPlan, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		entry := r.state.NowPlaying()
		if entry == nil {
			return nil, domain.ErrNotPlaying
		}
		if r.state.TransitionInFlight() {
			return nil, domain.ErrSeekBusy
		}

		track := entry.Track
		switch {
		case track.IsLive:
			return nil, fmt.Errorf("%w: live streams cannot be seeked", domain.ErrSeekRejected)
		case !track.IsSeekable():
			return nil, fmt.Errorf("%w: the source does not support seeking", domain.ErrSeekRejected)
		case input.Position < 0 || input.Position >= track.Duration:
			return nil, fmt.Errorf("%w: position is outside the track", domain.ErrSeekRejected)
		}

		out = &SeekOutput{Track: track, Position: input.Position}

		if !o.cacheable(track) {
			o.relaunch(r, input.Position, "")
			return nil, nil
		}
		if handle, ok := o.cache.Lookup(track.URL); ok {
			o.relaunch(r, input.Position, handle.Path)
			return nil, nil
		}
		if !o.cache.IsInProgress(track.URL) {
			return nil, fmt.Errorf("%w: %w", domain.ErrSeekRejected, domain.ErrNotCached)
		}

		r.state.BeginTransition()
		return &seekPlan{entry: entry, url: track.URL, generation: r.generation}, nil
	})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return out, nil
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	handle, awaitErr := o.cache.Await(waitCtx, plan.url)

	// The gate must be released even when the caller has gone away.
	err = o.do(context.WithoutCancel(ctx), r, func() error {
		if r.generation != plan.generation || r.state.IsDestroyed() {
			return domain.ErrSeekBusy
		}
		r.state.EndTransition()

		if awaitErr != nil {
			return fmt.Errorf("%w: %w", domain.ErrSeekRejected, awaitErr)
		}
		o.launch(r, launchRequest{entry: plan.entry, seek: input.Position, path: handle.Path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Stop stops playback and keeps the room connected.
func (p *PlaybackService) Stop(ctx context.Context, input StopInput) error {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return err
	}

	return p.orchestrator.do(ctx, r, func() error {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		if r.state.Status() == domain.RoomStatusIdle {
			if !input.ClearQueue || r.state.Queue().IsEmpty() {
				return domain.ErrNotPlaying
			}
		}

		p.orchestrator.detachPipeline(r)
		p.orchestrator.finishPlayback(r)
		if input.ClearQueue {
			r.state.Queue().Clear()
		}
		p.orchestrator.goIdle(r)
		return nil
	})
}

// SetLoopMode sets the loop mode for the guild's room.
func (p *PlaybackService) SetLoopMode(ctx context.Context, input SetLoopModeInput) error {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return err
	}

	return p.orchestrator.do(ctx, r, func() error {
		r.state.SetNotificationChannelID(input.NotificationChannelID)
		r.state.SetLoopMode(input.Mode)
		p.orchestrator.saveSettings(r)
		return nil
	})
}

// CycleLoopMode cycles through loop modes: Off -> Track -> Queue -> Off.
func (p *PlaybackService) CycleLoopMode(
	ctx context.Context,
	input CycleLoopModeInput,
) (*CycleLoopModeOutput, error) {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return nil, err
	}

	return callRoom(ctx, r, func() (*CycleLoopModeOutput, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)
		mode := r.state.LoopMode().Next()
		r.state.SetLoopMode(mode)
		p.orchestrator.saveSettings(r)
		return &CycleLoopModeOutput{NewMode: mode}, nil
	})
}

// SetShuffle enables or disables shuffle.
func (p *PlaybackService) SetShuffle(ctx context.Context, input SetShuffleInput) error {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return err
	}

	return p.orchestrator.do(ctx, r, func() error {
		r.state.SetNotificationChannelID(input.NotificationChannelID)
		r.state.SetShuffle(input.Enabled)
		p.orchestrator.saveSettings(r)
		return nil
	})
}

// ToggleShuffle flips shuffle and returns the new setting.
func (p *PlaybackService) ToggleShuffle(ctx context.Context, input ToggleShuffleInput) (bool, error) {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return false, err
	}

	return callRoom(ctx, r, func() (bool, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)
		enabled := !r.state.Shuffle()
		r.state.SetShuffle(enabled)
		p.orchestrator.saveSettings(r)
		return enabled, nil
	})
}

// SetStayConnected sets whether the room stays in voice while idle.
func (p *PlaybackService) SetStayConnected(ctx context.Context, input SetStayConnectedInput) error {
	r, err := p.orchestrator.room(input.GuildID)
	if err != nil {
		return err
	}

	return p.orchestrator.do(ctx, r, func() error {
		r.state.SetNotificationChannelID(input.NotificationChannelID)
		r.state.SetStayConnected(input.Enabled)
		p.orchestrator.saveSettings(r)

		if input.Enabled {
			r.stopIdleTimer()
		} else if r.state.Status() == domain.RoomStatusIdle {
			p.orchestrator.scheduleIdle(r)
		}
		return nil
	})
}

// SetFilter enables or disables an audio filter.
// A playing track is restarted at its current position so the change is audible immediately.
func (p *PlaybackService) SetFilter(ctx context.Context, input SetFilterInput) (*SetFilterOutput, error) {
	o := p.orchestrator
	r, err := o.room(input.GuildID)
	if err != nil {
		return nil, err
	}

	return callRoom(ctx, r, func() (*SetFilterOutput, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		out := &SetFilterOutput{
			Changed: r.state.SetFilter(input.Filter, input.Enabled),
		}
		out.Filters = r.state.Filters().Enabled()
		if !out.Changed {
			return out, nil
		}
		o.saveSettings(r)

		// A launch in flight, or the next track, picks the filters up at spawn.
		entry := r.state.NowPlaying()
		if entry == nil || r.pipeline == nil || r.state.TransitionInFlight() {
			return out, nil
		}

		var seek time.Duration
		path := ""
		if !entry.Track.IsLive {
			seek = r.position()
			if o.cacheable(entry.Track) {
				if handle, ok := o.cache.Lookup(entry.Track.URL); ok {
					path = handle.Path
				}
			}
		}
		o.relaunch(r, seek, path)
		out.Applied = true
		return out, nil
	})
}

// GetSnapshot returns the current state of the guild's room.
func (p *PlaybackService) GetSnapshot(ctx context.Context, guildID snowflake.ID) (*RoomSnapshot, error) {
	r, err := p.orchestrator.room(guildID)
	if err != nil {
		return nil, err
	}

	return callRoom(ctx, r, func() (*RoomSnapshot, error) {
		return r.snapshot(), nil
	})
}
