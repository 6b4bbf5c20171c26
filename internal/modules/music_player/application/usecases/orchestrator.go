package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
	"github.com/sglre6355/roomcast/internal/serial"
)

// Orchestrator defaults.
const (
	DefaultReconnectTimeout = 20 * time.Second
	DefaultIdleTimeout      = 5 * time.Minute

	settingsTimeout = 5 * time.Second
	leaveTimeout    = 10 * time.Second
)

// OrchestratorConfig tunes playback behavior.
type OrchestratorConfig struct {
	CacheEnabled     bool
	CacheMaxDuration time.Duration // Longer tracks are streamed; zero means no limit
	ReconnectTimeout time.Duration
	IdleTimeout      time.Duration // Zero keeps idle rooms connected
}

// OrchestratorDeps are the collaborators used by the Orchestrator.
// Cache and Settings may be nil.
type OrchestratorDeps struct {
	Rooms      RoomRegistry
	Transport  ports.VoiceTransport
	Transcoder ports.Transcoder
	Fetcher    ports.SourceFetcher
	Cache      ports.SourceCache
	Settings   ports.SettingsStore
	VoiceState ports.VoiceStateProvider
	Publisher  ports.EventPublisher
}

// Orchestrator runs each room's playback: it launches pipelines for queue entries,
// reacts to their completion and tears rooms down.
// Methods without a context run on the room's executor.
type Orchestrator struct {
	cfg        OrchestratorConfig
	rooms      RoomRegistry
	transport  ports.VoiceTransport
	transcoder ports.Transcoder
	fetcher    ports.SourceFetcher
	cache      ports.SourceCache
	settings   ports.SettingsStore
	voiceState ports.VoiceStateProvider
	publisher  ports.EventPublisher

	pick func(n int) int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	leaving map[snowflake.ID]chan struct{}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, deps OrchestratorDeps) *Orchestrator {
	if cfg.ReconnectTimeout <= 0 {
		cfg.ReconnectTimeout = DefaultReconnectTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		rooms:      deps.Rooms,
		transport:  deps.Transport,
		transcoder: deps.Transcoder,
		fetcher:    deps.Fetcher,
		cache:      deps.Cache,
		settings:   deps.Settings,
		voiceState: deps.VoiceState,
		publisher:  deps.Publisher,
		pick:       rand.IntN,
		ctx:        ctx,
		cancel:     cancel,
		leaving:    make(map[snowflake.ID]chan struct{}),
	}
}

// Close destroys every room and waits for their voice connections to be released.
func (o *Orchestrator) Close(ctx context.Context) {
	for _, r := range o.rooms.All() {
		_ = o.do(ctx, r, func() error {
			o.destroy(r, nil)
			return nil
		})
		_ = o.awaitLeave(ctx, r.guildID)
	}
	o.cancel()
}

func (o *Orchestrator) room(guildID snowflake.ID) (*Room, error) {
	r, ok := o.rooms.Get(guildID)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return r, nil
}

func (o *Orchestrator) do(ctx context.Context, r *Room, fn func() error) error {
	return roomError(r.exec.Do(ctx, fn))
}

func callRoom[T any](ctx context.Context, r *Room, fn func() (T, error)) (T, error) {
	v, err := serial.Call(ctx, r.exec, fn)
	return v, roomError(err)
}

func roomError(err error) error {
	var panicErr *serial.PanicError
	switch {
	case errors.Is(err, serial.ErrClosed):
		return domain.ErrRoomDestroyed
	case errors.As(err, &panicErr):
		return domain.ErrRoomFault
	default:
		return err
	}
}

// join returns the guild's room connected to channelID, creating or moving it as needed.
func (o *Orchestrator) join(
	ctx context.Context,
	guildID, channelID, notificationChannelID snowflake.ID,
) (*Room, bool, error) {
	for {
		r, ok := o.rooms.Get(guildID)
		if !ok {
			break
		}
		room, moved, err := o.move(ctx, r, channelID, notificationChannelID)
		if errors.Is(err, domain.ErrRoomDestroyed) {
			// Destroyed under us; its disconnect is pending
			if err := o.awaitLeave(ctx, guildID); err != nil {
				return nil, false, err
			}
			continue
		}
		return room, moved, err
	}

	// A destroyed room is unregistered only after its disconnect is recorded,
	// so a miss here always sees the pending leave.
	if err := o.awaitLeave(ctx, guildID); err != nil {
		return nil, false, err
	}

	return o.create(ctx, guildID, channelID, notificationChannelID)
}

// move points an existing room at channelID, rejoining voice if the channel differs.
func (o *Orchestrator) move(
	ctx context.Context,
	r *Room,
	channelID, notificationChannelID snowflake.ID,
) (*Room, bool, error) {
	current, err := callRoom(ctx, r, func() (snowflake.ID, error) {
		r.state.SetNotificationChannelID(notificationChannelID)
		return r.state.VoiceChannelID(), nil
	})
	if err != nil {
		return nil, false, err
	}
	if current == channelID {
		return r, false, nil
	}

	conn, err := o.transport.Join(ctx, r.guildID, channelID)
	if err != nil {
		return nil, false, err
	}
	err = o.do(ctx, r, func() error {
		r.state.SetVoiceChannelID(channelID)
		r.conn = conn
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	slog.Info("room moved", "guild", r.guildID, "channel", channelID)
	return r, true, nil
}

func (o *Orchestrator) create(
	ctx context.Context,
	guildID, channelID, notificationChannelID snowflake.ID,
) (*Room, bool, error) {
	conn, err := o.transport.Join(ctx, guildID, channelID)
	if err != nil {
		return nil, false, err
	}

	r := newRoom(o.ctx, domain.NewRoomState(guildID, channelID, notificationChannelID), conn)
	r.exec = serial.New(serial.WithPanicHandler(func(v any) {
		slog.Error("room task panicked", "guild", guildID, "panic", v)
		o.destroy(r, domain.ErrRoomFault)
	}))

	if existing, loaded := o.rooms.LoadOrStore(guildID, r); loaded {
		r.cancel()
		return existing, false, nil
	}

	o.loadSettings(r)
	r.exec.Submit(func() error {
		o.scheduleIdle(r)
		return nil
	})

	slog.Info("room created", "guild", guildID, "channel", channelID)
	return r, true, nil
}

// destroy tears the room down. The reason, if any, is reported to the notification channel.
func (o *Orchestrator) destroy(r *Room, reason error) {
	if r.state.IsDestroyed() {
		return
	}

	notificationChannelID := r.state.NotificationChannelID()

	o.detachPipeline(r)
	o.finishPlayback(r)
	r.stopIdleTimer()
	r.state.Destroy()

	done := o.beginLeave(r.guildID)
	o.rooms.CompareAndDelete(r.guildID, r)

	o.publisher.PublishRoomDestroyed(domain.RoomDestroyedEvent{
		GuildID:               r.guildID,
		NotificationChannelID: notificationChannelID,
		Reason:                reason,
	})

	r.cancel()
	r.exec.Close()
	o.leave(r.guildID, done)

	slog.Info("room destroyed", "guild", r.guildID, "reason", reason)
}

// beginLeave records a pending disconnect for the guild. Joins wait on it until
// leave has run.
func (o *Orchestrator) beginLeave(guildID snowflake.ID) chan struct{} {
	done := make(chan struct{})

	o.mu.Lock()
	o.leaving[guildID] = done
	o.mu.Unlock()

	return done
}

// leave disconnects the guild in the background and then releases done.
func (o *Orchestrator) leave(guildID snowflake.ID, done chan struct{}) {
	go func() {
		defer func() {
			o.mu.Lock()
			if o.leaving[guildID] == done {
				delete(o.leaving, guildID)
			}
			o.mu.Unlock()
			close(done)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()

		if err := o.transport.Leave(ctx, guildID); err != nil {
			slog.Warn("failed to leave voice channel", "guild", guildID, "error", err)
		}
	}()
}

// awaitLeave blocks until a pending disconnect for the guild has completed.
func (o *Orchestrator) awaitLeave(ctx context.Context, guildID snowflake.ID) error {
	o.mu.Lock()
	done := o.leaving[guildID]
	o.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type launchRequest struct {
	entry    *domain.QueuedTrack
	seek     time.Duration
	path     string // Local copy to play from, if already known
	announce bool   // A new playback rather than a relaunch of the current one

	graph string
	tempo float64
	sink  ports.VoiceConnection
}

// launch starts playing req.entry. The pipeline is spawned off the executor and attached
// by a follow-up task; until then skips and seeks are rejected as busy.
func (o *Orchestrator) launch(r *Room, req launchRequest) {
	o.detachPipeline(r)
	r.stopIdleTimer()

	if req.announce {
		o.finishPlayback(r)
		r.state.SetNowPlaying(req.entry)
	}
	r.state.BeginTransition()

	filters := r.state.Filters()
	req.graph = filters.Graph()
	req.tempo = filters.Tempo()
	req.sink = r.conn

	gen := r.generation
	go o.spawn(r, gen, req)
}

func (o *Orchestrator) spawn(r *Room, gen uint64, req launchRequest) {
	var (
		pipeline ports.Pipeline
		err      error
	)

	// A spawn failure is retried once; the input is consumed by a failed attempt so it is reopened.
	for attempt := 0; attempt < 2; attempt++ {
		var input ports.PipelineInput
		input, err = o.openSource(r.ctx, req)
		if err != nil {
			break
		}

		pipeline, err = o.transcoder.Start(r.ctx, ports.PipelineSpec{
			Input:       input,
			Seek:        req.seek,
			FilterGraph: req.graph,
			Sink:        req.sink,
		})
		if err == nil || !errors.Is(err, domain.ErrPipelineSpawnFailed) {
			break
		}

		slog.Warn("failed to spawn pipeline",
			"guild", r.guildID,
			"attempt", attempt+1,
			"error", err,
		)
	}

	if err == nil && req.sink != nil {
		if serr := req.sink.SetSpeaking(true); serr != nil {
			slog.Debug("failed to set speaking state", "guild", r.guildID, "error", serr)
		}
	}

	f := r.exec.Submit(func() error {
		o.attach(r, gen, req, pipeline, err)
		return nil
	})
	if errors.Is(f.Wait(context.Background()), serial.ErrClosed) && pipeline != nil {
		pipeline.Stop()
	}
}

// openSource picks the local copy when one is ready and streams otherwise.
// Cacheable sources that are not cached yet are prefetched for later seeks.
func (o *Orchestrator) openSource(ctx context.Context, req launchRequest) (ports.PipelineInput, error) {
	if req.path != "" {
		return ports.PipelineInput{Path: req.path}, nil
	}

	url := req.entry.Track.URL
	if o.cacheable(req.entry.Track) {
		if handle, ok := o.cache.Lookup(url); ok {
			return ports.PipelineInput{Path: handle.Path}, nil
		}
		o.cache.Prefetch(url)
	}

	stream, err := o.fetcher.Stream(ctx, url)
	if err != nil {
		return ports.PipelineInput{}, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
	}
	return ports.PipelineInput{Stream: stream}, nil
}

func (o *Orchestrator) cacheable(track *domain.Track) bool {
	if o.cache == nil || !o.cfg.CacheEnabled {
		return false
	}
	if track.IsLive || track.Duration <= 0 {
		return false
	}
	return o.cfg.CacheMaxDuration <= 0 || track.Duration <= o.cfg.CacheMaxDuration
}

func (o *Orchestrator) attach(
	r *Room,
	gen uint64,
	req launchRequest,
	pipeline ports.Pipeline,
	err error,
) {
	if gen != r.generation || r.state.IsDestroyed() {
		if pipeline != nil {
			pipeline.Stop()
		}
		return
	}
	r.state.EndTransition()

	if err != nil {
		slog.Error("failed to start playback",
			"guild", r.guildID,
			"track", req.entry.Track.Title,
			"error", err,
		)
		o.fail(r, req.entry, err)
		return
	}

	r.pipeline = pipeline
	r.pipelineSeek = req.seek
	r.pipelineTempo = req.tempo

	if !r.state.IsPlaying() || r.reconnecting {
		pipeline.SetPaused(true)
	}

	if req.announce {
		r.playbackID = uuid.NewString()
		o.publisher.PublishPlaybackStarted(domain.PlaybackStartedEvent{
			GuildID:               r.guildID,
			NotificationChannelID: r.state.NotificationChannelID(),
			PlaybackID:            r.playbackID,
			Entry:                 req.entry,
			Filters:               r.state.Filters().Enabled(),
		})
	}

	slog.Debug("pipeline attached",
		"guild", r.guildID,
		"pipeline", pipeline.ID(),
		"track", req.entry.Track.Title,
		"seek", req.seek,
	)

	go o.watch(r, pipeline)
}

func (o *Orchestrator) watch(r *Room, pipeline ports.Pipeline) {
	<-pipeline.Done()
	result := pipeline.Result()

	r.exec.Submit(func() error {
		o.onPipelineEnd(r, pipeline, result)
		return nil
	})
}

func (o *Orchestrator) onPipelineEnd(r *Room, pipeline ports.Pipeline, result ports.PipelineResult) {
	if r.pipeline == nil || r.pipeline.ID() != pipeline.ID() {
		slog.Debug("ignoring stale pipeline end", "guild", r.guildID, "pipeline", pipeline.ID())
		return
	}
	r.pipeline = nil

	switch result.Reason {
	case ports.PipelineFailed:
		entry := r.state.NowPlaying()
		slog.Warn("playback failed",
			"guild", r.guildID,
			"pipeline", pipeline.ID(),
			"error", result.Err,
		)
		o.fail(r, entry, result.Err)
	case ports.PipelineStopped:
		// Only stopped pipelines that were already detached reach here.
	default:
		r.state.ResetFailures()
		o.advance(r, domain.AdvanceFinished)
	}
}

func (o *Orchestrator) fail(r *Room, entry *domain.QueuedTrack, err error) {
	event := domain.PlaybackFailedEvent{
		GuildID:               r.guildID,
		NotificationChannelID: r.state.NotificationChannelID(),
		Err:                   err,
	}
	if entry != nil {
		event.Track = entry.Track
	}
	o.publisher.PublishPlaybackFailed(event)

	o.advance(r, domain.AdvanceFailed)
}

// advance leaves the now-playing entry and launches the next one, or goes idle.
func (o *Orchestrator) advance(r *Room, reason domain.AdvanceReason) {
	o.detachPipeline(r)
	o.finishPlayback(r)

	switch reason {
	case domain.AdvanceFailed:
		failures := r.state.RecordFailure()
		// Looping the queue never drains it, so give up once every entry has failed in a row.
		if r.state.LoopMode() == domain.LoopModeQueue && failures >= r.state.Queue().Len() {
			slog.Warn("stopping playback after consecutive failures",
				"guild", r.guildID,
				"failures", failures,
			)
			r.state.ResetFailures()
			o.goIdle(r)
			return
		}
	case domain.AdvanceSkipped:
		r.state.ResetFailures()
	}

	next := r.state.Advance(reason, o.pick)
	if next == nil {
		o.goIdle(r)
		return
	}

	o.launch(r, launchRequest{entry: next, announce: true})
}

func (o *Orchestrator) goIdle(r *Room) {
	r.state.ClearNowPlaying()
	r.state.EndTransition()

	if conn := r.conn; conn != nil {
		go func() {
			if err := conn.SetSpeaking(false); err != nil {
				slog.Debug("failed to clear speaking state", "guild", r.guildID, "error", err)
			}
		}()
	}

	o.scheduleIdle(r)
}

func (o *Orchestrator) scheduleIdle(r *Room) {
	r.stopIdleTimer()
	if r.state.StayConnected() || o.cfg.IdleTimeout <= 0 {
		return
	}

	r.idleTimer = time.AfterFunc(o.cfg.IdleTimeout, func() {
		r.exec.Submit(func() error {
			if r.state.Status() == domain.RoomStatusIdle && !r.state.StayConnected() {
				o.destroy(r, domain.ErrIdleTimeout)
			}
			return nil
		})
	})
}

// detachPipeline stops the attached pipeline and invalidates any spawn in flight.
func (o *Orchestrator) detachPipeline(r *Room) {
	r.generation++
	if r.pipeline != nil {
		r.pipeline.Stop()
		r.pipeline = nil
	}
	r.pipelineSeek = 0
}

func (o *Orchestrator) finishPlayback(r *Room) {
	if r.playbackID == "" {
		return
	}
	o.publisher.PublishPlaybackFinished(domain.PlaybackFinishedEvent{
		GuildID:    r.guildID,
		PlaybackID: r.playbackID,
	})
	r.playbackID = ""
}

// relaunch restarts the now-playing entry at seek with the current filters.
func (o *Orchestrator) relaunch(r *Room, seek time.Duration, path string) {
	entry := r.state.NowPlaying()
	if entry == nil {
		return
	}
	o.launch(r, launchRequest{entry: entry, seek: seek, path: path})
}

// reconnect pauses the room until the voice transport is ready again.
// A zero channelID means the connection changed without a channel move.
func (o *Orchestrator) reconnect(ctx context.Context, r *Room, channelID snowflake.ID) error {
	started, err := callRoom(ctx, r, func() (bool, error) {
		if channelID != 0 {
			if channelID == r.state.VoiceChannelID() {
				return false, nil
			}
			r.state.SetVoiceChannelID(channelID)
		}
		if r.reconnecting {
			return false, nil
		}
		r.reconnecting = true
		if r.pipeline != nil {
			r.pipeline.SetPaused(true)
		}
		return true, nil
	})
	if err != nil || !started {
		return err
	}

	slog.Info("waiting for voice connection", "guild", r.guildID)
	go o.awaitReconnect(r)
	return nil
}

func (o *Orchestrator) awaitReconnect(r *Room) {
	ctx, cancel := context.WithTimeout(r.ctx, o.cfg.ReconnectTimeout)
	defer cancel()

	err := o.transport.AwaitReady(ctx, r.guildID)

	r.exec.Submit(func() error {
		r.reconnecting = false
		if r.state.IsDestroyed() {
			return nil
		}
		if err != nil {
			slog.Warn("voice connection did not recover", "guild", r.guildID, "error", err)
			o.destroy(r, domain.ErrVoiceReconnectTimeout)
			return nil
		}
		if r.pipeline != nil && r.state.IsPlaying() {
			r.pipeline.SetPaused(false)
		}
		slog.Info("voice connection recovered", "guild", r.guildID)
		return nil
	})
}

func (o *Orchestrator) loadSettings(r *Room) {
	if o.settings == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(r.ctx, settingsTimeout)
		defer cancel()

		settings, found, err := o.settings.Load(ctx, r.guildID)
		if err != nil {
			slog.Warn("failed to load room settings", "guild", r.guildID, "error", err)
			return
		}
		if !found {
			return
		}

		r.exec.Submit(func() error {
			if r.state.ApplySettings(settings) {
				slog.Debug("room settings applied", "guild", r.guildID)
				if r.state.Status() == domain.RoomStatusIdle {
					o.scheduleIdle(r)
				}
			}
			return nil
		})
	}()
}

// saveSettings persists the room's settings in the order they were changed.
func (o *Orchestrator) saveSettings(r *Room) {
	if o.settings == nil {
		return
	}

	settings := r.state.Settings()
	r.saves.Submit(func() error {
		ctx, cancel := context.WithTimeout(o.ctx, settingsTimeout)
		defer cancel()

		if err := o.settings.Save(ctx, r.guildID, settings); err != nil {
			slog.Warn("failed to save room settings", "guild", r.guildID, "error", err)
			return err
		}
		return nil
	})
}
