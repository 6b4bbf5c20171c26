package usecases

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

func TestOrchestrator_EnqueueStartsPlayback(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})

	entries := env.enqueue(t, "a")
	r := env.room(t)
	p := env.waitPipeline(t, r, 1)

	if p.spec.Input.Stream == nil {
		t.Error("expected pipeline to stream the source")
	}
	if p.spec.Seek != 0 {
		t.Errorf("expected seek 0, got %v", p.spec.Seek)
	}

	started := env.publisher.started()
	if len(started) != 1 {
		t.Fatalf("expected 1 started event, got %d", len(started))
	}
	if started[0].Entry.Key != entries[0].Key {
		t.Error("expected started event for the enqueued entry")
	}
	if started[0].NotificationChannelID != testNotificationChannelID {
		t.Errorf("expected notification channel %d, got %d",
			testNotificationChannelID, started[0].NotificationChannelID)
	}
	if started[0].PlaybackID == "" {
		t.Error("expected playback ID to be set")
	}

	snapshot := env.snapshot(t)
	if snapshot.Status != domain.RoomStatusPlaying {
		t.Errorf("expected status playing, got %v", snapshot.Status)
	}
	if env.transport.joinCount() != 1 {
		t.Errorf("expected 1 join, got %d", env.transport.joinCount())
	}
}

func TestOrchestrator_NaturalEnd(t *testing.T) {
	tests := []struct {
		name      string
		loopMode  domain.LoopMode
		ends      int      // Pipelines that finish naturally
		wantNext  []string // Identifier played by pipelines 2..ends+1
		wantQueue int
		wantIdle  bool
	}{
		{
			name:      "loop off advances and drops finished track",
			loopMode:  domain.LoopModeOff,
			ends:      1,
			wantNext:  []string{"b"},
			wantQueue: 2,
		},
		{
			name:      "loop off goes idle after last track",
			loopMode:  domain.LoopModeOff,
			ends:      3,
			wantNext:  []string{"b", "c"},
			wantQueue: 0,
			wantIdle:  true,
		},
		{
			name:      "loop track replays the same track",
			loopMode:  domain.LoopModeTrack,
			ends:      2,
			wantNext:  []string{"a", "a"},
			wantQueue: 3,
		},
		{
			name:      "loop queue wraps to the first track",
			loopMode:  domain.LoopModeQueue,
			ends:      3,
			wantNext:  []string{"b", "c", "a"},
			wantQueue: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, OrchestratorConfig{})
			r := env.join(t)

			err := env.playback.SetLoopMode(context.Background(), SetLoopModeInput{
				GuildID: testGuildID,
				Mode:    tt.loopMode,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			env.enqueue(t, "a", "b", "c")
			p := env.waitPipeline(t, r, 1)

			for i := 0; i < tt.ends; i++ {
				p.finish(ports.PipelineFinished, nil)
				if i >= len(tt.wantNext) {
					break
				}
				p = env.waitPipeline(t, r, i+2)
				snapshot := env.snapshot(t)
				if got := snapshot.NowPlaying.Track.Identifier; got != tt.wantNext[i] {
					t.Errorf("step %d: expected now playing %q, got %q", i, tt.wantNext[i], got)
				}
			}

			if tt.wantIdle {
				env.waitIdle(t)
			}

			snapshot := env.snapshot(t)
			if len(snapshot.Queue) != tt.wantQueue {
				t.Errorf("expected queue length %d, got %d", tt.wantQueue, len(snapshot.Queue))
			}

			waitFor(t, "finished events", func() bool {
				return len(env.publisher.finished()) == tt.ends
			})
		})
	}
}

func TestOrchestrator_ShufflePicksCandidate(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	env.orchestrator.pick = func(n int) int { return n - 1 }
	r := env.join(t)

	err := env.playback.SetShuffle(context.Background(), SetShuffleInput{
		GuildID: testGuildID,
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env.enqueue(t, "a", "b", "c")
	p := env.waitPipeline(t, r, 1)
	p.finish(ports.PipelineFinished, nil)
	env.waitPipeline(t, r, 2)

	if got := env.snapshot(t).NowPlaying.Track.Identifier; got != "c" {
		t.Errorf("expected shuffle to pick %q, got %q", "c", got)
	}
}

func TestOrchestrator_PipelineFailureAdvances(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	env.enqueue(t, "a", "b")
	r := env.room(t)
	p := env.waitPipeline(t, r, 1)

	boom := errors.New("ffmpeg exited with status 1")
	p.finish(ports.PipelineFailed, boom)
	env.waitPipeline(t, r, 2)

	failed := env.publisher.failed()
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed event, got %d", len(failed))
	}
	if failed[0].Track.Identifier != "a" {
		t.Errorf("expected failed track %q, got %q", "a", failed[0].Track.Identifier)
	}
	if !errors.Is(failed[0].Err, boom) {
		t.Errorf("expected failure cause %v, got %v", boom, failed[0].Err)
	}
	if got := env.snapshot(t).NowPlaying.Track.Identifier; got != "b" {
		t.Errorf("expected now playing %q, got %q", "b", got)
	}
}

func TestOrchestrator_SourceUnavailableAdvances(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	env.fetcher.errs[mockTrack("a").URL] = errors.New("video unavailable")

	env.enqueue(t, "a", "b")
	r := env.room(t)
	p := env.waitPipeline(t, r, 1)

	if p.spec.Input.Stream == nil {
		t.Error("expected second track to stream")
	}

	failed := env.publisher.failed()
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed event, got %d", len(failed))
	}
	if !errors.Is(failed[0].Err, domain.ErrSourceUnavailable) {
		t.Errorf("expected ErrSourceUnavailable, got %v", failed[0].Err)
	}
	if len(env.publisher.started()) != 1 {
		t.Errorf("expected only the second track to be announced, got %d",
			len(env.publisher.started()))
	}
}

func TestOrchestrator_LoopQueueStopsAfterEveryEntryFails(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	env.fetcher.errs[mockTrack("a").URL] = errors.New("unavailable")
	env.fetcher.errs[mockTrack("b").URL] = errors.New("unavailable")
	env.join(t)

	err := env.playback.SetLoopMode(context.Background(), SetLoopModeInput{
		GuildID: testGuildID,
		Mode:    domain.LoopModeQueue,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env.enqueue(t, "a", "b")

	waitFor(t, "both entries to fail", func() bool {
		return len(env.publisher.failed()) == 2
	})
	env.waitIdle(t)

	if got := len(env.snapshot(t).Queue); got != 2 {
		t.Errorf("expected loop queue to keep 2 entries, got %d", got)
	}
	if env.transcoder.count() != 0 {
		t.Errorf("expected no pipelines, got %d", env.transcoder.count())
	}
}

func TestOrchestrator_SpawnRetry(t *testing.T) {
	spawnErr := fmt.Errorf("%w: exec: ffmpeg not found", domain.ErrPipelineSpawnFailed)

	tests := []struct {
		name        string
		startErrs   []error
		wantStarted bool
		wantStreams int
	}{
		{
			name:        "one failure is retried",
			startErrs:   []error{spawnErr},
			wantStarted: true,
			wantStreams: 2,
		},
		{
			name:        "two failures fail the track",
			startErrs:   []error{spawnErr, spawnErr},
			wantStarted: false,
			wantStreams: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, OrchestratorConfig{})
			env.transcoder.failStarts(tt.startErrs...)

			env.enqueue(t, "a")
			r := env.room(t)

			if tt.wantStarted {
				env.waitPipeline(t, r, 1)
				if len(env.publisher.failed()) != 0 {
					t.Errorf("expected no failed events, got %d", len(env.publisher.failed()))
				}
			} else {
				waitFor(t, "failed event", func() bool {
					return len(env.publisher.failed()) == 1
				})
				env.waitIdle(t)
				if !errors.Is(env.publisher.failed()[0].Err, domain.ErrPipelineSpawnFailed) {
					t.Errorf("expected ErrPipelineSpawnFailed, got %v", env.publisher.failed()[0].Err)
				}
			}

			if got := env.fetcher.streamCount(); got != tt.wantStreams {
				t.Errorf("expected %d streams opened, got %d", tt.wantStreams, got)
			}
		})
	}
}

func TestOrchestrator_CachedSourceIsPlayedFromDisk(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{CacheEnabled: true})
	env.cache.setReady(mockTrack("a").URL, "/cache/a.webm")

	env.enqueue(t, "a", "b")
	r := env.room(t)
	p := env.waitPipeline(t, r, 1)

	if p.spec.Input.Path != "/cache/a.webm" {
		t.Errorf("expected cached path, got %q", p.spec.Input.Path)
	}
	if env.fetcher.streamCount() != 0 {
		t.Errorf("expected no streams, got %d", env.fetcher.streamCount())
	}

	p.finish(ports.PipelineFinished, nil)
	p = env.waitPipeline(t, r, 2)
	if p.spec.Input.Stream == nil {
		t.Error("expected uncached track to stream")
	}

	env.cache.mu.Lock()
	prefetched := append([]string(nil), env.cache.prefetched...)
	env.cache.mu.Unlock()
	if len(prefetched) != 1 || prefetched[0] != mockTrack("b").URL {
		t.Errorf("expected prefetch of second track, got %v", prefetched)
	}
}

func TestOrchestrator_CacheSkipsLongAndLiveTracks(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{
		CacheEnabled:     true,
		CacheMaxDuration: time.Minute,
	})

	tests := []struct {
		name  string
		track *domain.Track
		want  bool
	}{
		{name: "short track", track: &domain.Track{Duration: 30 * time.Second}, want: true},
		{name: "long track", track: &domain.Track{Duration: 3 * time.Minute}, want: false},
		{name: "live stream", track: &domain.Track{IsLive: true}, want: false},
		{name: "unknown duration", track: &domain.Track{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := env.orchestrator.cacheable(tt.track); got != tt.want {
				t.Errorf("expected cacheable %v, got %v", tt.want, got)
			}
		})
	}
}

func TestOrchestrator_StalePipelineEndIsIgnored(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	env.enqueue(t, "a", "b")
	r := env.room(t)
	p1 := env.waitPipeline(t, r, 1)

	_, err := env.playback.Skip(context.Background(), SkipInput{
		GuildID: testGuildID,
		UserID:  testRequesterID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.waitPipeline(t, r, 2)

	if !p1.isStopped() {
		t.Error("expected skipped pipeline to be stopped")
	}

	// The end of the detached pipeline must not advance the queue again.
	<-p1.Done()
	time.Sleep(20 * time.Millisecond)

	snapshot := env.snapshot(t)
	if got := snapshot.NowPlaying.Track.Identifier; got != "b" {
		t.Errorf("expected now playing %q, got %q", "b", got)
	}
	if env.transcoder.count() != 2 {
		t.Errorf("expected 2 pipelines, got %d", env.transcoder.count())
	}
}

func TestOrchestrator_Reconnect(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	ready := make(chan struct{})
	env.transport.ready = ready

	env.enqueue(t, "a")
	r := env.room(t)
	p := env.waitPipeline(t, r, 1)

	newChannel := snowflake.ID(11)
	err := env.voice.HandleBotVoiceStateChange(context.Background(), BotVoiceStateChangeInput{
		GuildID:      testGuildID,
		NewChannelID: &newChannel,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snapshot := env.snapshot(t)
	if !snapshot.Reconnecting {
		t.Error("expected room to be reconnecting")
	}
	if snapshot.VoiceChannelID != newChannel {
		t.Errorf("expected voice channel %d, got %d", newChannel, snapshot.VoiceChannelID)
	}
	if !p.isPaused() {
		t.Error("expected pipeline to be paused while reconnecting")
	}

	// Resume must not release frames before the connection is ready.
	err = env.playback.Resume(context.Background(), ResumeInput{GuildID: testGuildID})
	if !errors.Is(err, domain.ErrNotPaused) {
		t.Errorf("expected ErrNotPaused, got %v", err)
	}
	if !p.isPaused() {
		t.Error("expected pipeline to stay paused")
	}

	close(ready)
	waitFor(t, "reconnect to finish", func() bool {
		return !env.snapshot(t).Reconnecting
	})
	if p.isPaused() {
		t.Error("expected pipeline to resume after reconnect")
	}
}

func TestOrchestrator_ReconnectSameChannelIsIgnored(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	env.transport.ready = make(chan struct{})

	env.enqueue(t, "a")
	r := env.room(t)
	p := env.waitPipeline(t, r, 1)

	channel := testVoiceChannelID
	err := env.voice.HandleBotVoiceStateChange(context.Background(), BotVoiceStateChangeInput{
		GuildID:      testGuildID,
		NewChannelID: &channel,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if env.snapshot(t).Reconnecting {
		t.Error("expected no reconnect for an unchanged channel")
	}
	if p.isPaused() {
		t.Error("expected pipeline to keep playing")
	}
}

func TestOrchestrator_ReconnectTimeoutDestroysRoom(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{ReconnectTimeout: 30 * time.Millisecond})
	env.transport.ready = make(chan struct{})

	env.enqueue(t, "a")
	r := env.room(t)
	p := env.waitPipeline(t, r, 1)

	if err := env.voice.HandleVoiceServerUpdate(context.Background(), testGuildID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, "room to be destroyed", func() bool {
		_, ok := env.rooms.Get(testGuildID)
		return !ok
	})

	destroyed := env.publisher.destroyed()
	if len(destroyed) != 1 {
		t.Fatalf("expected 1 destroyed event, got %d", len(destroyed))
	}
	if !errors.Is(destroyed[0].Reason, domain.ErrVoiceReconnectTimeout) {
		t.Errorf("expected ErrVoiceReconnectTimeout, got %v", destroyed[0].Reason)
	}
	if !p.isStopped() {
		t.Error("expected pipeline to be stopped")
	}
	waitFor(t, "voice leave", func() bool {
		return env.transport.leaveCount() == 1
	})
}

func TestOrchestrator_IdleTimeout(t *testing.T) {
	t.Run("destroys idle room", func(t *testing.T) {
		env := newTestEnv(t, OrchestratorConfig{IdleTimeout: 30 * time.Millisecond})
		env.join(t)

		waitFor(t, "room to be destroyed", func() bool {
			_, ok := env.rooms.Get(testGuildID)
			return !ok
		})

		destroyed := env.publisher.destroyed()
		if len(destroyed) != 1 {
			t.Fatalf("expected 1 destroyed event, got %d", len(destroyed))
		}
		if !errors.Is(destroyed[0].Reason, domain.ErrIdleTimeout) {
			t.Errorf("expected ErrIdleTimeout, got %v", destroyed[0].Reason)
		}
	})

	t.Run("playing room is kept", func(t *testing.T) {
		env := newTestEnv(t, OrchestratorConfig{IdleTimeout: 30 * time.Millisecond})
		env.enqueue(t, "a")
		env.waitPipeline(t, env.room(t), 1)

		time.Sleep(80 * time.Millisecond)
		if _, ok := env.rooms.Get(testGuildID); !ok {
			t.Error("expected playing room to be kept")
		}
	})

	t.Run("stay connected keeps idle room", func(t *testing.T) {
		env := newTestEnv(t, OrchestratorConfig{IdleTimeout: 30 * time.Millisecond})
		env.settings.stored[testGuildID] = domain.RoomSettings{StayConnected: true}
		env.join(t)

		waitFor(t, "settings to load", func() bool {
			return env.snapshot(t).StayConnected
		})
		time.Sleep(80 * time.Millisecond)
		if _, ok := env.rooms.Get(testGuildID); !ok {
			t.Error("expected room to stay connected")
		}
	})
}

func TestOrchestrator_SettingsAreLoadedOnJoin(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	env.settings.stored[testGuildID] = domain.RoomSettings{
		LoopMode: domain.LoopModeQueue,
		Shuffle:  true,
		Filters:  []domain.Filter{domain.FilterBassBoost},
	}

	env.join(t)

	waitFor(t, "settings to load", func() bool {
		return env.snapshot(t).LoopMode == domain.LoopModeQueue
	})

	snapshot := env.snapshot(t)
	if !snapshot.Shuffle {
		t.Error("expected shuffle to be loaded")
	}
	if len(snapshot.Filters) != 1 || snapshot.Filters[0] != domain.FilterBassBoost {
		t.Errorf("expected bassboost filter, got %v", snapshot.Filters)
	}
}

func TestOrchestrator_CloseDestroysRooms(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	env.enqueue(t, "a")
	p := env.waitPipeline(t, env.room(t), 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env.orchestrator.Close(ctx)

	if _, ok := env.rooms.Get(testGuildID); ok {
		t.Error("expected room to be removed")
	}
	if !p.isStopped() {
		t.Error("expected pipeline to be stopped")
	}
	if env.transport.leaveCount() != 1 {
		t.Errorf("expected 1 leave, got %d", env.transport.leaveCount())
	}
	if len(env.publisher.finished()) != 1 {
		t.Errorf("expected 1 finished event, got %d", len(env.publisher.finished()))
	}
}

func TestOrchestrator_RejoinDuringDestroyWaitsForLeave(t *testing.T) {
	env := newTestEnv(t, OrchestratorConfig{})
	old := env.join(t)

	entered, release := env.publisher.hold()

	leaveErr := make(chan error, 1)
	go func() {
		leaveErr <- env.voice.Leave(context.Background(), LeaveInput{GuildID: testGuildID})
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for destroy to publish")
	}

	type joinResult struct {
		room    *Room
		created bool
		err     error
	}
	rejoined := make(chan joinResult, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		r, created, err := env.orchestrator.join(ctx, testGuildID, testVoiceChannelID, testNotificationChannelID)
		rejoined <- joinResult{room: r, created: created, err: err}
	}()

	time.Sleep(20 * time.Millisecond)
	if got := env.transport.joinCount(); got != 1 {
		t.Fatalf("expected rejoin to wait for the pending leave, got %d joins", got)
	}

	release()

	if err := <-leaveErr; err != nil {
		t.Fatalf("unexpected leave error: %v", err)
	}
	res := <-rejoined
	if res.err != nil {
		t.Fatalf("unexpected rejoin error: %v", res.err)
	}
	if !res.created || res.room == old {
		t.Fatal("expected a new room to be created")
	}

	log := env.transport.callLog()
	want := []string{"join", "leave", "join"}
	if len(log) != len(want) {
		t.Fatalf("expected transport calls %v, got %v", want, log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("expected transport calls %v, got %v", want, log)
		}
	}

	current := env.room(t)
	if current != res.room || current.state.IsDestroyed() {
		t.Error("expected the new room to stay registered")
	}
}
