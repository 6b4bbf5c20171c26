package usecases

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

const (
	testGuildID               = snowflake.ID(1)
	testVoiceChannelID        = snowflake.ID(10)
	testNotificationChannelID = snowflake.ID(20)
	testRequesterID           = snowflake.ID(100)
)

func mockTrack(id string) *domain.Track {
	return &domain.Track{
		Identifier: id,
		URL:        "https://youtube.com/watch?v=" + id,
		Title:      "Track " + id,
		Artist:     "Artist",
		Duration:   3 * time.Minute,
		SourceName: "youtube",
	}
}

func mockTracks(ids ...string) []*domain.Track {
	tracks := make([]*domain.Track, len(ids))
	for i, id := range ids {
		tracks[i] = mockTrack(id)
	}
	return tracks
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

type fakeRegistry struct {
	mu    sync.Mutex
	rooms map[snowflake.ID]*Room
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{rooms: make(map[snowflake.ID]*Room)}
}

func (f *fakeRegistry) Get(guildID snowflake.ID) (*Room, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rooms[guildID]
	return r, ok
}

func (f *fakeRegistry) LoadOrStore(guildID snowflake.ID, room *Room) (*Room, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.rooms[guildID]; ok {
		return existing, true
	}
	f.rooms[guildID] = room
	return room, false
}

func (f *fakeRegistry) CompareAndDelete(guildID snowflake.ID, room *Room) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rooms[guildID] != room {
		return false
	}
	delete(f.rooms, guildID)
	return true
}

func (f *fakeRegistry) All() []*Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	rooms := make([]*Room, 0, len(f.rooms))
	for _, r := range f.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

type fakeConnection struct {
	channelID snowflake.ID
}

func (c *fakeConnection) SendFrame(_ context.Context, _ []byte) error { return nil }
func (c *fakeConnection) ChannelID() snowflake.ID                     { return c.channelID }
func (c *fakeConnection) SetSpeaking(_ bool) error                    { return nil }

type fakeTransport struct {
	mu      sync.Mutex
	joins   []snowflake.ID
	leaves  int
	calls   []string // "join" and "leave" in call order
	joinErr error

	// ready, when set, blocks AwaitReady until closed.
	ready chan struct{}
}

func (f *fakeTransport) Join(_ context.Context, _, channelID snowflake.ID) (ports.VoiceConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	f.joins = append(f.joins, channelID)
	f.calls = append(f.calls, "join")
	return &fakeConnection{channelID: channelID}, nil
}

func (f *fakeTransport) Leave(_ context.Context, _ snowflake.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	f.calls = append(f.calls, "leave")
	return nil
}

func (f *fakeTransport) AwaitReady(ctx context.Context, _ snowflake.ID) error {
	f.mu.Lock()
	ready := f.ready
	f.mu.Unlock()

	if ready == nil {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joins)
}

func (f *fakeTransport) leaveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaves
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakePipeline struct {
	id   string
	spec ports.PipelineSpec
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	paused   bool
	stopped  bool
	position time.Duration
	result   ports.PipelineResult
}

func (p *fakePipeline) ID() string { return p.id }

func (p *fakePipeline) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.finish(ports.PipelineStopped, nil)
}

func (p *fakePipeline) Done() <-chan struct{} { return p.done }

func (p *fakePipeline) Result() ports.PipelineResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *fakePipeline) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePipeline) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = paused
}

func (p *fakePipeline) finish(reason ports.PipelineEndReason, err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.result = ports.PipelineResult{Reason: reason, Err: err}
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakePipeline) setPosition(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = d
}

func (p *fakePipeline) isPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *fakePipeline) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

type fakeTranscoder struct {
	mu        sync.Mutex
	pipelines []*fakePipeline
	startErrs []error // Consumed one per Start call

	// block, when set, holds Start until closed.
	block chan struct{}
}

func (f *fakeTranscoder) Start(ctx context.Context, spec ports.PipelineSpec) (ports.Pipeline, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.startErrs) > 0 {
		err := f.startErrs[0]
		f.startErrs = f.startErrs[1:]
		if err != nil {
			if spec.Input.Stream != nil {
				_ = spec.Input.Stream.Close()
			}
			return nil, err
		}
	}

	p := &fakePipeline{
		id:   fmt.Sprintf("pipeline-%d", len(f.pipelines)+1),
		spec: spec,
		done: make(chan struct{}),
	}
	f.pipelines = append(f.pipelines, p)
	return p, nil
}

// hold makes Start block until the returned release func is called.
func (f *fakeTranscoder) hold() (release func()) {
	ch := make(chan struct{})
	f.mu.Lock()
	f.block = ch
	f.mu.Unlock()
	return sync.OnceFunc(func() {
		f.mu.Lock()
		f.block = nil
		f.mu.Unlock()
		close(ch)
	})
}

func (f *fakeTranscoder) failStarts(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErrs = append(f.startErrs, errs...)
}

func (f *fakeTranscoder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pipelines)
}

func (f *fakeTranscoder) at(i int) *fakePipeline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pipelines[i]
}

type fakeFetcher struct {
	mu      sync.Mutex
	streams int
	errs    map[string]error // URL -> stream error
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _ string) error {
	return nil
}

func (f *fakeFetcher) Stream(_ context.Context, url string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	f.streams++
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeFetcher) streamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

type fakeCache struct {
	mu         sync.Mutex
	ready      map[string]ports.CacheHandle
	inProgress map[string]chan struct{}
	prefetched []string
	waiters    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		ready:      make(map[string]ports.CacheHandle),
		inProgress: make(map[string]chan struct{}),
	}
}

func (f *fakeCache) IsReady(url string) bool {
	_, ok := f.Lookup(url)
	return ok
}

func (f *fakeCache) IsInProgress(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.inProgress[url]
	return ok
}

func (f *fakeCache) Lookup(url string) (ports.CacheHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.ready[url]
	return h, ok
}

func (f *fakeCache) Acquire(ctx context.Context, url string) (ports.CacheHandle, error) {
	return f.Await(ctx, url)
}

func (f *fakeCache) Await(ctx context.Context, url string) (ports.CacheHandle, error) {
	f.mu.Lock()
	if h, ok := f.ready[url]; ok {
		f.mu.Unlock()
		return h, nil
	}
	ch, ok := f.inProgress[url]
	if !ok {
		f.mu.Unlock()
		return ports.CacheHandle{}, domain.ErrNotCached
	}
	f.waiters++
	f.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return ports.CacheHandle{}, ctx.Err()
	}

	if h, ok := f.Lookup(url); ok {
		return h, nil
	}
	return ports.CacheHandle{}, fmt.Errorf("%w: download failed", domain.ErrCacheFetchFailed)
}

func (f *fakeCache) Prefetch(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetched = append(f.prefetched, url)
}

func (f *fakeCache) setReady(url, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready[url] = ports.CacheHandle{URL: url, Path: path}
}

func (f *fakeCache) startFetch(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inProgress[url] = make(chan struct{})
}

// completeFetch finishes an in-progress fetch; an empty path fails it.
func (f *fakeCache) completeFetch(url, path string) {
	f.mu.Lock()
	ch := f.inProgress[url]
	delete(f.inProgress, url)
	if path != "" {
		f.ready[url] = ports.CacheHandle{URL: url, Path: path}
	}
	f.mu.Unlock()
	close(ch)
}

func (f *fakeCache) waiterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.waiters
}

type fakeSettingsStore struct {
	mu     sync.Mutex
	stored map[snowflake.ID]domain.RoomSettings
	saves  int
}

func newFakeSettingsStore() *fakeSettingsStore {
	return &fakeSettingsStore{stored: make(map[snowflake.ID]domain.RoomSettings)}
}

func (f *fakeSettingsStore) Load(
	_ context.Context,
	guildID snowflake.ID,
) (domain.RoomSettings, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stored[guildID]
	return s, ok, nil
}

func (f *fakeSettingsStore) Save(_ context.Context, guildID snowflake.ID, s domain.RoomSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[guildID] = s
	f.saves++
	return nil
}

func (f *fakeSettingsStore) get(guildID snowflake.ID) (domain.RoomSettings, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stored[guildID]
	return s, ok
}

type mockVoiceStateProvider struct {
	mu        sync.Mutex
	channels  map[snowflake.ID]snowflake.ID // userID -> channelID
	listeners int
	err       error
	countErr  error
}

func newMockVoiceStateProvider() *mockVoiceStateProvider {
	return &mockVoiceStateProvider{channels: make(map[snowflake.ID]snowflake.ID)}
}

func (m *mockVoiceStateProvider) GetUserVoiceChannel(_, userID snowflake.ID) (snowflake.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.channels[userID], nil
}

func (m *mockVoiceStateProvider) CountListeners(_, _ snowflake.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.listeners, nil
}

func (m *mockVoiceStateProvider) setListeners(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = n
}

func (m *mockVoiceStateProvider) setCountErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countErr = err
}

func (m *mockVoiceStateProvider) putUser(userID, channelID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[userID] = channelID
}

type mockEventPublisher struct {
	mu               sync.Mutex
	playbackStarted  []domain.PlaybackStartedEvent
	playbackFinished []domain.PlaybackFinishedEvent
	playbackFailed   []domain.PlaybackFailedEvent
	roomDestroyed    []domain.RoomDestroyedEvent

	// holdDestroyed, when set, blocks PublishRoomDestroyed until closed.
	// destroyedEntered is closed once it is blocked.
	holdDestroyed    chan struct{}
	destroyedEntered chan struct{}
}

// hold makes the next PublishRoomDestroyed block. It returns a channel closed once
// the publish is blocked and a release func.
func (m *mockEventPublisher) hold() (<-chan struct{}, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdDestroyed = make(chan struct{})
	m.destroyedEntered = make(chan struct{})
	release := m.holdDestroyed
	return m.destroyedEntered, func() { close(release) }
}

func (m *mockEventPublisher) PublishPlaybackStarted(event domain.PlaybackStartedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbackStarted = append(m.playbackStarted, event)
}

func (m *mockEventPublisher) PublishPlaybackFinished(event domain.PlaybackFinishedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbackFinished = append(m.playbackFinished, event)
}

func (m *mockEventPublisher) PublishPlaybackFailed(event domain.PlaybackFailedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playbackFailed = append(m.playbackFailed, event)
}

func (m *mockEventPublisher) PublishRoomDestroyed(event domain.RoomDestroyedEvent) {
	m.mu.Lock()
	m.roomDestroyed = append(m.roomDestroyed, event)
	hold, entered := m.holdDestroyed, m.destroyedEntered
	m.holdDestroyed, m.destroyedEntered = nil, nil
	m.mu.Unlock()

	if hold != nil {
		close(entered)
		<-hold
	}
}

func (m *mockEventPublisher) started() []domain.PlaybackStartedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PlaybackStartedEvent(nil), m.playbackStarted...)
}

func (m *mockEventPublisher) finished() []domain.PlaybackFinishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PlaybackFinishedEvent(nil), m.playbackFinished...)
}

func (m *mockEventPublisher) failed() []domain.PlaybackFailedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PlaybackFailedEvent(nil), m.playbackFailed...)
}

func (m *mockEventPublisher) destroyed() []domain.RoomDestroyedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RoomDestroyedEvent(nil), m.roomDestroyed...)
}

type testEnv struct {
	rooms      *fakeRegistry
	transport  *fakeTransport
	transcoder *fakeTranscoder
	fetcher    *fakeFetcher
	cache      *fakeCache
	settings   *fakeSettingsStore
	voiceState *mockVoiceStateProvider
	publisher  *mockEventPublisher

	orchestrator *Orchestrator
	playback     *PlaybackService
	queue        *QueueService
	voice        *VoiceChannelService
}

func newTestEnv(t *testing.T, cfg OrchestratorConfig) *testEnv {
	t.Helper()

	env := &testEnv{
		rooms:      newFakeRegistry(),
		transport:  &fakeTransport{},
		transcoder: &fakeTranscoder{},
		fetcher:    &fakeFetcher{errs: make(map[string]error)},
		cache:      newFakeCache(),
		settings:   newFakeSettingsStore(),
		voiceState: newMockVoiceStateProvider(),
		publisher:  &mockEventPublisher{},
	}
	env.voiceState.putUser(testRequesterID, testVoiceChannelID)

	env.orchestrator = NewOrchestrator(cfg, OrchestratorDeps{
		Rooms:      env.rooms,
		Transport:  env.transport,
		Transcoder: env.transcoder,
		Fetcher:    env.fetcher,
		Cache:      env.cache,
		Settings:   env.settings,
		VoiceState: env.voiceState,
		Publisher:  env.publisher,
	})
	env.orchestrator.pick = func(int) int { return 0 }

	env.playback = NewPlaybackService(env.orchestrator, env.voiceState)
	env.queue = NewQueueService(env.orchestrator)
	env.voice = NewVoiceChannelService(env.orchestrator, env.voiceState)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		env.orchestrator.Close(ctx)
	})

	return env
}

func (env *testEnv) join(t *testing.T) *Room {
	t.Helper()
	_, err := env.voice.Join(context.Background(), JoinInput{
		GuildID:               testGuildID,
		UserID:                testRequesterID,
		NotificationChannelID: testNotificationChannelID,
	})
	if err != nil {
		t.Fatalf("unexpected join error: %v", err)
	}
	return env.room(t)
}

func (env *testEnv) room(t *testing.T) *Room {
	t.Helper()
	r, ok := env.rooms.Get(testGuildID)
	if !ok {
		t.Fatal("expected room to exist")
	}
	return r
}

func (env *testEnv) enqueue(t *testing.T, ids ...string) []*domain.QueuedTrack {
	t.Helper()
	out, err := env.queue.Enqueue(context.Background(), EnqueueInput{
		GuildID:               testGuildID,
		RequesterID:           testRequesterID,
		Tracks:                mockTracks(ids...),
		VoiceChannelID:        testVoiceChannelID,
		NotificationChannelID: testNotificationChannelID,
	})
	if err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	return out.Entries
}

func (env *testEnv) snapshot(t *testing.T) *RoomSnapshot {
	t.Helper()
	s, err := env.playback.GetSnapshot(context.Background(), testGuildID)
	if err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	return s
}

// attached returns the pipeline currently attached to r.
func attached(r *Room) ports.Pipeline {
	p, err := callRoom(context.Background(), r, func() (ports.Pipeline, error) {
		return r.pipeline, nil
	})
	if err != nil {
		return nil
	}
	return p
}

// waitPipeline waits until the n-th pipeline has been started and attached to r.
func (env *testEnv) waitPipeline(t *testing.T, r *Room, n int) *fakePipeline {
	t.Helper()
	waitFor(t, fmt.Sprintf("pipeline %d to attach", n), func() bool {
		if env.transcoder.count() < n {
			return false
		}
		return attached(r) == ports.Pipeline(env.transcoder.at(n-1))
	})
	return env.transcoder.at(n - 1)
}

func (env *testEnv) waitIdle(t *testing.T) {
	t.Helper()
	waitFor(t, "room to become idle", func() bool {
		return env.snapshot(t).Status == domain.RoomStatusIdle
	})
}
