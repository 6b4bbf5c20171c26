package infrastructure

import (
	"context"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

// DefaultEventBufferSize is the default buffer size for event channels.
const DefaultEventBufferSize = 100

// Compile-time checks that ChannelEventBus implements ports interfaces.
var (
	_ ports.EventPublisher  = (*ChannelEventBus)(nil)
	_ ports.EventSubscriber = (*ChannelEventBus)(nil)
)

// topic is one event type's channel and handlers.
type topic[E any] struct {
	name     string
	ch       chan E
	handlers []func(context.Context, E)
}

func newTopic[E any](name string, bufferSize int) *topic[E] {
	return &topic[E]{name: name, ch: make(chan E, bufferSize)}
}

// ChannelEventBus provides a channel-based event bus for async event handling.
// Each event type is delivered by its own dispatcher goroutine, in publish order.
type ChannelEventBus struct {
	playbackStarted  *topic[domain.PlaybackStartedEvent]
	playbackFinished *topic[domain.PlaybackFinishedEvent]
	playbackFailed   *topic[domain.PlaybackFailedEvent]
	roomDestroyed    *topic[domain.RoomDestroyedEvent]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
	mu     sync.RWMutex
}

// NewChannelEventBus creates a new ChannelEventBus with the given buffer size.
func NewChannelEventBus(bufferSize int) *ChannelEventBus {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &ChannelEventBus{
		playbackStarted:  newTopic[domain.PlaybackStartedEvent]("PlaybackStarted", bufferSize),
		playbackFinished: newTopic[domain.PlaybackFinishedEvent]("PlaybackFinished", bufferSize),
		playbackFailed:   newTopic[domain.PlaybackFailedEvent]("PlaybackFailed", bufferSize),
		roomDestroyed:    newTopic[domain.RoomDestroyedEvent]("RoomDestroyed", bufferSize),
		ctx:              ctx,
		cancel:           cancel,
	}

	// Start dispatcher goroutines
	bus.wg.Add(4)
	go dispatch(bus, bus.playbackStarted)
	go dispatch(bus, bus.playbackFinished)
	go dispatch(bus, bus.playbackFailed)
	go dispatch(bus, bus.roomDestroyed)

	return bus
}

func dispatch[E any](b *ChannelEventBus, t *topic[E]) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-t.ch:
			if !ok {
				return
			}
			b.mu.RLock()
			handlers := t.handlers
			b.mu.RUnlock()
			for _, handler := range handlers {
				handler(b.ctx, event)
			}
		}
	}
}

// publish is non-blocking: if the channel buffer is full, the event is dropped with a warning.
func publish[E any](b *ChannelEventBus, t *topic[E], event E, guildID snowflake.ID) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		slog.Warn("attempted to publish to closed event bus", "type", t.name)
		return
	}

	select {
	case t.ch <- event:
		slog.Debug("published event", "type", t.name, "guild", guildID)
	default:
		slog.Warn("event buffer full, dropping event", "type", t.name, "guild", guildID)
	}
}

func subscribe[E any](b *ChannelEventBus, t *topic[E], handler func(context.Context, E)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.handlers = append(t.handlers, handler)
}

// --- EventPublisher interface ---

// PublishPlaybackStarted publishes a PlaybackStartedEvent.
func (b *ChannelEventBus) PublishPlaybackStarted(event domain.PlaybackStartedEvent) {
	publish(b, b.playbackStarted, event, event.GuildID)
}

// PublishPlaybackFinished publishes a PlaybackFinishedEvent.
func (b *ChannelEventBus) PublishPlaybackFinished(event domain.PlaybackFinishedEvent) {
	publish(b, b.playbackFinished, event, event.GuildID)
}

// PublishPlaybackFailed publishes a PlaybackFailedEvent.
func (b *ChannelEventBus) PublishPlaybackFailed(event domain.PlaybackFailedEvent) {
	publish(b, b.playbackFailed, event, event.GuildID)
}

// PublishRoomDestroyed publishes a RoomDestroyedEvent.
func (b *ChannelEventBus) PublishRoomDestroyed(event domain.RoomDestroyedEvent) {
	publish(b, b.roomDestroyed, event, event.GuildID)
}

// --- EventSubscriber interface ---

// OnPlaybackStarted registers a handler for PlaybackStartedEvent.
func (b *ChannelEventBus) OnPlaybackStarted(
	handler func(context.Context, domain.PlaybackStartedEvent),
) {
	subscribe(b, b.playbackStarted, handler)
}

// OnPlaybackFinished registers a handler for PlaybackFinishedEvent.
func (b *ChannelEventBus) OnPlaybackFinished(
	handler func(context.Context, domain.PlaybackFinishedEvent),
) {
	subscribe(b, b.playbackFinished, handler)
}

// OnPlaybackFailed registers a handler for PlaybackFailedEvent.
func (b *ChannelEventBus) OnPlaybackFailed(
	handler func(context.Context, domain.PlaybackFailedEvent),
) {
	subscribe(b, b.playbackFailed, handler)
}

// OnRoomDestroyed registers a handler for RoomDestroyedEvent.
func (b *ChannelEventBus) OnRoomDestroyed(
	handler func(context.Context, domain.RoomDestroyedEvent),
) {
	subscribe(b, b.roomDestroyed, handler)
}

// Close closes all event channels and stops dispatchers.
// After calling Close, publishing will no longer send events.
func (b *ChannelEventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	// Cancel context to stop dispatchers
	b.cancel()

	close(b.playbackStarted.ch)
	close(b.playbackFinished.ch)
	close(b.playbackFailed.ch)
	close(b.roomDestroyed.ch)

	// Wait for dispatchers to finish
	b.wg.Wait()

	slog.Debug("channel event bus closed")
}
