package ports

import "github.com/sglre6355/roomcast/internal/modules/music_player/domain"

// EventPublisher defines the interface for publishing events asynchronously.
// Implementations must not block the caller.
type EventPublisher interface {
	PublishPlaybackStarted(event domain.PlaybackStartedEvent)
	PublishPlaybackFinished(event domain.PlaybackFinishedEvent)
	PublishPlaybackFailed(event domain.PlaybackFailedEvent)
	PublishRoomDestroyed(event domain.RoomDestroyedEvent)
}
