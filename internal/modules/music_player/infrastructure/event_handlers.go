package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

type nowPlayingMessage struct {
	playbackID string
	channelID  snowflake.ID
	messageID  snowflake.ID
}

// NotificationEventHandler handles events related to Discord notifications.
// It posts and deletes "Now Playing" messages and reports failures.
type NotificationEventHandler struct {
	notifier     ports.NotificationSender
	subscriber   ports.EventSubscriber
	userInfoProv ports.UserInfoProvider

	mu       sync.Mutex
	messages map[snowflake.ID]nowPlayingMessage
	// finished holds playback IDs whose finish arrived before their start was handled.
	finished map[string]struct{}
}

// NewNotificationEventHandler creates a new NotificationEventHandler.
func NewNotificationEventHandler(
	notifier ports.NotificationSender,
	subscriber ports.EventSubscriber,
	userInfoProv ports.UserInfoProvider,
) *NotificationEventHandler {
	return &NotificationEventHandler{
		notifier:     notifier,
		subscriber:   subscriber,
		userInfoProv: userInfoProv,
		messages:     make(map[snowflake.ID]nowPlayingMessage),
		finished:     make(map[string]struct{}),
	}
}

// Start registers event handlers with the subscriber.
func (h *NotificationEventHandler) Start() {
	h.subscriber.OnPlaybackStarted(h.handlePlaybackStarted)
	h.subscriber.OnPlaybackFinished(h.handlePlaybackFinished)
	h.subscriber.OnPlaybackFailed(h.handlePlaybackFailed)
	h.subscriber.OnRoomDestroyed(h.handleRoomDestroyed)

	slog.Debug("notification event handler started")
}

func (h *NotificationEventHandler) handlePlaybackStarted(
	_ context.Context,
	event domain.PlaybackStartedEvent,
) {
	h.mu.Lock()
	if _, ok := h.finished[event.PlaybackID]; ok {
		delete(h.finished, event.PlaybackID)
		h.mu.Unlock()
		slog.Debug("skipping now playing notification, playback already finished",
			"guild", event.GuildID,
			"playback", event.PlaybackID,
		)
		return
	}
	h.mu.Unlock()

	if event.NotificationChannelID == 0 || event.Entry == nil {
		return
	}

	track := event.Entry.Track

	slog.Debug("sending now playing notification",
		"guild", event.GuildID,
		"track", track.Title,
	)

	// Fetch requester display info via port
	var requesterName, requesterAvatarURL string
	if h.userInfoProv != nil && event.Entry.RequesterID != 0 {
		userInfo, err := h.userInfoProv.GetUserInfo(event.GuildID, event.Entry.RequesterID)
		if err != nil {
			slog.Warn("failed to fetch requester info for now playing",
				"guild", event.GuildID,
				"requester", event.Entry.RequesterID,
				"error", err,
			)
			requesterName = "Unknown"
		} else {
			requesterName = userInfo.DisplayName
			requesterAvatarURL = userInfo.AvatarURL
		}
	}

	filters := make([]string, len(event.Filters))
	for i, f := range event.Filters {
		filters[i] = string(f)
	}

	messageID, err := h.notifier.SendNowPlaying(event.NotificationChannelID, &ports.NowPlayingInfo{
		Identifier:         track.Identifier,
		Title:              track.Title,
		Artist:             track.Artist,
		Duration:           track.FormattedDuration(),
		URL:                track.URL,
		ArtworkURL:         track.ArtworkURL,
		SourceName:         track.SourceName,
		IsLive:             track.IsLive,
		Filters:            filters,
		RequesterID:        event.Entry.RequesterID,
		RequesterName:      requesterName,
		RequesterAvatarURL: requesterAvatarURL,
		EnqueuedAt:         event.Entry.EnqueuedAt,
	})
	if err != nil {
		slog.Error("failed to send now playing notification",
			"guild", event.GuildID,
			"error", err,
		)
		return
	}

	h.mu.Lock()
	_, finishedMeanwhile := h.finished[event.PlaybackID]
	if finishedMeanwhile {
		delete(h.finished, event.PlaybackID)
	}
	previous, hadPrevious := h.messages[event.GuildID]
	if !finishedMeanwhile {
		h.messages[event.GuildID] = nowPlayingMessage{
			playbackID: event.PlaybackID,
			channelID:  event.NotificationChannelID,
			messageID:  messageID,
		}
	}
	h.mu.Unlock()

	if finishedMeanwhile {
		h.deleteMessage(event.GuildID, event.NotificationChannelID, messageID)
	}
	if hadPrevious && !finishedMeanwhile {
		h.deleteMessage(event.GuildID, previous.channelID, previous.messageID)
	}
}

func (h *NotificationEventHandler) handlePlaybackFinished(
	_ context.Context,
	event domain.PlaybackFinishedEvent,
) {
	h.mu.Lock()
	msg, ok := h.messages[event.GuildID]
	if !ok || msg.playbackID != event.PlaybackID {
		h.finished[event.PlaybackID] = struct{}{}
		h.mu.Unlock()
		return
	}
	delete(h.messages, event.GuildID)
	h.mu.Unlock()

	h.deleteMessage(event.GuildID, msg.channelID, msg.messageID)
}

func (h *NotificationEventHandler) handlePlaybackFailed(
	_ context.Context,
	event domain.PlaybackFailedEvent,
) {
	if event.NotificationChannelID == 0 {
		return
	}

	title := "the track"
	if event.Track != nil {
		title = fmt.Sprintf("**%s**", event.Track.Title)
	}

	message := fmt.Sprintf("Could not play %s, skipping.", title)
	if errors.Is(event.Err, domain.ErrSourceUnavailable) {
		message = fmt.Sprintf("%s is unavailable, skipping.", title)
	}

	if err := h.notifier.SendError(event.NotificationChannelID, message); err != nil {
		slog.Warn("failed to send playback failure notification",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) handleRoomDestroyed(
	_ context.Context,
	event domain.RoomDestroyedEvent,
) {
	h.mu.Lock()
	msg, ok := h.messages[event.GuildID]
	delete(h.messages, event.GuildID)
	h.mu.Unlock()

	if ok {
		h.deleteMessage(event.GuildID, msg.channelID, msg.messageID)
	}

	if event.Reason == nil || event.NotificationChannelID == 0 {
		return
	}

	message := fmt.Sprintf("Disconnected: %s.", event.Reason)
	if err := h.notifier.SendInfo(event.NotificationChannelID, message); err != nil {
		slog.Warn("failed to send room destroyed notification",
			"guild", event.GuildID,
			"error", err,
		)
	}
}

func (h *NotificationEventHandler) deleteMessage(guildID, channelID, messageID snowflake.ID) {
	slog.Debug("deleting now playing message",
		"guild", guildID,
		"message_id", messageID,
	)

	if err := h.notifier.DeleteMessage(channelID, messageID); err != nil {
		slog.Warn("failed to delete now playing message",
			"guild", guildID,
			"error", err,
		)
	}
}
