package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/usecases"
)

type voiceEventService interface {
	HandleBotVoiceStateChange(ctx context.Context, input usecases.BotVoiceStateChangeInput) error
	HandleVoiceServerUpdate(ctx context.Context, guildID snowflake.ID) error
}

// EventHandlers handles Discord gateway events for the music player.
type EventHandlers struct {
	voiceChannel voiceEventService
}

// NewEventHandlers creates a new EventHandlers.
func NewEventHandlers(voiceChannel voiceEventService) *EventHandlers {
	return &EventHandlers{
		voiceChannel: voiceChannel,
	}
}

// HandleVoiceStateUpdate handles VoiceStateUpdate events for the bot.
func (h *EventHandlers) HandleVoiceStateUpdate(
	s *discordgo.Session,
	event *discordgo.VoiceStateUpdate,
) {
	if event.VoiceState == nil || !isBotUser(s, event.UserID) {
		return
	}

	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice state update", "error", err)
		return
	}

	// Parse the channel ID - nil means disconnected
	var newChannelID *snowflake.ID
	if event.ChannelID != "" {
		id, err := snowflake.Parse(event.ChannelID)
		if err != nil {
			slog.Error("failed to parse channel ID in voice state update", "error", err)
			return
		}
		newChannelID = &id
	}

	err = h.voiceChannel.HandleBotVoiceStateChange(context.Background(), usecases.BotVoiceStateChangeInput{
		GuildID:      guildID,
		NewChannelID: newChannelID,
	})
	if err != nil {
		slog.Error("failed to handle bot voice state change", "guild", guildID, "error", err)
	}
}

// HandleVoiceServerUpdate handles VoiceServerUpdate events.
// Discord sends one when the voice server of the bot's connection changes.
func (h *EventHandlers) HandleVoiceServerUpdate(
	_ *discordgo.Session,
	event *discordgo.VoiceServerUpdate,
) {
	guildID, err := snowflake.Parse(event.GuildID)
	if err != nil {
		slog.Error("failed to parse guild ID in voice server update", "error", err)
		return
	}

	if err := h.voiceChannel.HandleVoiceServerUpdate(context.Background(), guildID); err != nil {
		slog.Error("failed to handle voice server update", "guild", guildID, "error", err)
	}
}

func isBotUser(s *discordgo.Session, userID string) bool {
	if s == nil || s.State == nil || s.State.User == nil {
		return false
	}
	return s.State.User.ID == userID
}
