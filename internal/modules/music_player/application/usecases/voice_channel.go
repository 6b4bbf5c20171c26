package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

// JoinInput contains the input for the Join use case.
type JoinInput struct {
	GuildID               snowflake.ID
	UserID                snowflake.ID
	NotificationChannelID snowflake.ID
	VoiceChannelID        snowflake.ID // Optional: specific channel to join (0 means use user's channel)
}

// JoinOutput contains the result of the Join use case.
type JoinOutput struct {
	VoiceChannelID snowflake.ID
	Changed        bool // The room was created or moved
}

// LeaveInput contains the input for the Leave use case.
type LeaveInput struct {
	GuildID snowflake.ID
}

// BotVoiceStateChangeInput contains the input for handling bot voice state changes.
type BotVoiceStateChangeInput struct {
	GuildID      snowflake.ID
	NewChannelID *snowflake.ID // nil means disconnected
}

// VoiceChannelService handles voice channel operations.
type VoiceChannelService struct {
	orchestrator *Orchestrator
	voiceState   ports.VoiceStateProvider
}

// NewVoiceChannelService creates a new VoiceChannelService.
func NewVoiceChannelService(
	orchestrator *Orchestrator,
	voiceState ports.VoiceStateProvider,
) *VoiceChannelService {
	return &VoiceChannelService{
		orchestrator: orchestrator,
		voiceState:   voiceState,
	}
}

// Join joins the bot to a voice channel, creating the guild's room if needed.
func (v *VoiceChannelService) Join(ctx context.Context, input JoinInput) (*JoinOutput, error) {
	voiceChannelID, err := v.ResolveVoiceChannel(input.GuildID, input.UserID, input.VoiceChannelID)
	if err != nil {
		return nil, err
	}

	_, changed, err := v.orchestrator.join(
		ctx,
		input.GuildID,
		voiceChannelID,
		input.NotificationChannelID,
	)
	if err != nil {
		return nil, err
	}

	return &JoinOutput{VoiceChannelID: voiceChannelID, Changed: changed}, nil
}

// ResolveVoiceChannel returns channelID if set, otherwise the user's current voice channel.
func (v *VoiceChannelService) ResolveVoiceChannel(
	guildID, userID, channelID snowflake.ID,
) (snowflake.ID, error) {
	if channelID != 0 {
		return channelID, nil
	}

	userChannel, err := v.voiceState.GetUserVoiceChannel(guildID, userID)
	if err != nil {
		return 0, err
	}
	if userChannel == 0 {
		return 0, domain.ErrUserNotInVoice
	}
	return userChannel, nil
}

// Leave destroys the guild's room and waits for the bot to leave the voice channel.
func (v *VoiceChannelService) Leave(ctx context.Context, input LeaveInput) error {
	o := v.orchestrator
	r, err := o.room(input.GuildID)
	if err != nil {
		return err
	}

	err = o.do(ctx, r, func() error {
		o.destroy(r, nil)
		return nil
	})
	if err != nil {
		return err
	}

	return o.awaitLeave(ctx, input.GuildID)
}

// HandleBotVoiceStateChange handles external voice state changes (bot moved or disconnected).
// A disconnect destroys the room; a move pauses playback until the connection is ready.
func (v *VoiceChannelService) HandleBotVoiceStateChange(
	ctx context.Context,
	input BotVoiceStateChangeInput,
) error {
	o := v.orchestrator
	r, ok := o.rooms.Get(input.GuildID)
	if !ok {
		// No room exists, nothing to do
		return nil
	}

	if input.NewChannelID == nil {
		return o.do(ctx, r, func() error {
			o.destroy(r, nil)
			return nil
		})
	}

	return o.reconnect(ctx, r, *input.NewChannelID)
}

// HandleVoiceServerUpdate pauses playback while the voice connection is renegotiated.
func (v *VoiceChannelService) HandleVoiceServerUpdate(ctx context.Context, guildID snowflake.ID) error {
	r, ok := v.orchestrator.rooms.Get(guildID)
	if !ok {
		return nil
	}
	return v.orchestrator.reconnect(ctx, r, 0)
}

// Close destroys every room.
func (v *VoiceChannelService) Close(ctx context.Context) {
	v.orchestrator.Close(ctx)
}
