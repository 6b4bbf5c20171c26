package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// VoiceConnection is the bot's connection to one guild's voice channel.
type VoiceConnection interface {
	FrameSink

	// ChannelID returns the voice channel currently connected to.
	ChannelID() snowflake.ID

	// SetSpeaking updates the speaking indicator.
	SetSpeaking(speaking bool) error
}

// VoiceTransport joins and leaves voice channels.
type VoiceTransport interface {
	// Join connects to the voice channel, moving the connection if already in the guild.
	Join(ctx context.Context, guildID, channelID snowflake.ID) (VoiceConnection, error)

	// Leave disconnects from the guild's voice channel.
	Leave(ctx context.Context, guildID snowflake.ID) error

	// AwaitReady blocks until the guild's connection can carry audio again.
	AwaitReady(ctx context.Context, guildID snowflake.ID) error
}
