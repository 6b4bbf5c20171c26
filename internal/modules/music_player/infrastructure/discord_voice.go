package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
)

const (
	maxJoinAttempts  = 3
	joinRetryDelay   = time.Second
	frameSendTimeout = time.Second
	readyPollPeriod  = 250 * time.Millisecond
)

var errNoVoiceConnection = errors.New("no voice connection")

// Ensure DiscordVoiceTransport implements ports.VoiceTransport.
var _ ports.VoiceTransport = (*DiscordVoiceTransport)(nil)

// DiscordVoiceTransport connects to voice channels through discordgo.
type DiscordVoiceTransport struct {
	session *discordgo.Session
}

// NewDiscordVoiceTransport creates a new DiscordVoiceTransport.
func NewDiscordVoiceTransport(session *discordgo.Session) *DiscordVoiceTransport {
	return &DiscordVoiceTransport{session: session}
}

// Join connects to the voice channel, retrying with a linear backoff.
func (t *DiscordVoiceTransport) Join(
	ctx context.Context,
	guildID, channelID snowflake.ID,
) (ports.VoiceConnection, error) {
	var lastErr error
	for attempt := 1; attempt <= maxJoinAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, err := t.session.ChannelVoiceJoin(guildID.String(), channelID.String(), false, true)
		if err == nil {
			slog.Info("joined voice channel", "guild", guildID, "channel", channelID)
			return &discordVoiceConnection{session: t.session, guildID: guildID}, nil
		}

		lastErr = err
		slog.Warn("voice join attempt failed",
			"guild", guildID,
			"channel", channelID,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(joinRetryDelay * time.Duration(attempt)):
		}
	}

	return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", maxJoinAttempts, lastErr)
}

// Leave disconnects from the guild's voice channel.
func (t *DiscordVoiceTransport) Leave(_ context.Context, guildID snowflake.ID) error {
	vc := lookupVoiceConnection(t.session, guildID)
	if vc == nil {
		return nil
	}

	if err := vc.Disconnect(); err != nil {
		return fmt.Errorf("failed to leave voice channel: %w", err)
	}

	slog.Info("left voice channel", "guild", guildID)
	return nil
}

// AwaitReady polls the connection until discordgo reports it ready again.
func (t *DiscordVoiceTransport) AwaitReady(ctx context.Context, guildID snowflake.ID) error {
	ticker := time.NewTicker(readyPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		vc := lookupVoiceConnection(t.session, guildID)
		if vc == nil {
			continue
		}

		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()

		if ready {
			return nil
		}
	}
}

func lookupVoiceConnection(session *discordgo.Session, guildID snowflake.ID) *discordgo.VoiceConnection {
	session.RLock()
	defer session.RUnlock()

	return session.VoiceConnections[guildID.String()]
}

// discordVoiceConnection resolves the live discordgo connection on every call,
// so frames keep flowing after discordgo replaces it during a reconnect.
type discordVoiceConnection struct {
	session *discordgo.Session
	guildID snowflake.ID
}

func (c *discordVoiceConnection) ChannelID() snowflake.ID {
	vc := lookupVoiceConnection(c.session, c.guildID)
	if vc == nil {
		return 0
	}

	vc.RLock()
	channelID := vc.ChannelID
	vc.RUnlock()

	id, err := snowflake.Parse(channelID)
	if err != nil {
		return 0
	}
	return id
}

func (c *discordVoiceConnection) SetSpeaking(speaking bool) error {
	vc := lookupVoiceConnection(c.session, c.guildID)
	if vc == nil {
		return errNoVoiceConnection
	}
	return vc.Speaking(speaking)
}

// SendFrame hands one Opus frame to discordgo, which paces delivery at 20ms.
func (c *discordVoiceConnection) SendFrame(ctx context.Context, frame []byte) error {
	timer := time.NewTimer(frameSendTimeout)
	defer timer.Stop()

	// A nil channel blocks, so a missing connection waits out the timeout like a full one.
	var send chan []byte
	if vc := lookupVoiceConnection(c.session, c.guildID); vc != nil {
		send = vc.OpusSend
	}

	select {
	case send <- frame:
		return nil
	case <-timer.C:
		return ports.ErrFrameDropped
	case <-ctx.Done():
		return ctx.Err()
	}
}
