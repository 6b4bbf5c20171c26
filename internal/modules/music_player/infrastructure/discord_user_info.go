package infrastructure

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"golang.org/x/sync/singleflight"
)

const avatarSize = "64"

var _ ports.UserInfoProvider = (*DiscordUserInfoProvider)(nil)

// DiscordUserInfoProvider resolves member display info from the session state,
// falling back to the REST API and caching the result in the state.
type DiscordUserInfoProvider struct {
	session *discordgo.Session
	fetches singleflight.Group
}

// NewDiscordUserInfoProvider creates a new DiscordUserInfoProvider.
func NewDiscordUserInfoProvider(session *discordgo.Session) *DiscordUserInfoProvider {
	return &DiscordUserInfoProvider{session: session}
}

// GetUserInfo returns display info for a user in a guild.
func (p *DiscordUserInfoProvider) GetUserInfo(
	guildID, userID snowflake.ID,
) (*ports.UserInfo, error) {
	if member, err := p.session.State.Member(guildID.String(), userID.String()); err == nil &&
		member.User != nil {
		return memberUserInfo(member), nil
	}

	// Concurrent notifications for the same requester share one request.
	v, err, _ := p.fetches.Do(guildID.String()+"/"+userID.String(), func() (any, error) {
		member, err := p.session.GuildMember(guildID.String(), userID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to fetch guild member: %w", err)
		}
		if err := p.session.State.MemberAdd(member); err != nil {
			slog.Debug("failed to cache guild member", "guild", guildID, "user", userID, "error", err)
		}
		return member, nil
	})
	if err != nil {
		return nil, err
	}

	return memberUserInfo(v.(*discordgo.Member)), nil
}

func memberUserInfo(member *discordgo.Member) *ports.UserInfo {
	return &ports.UserInfo{
		DisplayName: displayName(member),
		AvatarURL:   member.AvatarURL(avatarSize),
	}
}

// displayName prefers the guild nickname, then the global display name, then the username.
func displayName(member *discordgo.Member) string {
	switch {
	case member.Nick != "":
		return member.Nick
	case member.User.GlobalName != "":
		return member.User.GlobalName
	default:
		return member.User.Username
	}
}
