package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/bot"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/usecases"
)

// Embed colors.
const (
	colorSuccess = 0x08c404
	colorError   = 0xE74C3C
)

type voiceChannelService interface {
	Join(ctx context.Context, input usecases.JoinInput) (*usecases.JoinOutput, error)
	Leave(ctx context.Context, input usecases.LeaveInput) error
	ResolveVoiceChannel(guildID, userID, channelID snowflake.ID) (snowflake.ID, error)
}

type playbackService interface {
	Pause(ctx context.Context, input usecases.PauseInput) error
	Resume(ctx context.Context, input usecases.ResumeInput) error
	Skip(ctx context.Context, input usecases.SkipInput) (*usecases.SkipOutput, error)
	Seek(ctx context.Context, input usecases.SeekInput) (*usecases.SeekOutput, error)
	Stop(ctx context.Context, input usecases.StopInput) error
	SetLoopMode(ctx context.Context, input usecases.SetLoopModeInput) error
	CycleLoopMode(ctx context.Context, input usecases.CycleLoopModeInput) (*usecases.CycleLoopModeOutput, error)
	SetShuffle(ctx context.Context, input usecases.SetShuffleInput) error
	ToggleShuffle(ctx context.Context, input usecases.ToggleShuffleInput) (bool, error)
	SetStayConnected(ctx context.Context, input usecases.SetStayConnectedInput) error
	SetFilter(ctx context.Context, input usecases.SetFilterInput) (*usecases.SetFilterOutput, error)
	GetSnapshot(ctx context.Context, guildID snowflake.ID) (*usecases.RoomSnapshot, error)
}

type queueService interface {
	Enqueue(ctx context.Context, input usecases.EnqueueInput) (*usecases.EnqueueOutput, error)
	List(ctx context.Context, input usecases.QueueListInput) (*usecases.QueueListOutput, error)
	Remove(ctx context.Context, input usecases.QueueRemoveInput) (*usecases.QueueRemoveOutput, error)
	Clear(ctx context.Context, input usecases.QueueClearInput) (*usecases.QueueClearOutput, error)
}

type trackLoader interface {
	LoadTracks(ctx context.Context, input usecases.LoadTracksInput) (*usecases.LoadTracksOutput, error)
}

// Errors whose message is shown to the user as is.
var userErrors = []error{
	usecases.ErrNotConnected,
	usecases.ErrRoomDestroyed,
	usecases.ErrUserNotInVoice,
	usecases.ErrNotInSameChannel,
	usecases.ErrNotPlaying,
	usecases.ErrAlreadyPaused,
	usecases.ErrNotPaused,
	usecases.ErrNoResults,
	usecases.ErrQueueEmpty,
	usecases.ErrNothingToClear,
	usecases.ErrInvalidPosition,
	usecases.ErrInvalidTimestamp,
	usecases.ErrUnknownFilter,
	usecases.ErrBusy,
	usecases.ErrSeekRejected,
	usecases.ErrNotCached,
	usecases.ErrSourceUnavailable,
}

// CommandHandlers holds all the command handlers.
type CommandHandlers struct {
	voiceChannel voiceChannelService
	playback     playbackService
	queue        queueService
	trackLoader  trackLoader
	djRoleName   string
}

// NewCommandHandlers creates new CommandHandlers.
// Members holding a role named djRoleName skip tracks without a vote.
func NewCommandHandlers(
	voiceChannel voiceChannelService,
	playback playbackService,
	queue queueService,
	trackLoader trackLoader,
	djRoleName string,
) *CommandHandlers {
	return &CommandHandlers{
		voiceChannel: voiceChannel,
		playback:     playback,
		queue:        queue,
		trackLoader:  trackLoader,
		djRoleName:   djRoleName,
	}
}

// HandleJoin handles the /join command.
func (h *CommandHandlers) HandleJoin(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return respondError(r, "Invalid user")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var voiceChannelID snowflake.ID
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "channel" {
			voiceChannelID, err = snowflake.Parse(opt.ChannelValue(s).ID)
			if err != nil {
				return respondError(r, "Invalid voice channel")
			}
		}
	}

	output, err := h.voiceChannel.Join(ctx, usecases.JoinInput{
		GuildID:               guildID,
		UserID:                userID,
		NotificationChannelID: notificationChannelID,
		VoiceChannelID:        voiceChannelID,
	})
	if err != nil {
		return respondServiceError(r, "join", guildID, err)
	}

	if !output.Changed {
		return respondSuccess(r, fmt.Sprintf("Already connected to <#%d>.", output.VoiceChannelID))
	}
	return respondSuccess(r, fmt.Sprintf("Connected to <#%d>.", output.VoiceChannelID))
}

// HandleLeave handles the /leave command.
func (h *CommandHandlers) HandleLeave(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	if err := h.voiceChannel.Leave(ctx, usecases.LeaveInput{GuildID: guildID}); err != nil {
		return respondServiceError(r, "leave", guildID, err)
	}

	return respondSuccess(r, "Disconnected.")
}

// HandlePlay handles the /play command.
func (h *CommandHandlers) HandlePlay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return respondError(r, "Invalid user")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var query string
	var source usecases.SearchSource
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "query":
			query = opt.StringValue()
		case "source":
			source = usecases.SearchSource(opt.StringValue())
		}
	}

	// The channel is only joined when the guild has no room yet.
	voiceChannelID, err := h.voiceChannel.ResolveVoiceChannel(guildID, userID, 0)
	if err != nil {
		return respondServiceError(r, "play", guildID, err)
	}

	// Resolving and fetching can take longer than the interaction window
	if err := r.Defer(); err != nil {
		return err
	}

	loaded, err := h.trackLoader.LoadTracks(ctx, usecases.LoadTracksInput{
		Query:  query,
		Source: source,
	})
	if err != nil {
		return respondServiceError(r, "play", guildID, err)
	}

	output, err := h.queue.Enqueue(ctx, usecases.EnqueueInput{
		GuildID:               guildID,
		RequesterID:           userID,
		Tracks:                loaded.Tracks,
		VoiceChannelID:        voiceChannelID,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "play", guildID, err)
	}

	var description string
	switch {
	case loaded.PlaylistName != "" || len(output.Entries) > 1:
		name := loaded.PlaylistName
		if name == "" {
			name = "playlist"
		}
		description = fmt.Sprintf(
			"Added **%d tracks** from **%s** to the queue.",
			len(output.Entries),
			name,
		)
	case output.StartedPlaying:
		description = fmt.Sprintf("Playing %s.", trackLink(output.Entries[0].Track))
	default:
		description = fmt.Sprintf(
			"Added %s to the queue at position %d.",
			trackLink(output.Entries[0].Track),
			output.Position,
		)
	}

	return respondSuccess(r, description)
}

// HandleStop handles the /stop command.
func (h *CommandHandlers) HandleStop(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var keepQueue bool
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "keep_queue" {
			keepQueue = opt.BoolValue()
		}
	}

	err = h.playback.Stop(ctx, usecases.StopInput{
		GuildID:               guildID,
		ClearQueue:            !keepQueue,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "stop", guildID, err)
	}

	if keepQueue {
		return respondSuccess(r, "Stopped playback. The queue was kept.")
	}
	return respondSuccess(r, "Stopped playback.")
}

// HandlePause handles the /pause command.
func (h *CommandHandlers) HandlePause(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	err = h.playback.Pause(ctx, usecases.PauseInput{
		GuildID:               guildID,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "pause", guildID, err)
	}

	return respondSuccess(r, "Paused playback.")
}

// HandleResume handles the /resume command.
func (h *CommandHandlers) HandleResume(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	err = h.playback.Resume(ctx, usecases.ResumeInput{
		GuildID:               guildID,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "resume", guildID, err)
	}

	return respondSuccess(r, "Resumed playback.")
}

// HandleSkip handles the /skip command.
func (h *CommandHandlers) HandleSkip(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	userID, err := snowflake.Parse(i.Member.User.ID)
	if err != nil {
		return respondError(r, "Invalid user")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	output, err := h.playback.Skip(ctx, usecases.SkipInput{
		GuildID:               guildID,
		UserID:                userID,
		Privileged:            h.isPrivileged(s, i),
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "skip", guildID, err)
	}

	var description string
	switch {
	case output.Skipped:
		description = fmt.Sprintf("Skipped %s.", trackLink(output.Track))
	case output.Voted:
		description = fmt.Sprintf(
			"Voted to skip %s (%d/%d).",
			trackLink(output.Track),
			output.Votes,
			output.Required,
		)
	default:
		description = fmt.Sprintf(
			"Withdrew your vote to skip %s (%d/%d).",
			trackLink(output.Track),
			output.Votes,
			output.Required,
		)
	}

	return respondSuccess(r, description)
}

// isPrivileged reports whether the member may skip without a vote.
func (h *CommandHandlers) isPrivileged(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if i.Member.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0 {
		return true
	}
	if h.djRoleName == "" || s == nil || s.State == nil {
		return false
	}

	for _, roleID := range i.Member.Roles {
		role, err := s.State.Role(i.GuildID, roleID)
		if err != nil {
			continue
		}
		if strings.EqualFold(role.Name, h.djRoleName) {
			return true
		}
	}
	return false
}

// HandleSeek handles the /seek command.
func (h *CommandHandlers) HandleSeek(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var raw string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "position" {
			raw = opt.StringValue()
		}
	}

	position, err := usecases.ParsePosition(raw)
	if err != nil {
		return respondServiceError(r, "seek", guildID, err)
	}

	// Seeking may wait for the source to finish caching
	if err := r.Defer(); err != nil {
		return err
	}

	output, err := h.playback.Seek(ctx, usecases.SeekInput{
		GuildID:               guildID,
		Position:              position,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "seek", guildID, err)
	}

	return respondSuccess(r, fmt.Sprintf(
		"Jumped to %s in %s.",
		usecases.FormatPosition(output.Position),
		trackLink(output.Track),
	))
}

// HandleNowPlaying handles the /nowplaying command.
func (h *CommandHandlers) HandleNowPlaying(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	snapshot, err := h.playback.GetSnapshot(ctx, guildID)
	if err != nil {
		return respondServiceError(r, "nowplaying", guildID, err)
	}
	if snapshot.NowPlaying == nil {
		return respondError(r, capitalize(usecases.ErrNotPlaying.Error()))
	}

	track := snapshot.NowPlaying.Track
	progress := "LIVE"
	if !track.IsLive {
		progress = fmt.Sprintf(
			"%s / %s",
			usecases.FormatPosition(snapshot.Position),
			track.FormattedDuration(),
		)
	}
	if snapshot.Status == usecases.RoomStatusPaused {
		progress += " (paused)"
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: trackLink(track),
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Position", Value: progress, Inline: true},
			{Name: "Requested by", Value: fmt.Sprintf("<@%d>", snapshot.NowPlaying.RequesterID), Inline: true},
			{Name: "Loop", Value: snapshot.LoopMode.String(), Inline: true},
		},
	}
	if snapshot.Shuffle {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Shuffle", Value: "on", Inline: true,
		})
	}
	if len(snapshot.Filters) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Filters", Value: formatFilters(snapshot.Filters), Inline: true,
		})
	}
	if track.ArtworkURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: track.ArtworkURL}
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// HandleQueue handles the /queue command.
func (h *CommandHandlers) HandleQueue(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return respondError(r, "Invalid subcommand")
	}

	subCmd := options[0]
	switch subCmd.Name {
	case "list":
		return h.handleQueueList(s, i, r, subCmd.Options)
	case "remove":
		return h.handleQueueRemove(s, i, r, subCmd.Options)
	case "clear":
		return h.handleQueueClear(s, i, r)
	default:
		return respondError(r, "Unknown subcommand")
	}
}

func (h *CommandHandlers) handleQueueList(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	page := 1
	for _, opt := range options {
		if opt.Name == "page" {
			page = int(opt.IntValue())
		}
	}

	output, err := h.queue.List(ctx, usecases.QueueListInput{
		GuildID:               guildID,
		Page:                  page,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "queue list", guildID, err)
	}

	// Build title with loop mode indicator
	title := "Queue"
	switch output.LoopMode {
	case usecases.LoopModeTrack:
		title = "Queue \U0001F502" // 🔂
	case usecases.LoopModeQueue:
		title = "Queue \U0001F501" // 🔁
	}
	if output.Shuffle {
		title += " \U0001F500" // 🔀
	}

	embed := &discordgo.MessageEmbed{
		Title: title,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d/%d", output.CurrentPage, output.TotalPages),
		},
	}

	if output.NowPlaying == nil && output.TotalTracks == 0 {
		embed.Description = "Queue is empty."
		return r.Respond(&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Embeds: []*discordgo.MessageEmbed{embed},
			},
		})
	}

	var sb strings.Builder
	if output.NowPlaying != nil {
		sb.WriteString("### Now Playing\n")
		track := output.NowPlaying.Track
		if track.IsLive {
			fmt.Fprintf(&sb, "%s `LIVE`\n", trackLink(track))
		} else {
			fmt.Fprintf(
				&sb,
				"%s `%s / %s`\n",
				trackLink(track),
				usecases.FormatPosition(output.Position),
				track.FormattedDuration(),
			)
		}
	}

	if len(output.Tracks) > 0 {
		sb.WriteString("### Up Next\n")
		for idx, entry := range output.Tracks {
			writeTrackLine(&sb, output.FirstNumber+idx, entry.Track)
		}
	}

	embed.Description = sb.String()

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

func (h *CommandHandlers) handleQueueRemove(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var position int
	for _, opt := range options {
		if opt.Name == "position" {
			position = int(opt.IntValue())
		}
	}

	output, err := h.queue.Remove(ctx, usecases.QueueRemoveInput{
		GuildID:               guildID,
		Position:              position,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "queue remove", guildID, err)
	}

	return respondSuccess(r, fmt.Sprintf("Removed %s.", trackLink(output.RemovedTrack)))
}

func (h *CommandHandlers) handleQueueClear(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	output, err := h.queue.Clear(ctx, usecases.QueueClearInput{
		GuildID:               guildID,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "queue clear", guildID, err)
	}

	return respondSuccess(r, fmt.Sprintf("Cleared **%d** tracks from the queue.", output.ClearedCount))
}

// HandleLoop handles the /loop command.
func (h *CommandHandlers) HandleLoop(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var modeStr string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "mode" {
			modeStr = opt.StringValue()
		}
	}

	var newMode usecases.LoopMode
	if modeStr != "" {
		mode, err := usecases.ParseLoopMode(modeStr)
		if err != nil {
			return respondError(r, err.Error())
		}
		err = h.playback.SetLoopMode(ctx, usecases.SetLoopModeInput{
			GuildID:               guildID,
			Mode:                  mode,
			NotificationChannelID: notificationChannelID,
		})
		if err != nil {
			return respondServiceError(r, "loop", guildID, err)
		}
		newMode = mode
	} else {
		output, err := h.playback.CycleLoopMode(ctx, usecases.CycleLoopModeInput{
			GuildID:               guildID,
			NotificationChannelID: notificationChannelID,
		})
		if err != nil {
			return respondServiceError(r, "loop", guildID, err)
		}
		newMode = output.NewMode
	}

	var description string
	switch newMode {
	case usecases.LoopModeTrack:
		description = "Now looping the current track."
	case usecases.LoopModeQueue:
		description = "Now looping the queue."
	default:
		description = "Loop disabled."
	}

	return respondSuccess(r, description)
}

// HandleShuffle handles the /shuffle command.
func (h *CommandHandlers) HandleShuffle(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var enabled *bool
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "enabled" {
			v := opt.BoolValue()
			enabled = &v
		}
	}

	var shuffle bool
	if enabled != nil {
		err = h.playback.SetShuffle(ctx, usecases.SetShuffleInput{
			GuildID:               guildID,
			Enabled:               *enabled,
			NotificationChannelID: notificationChannelID,
		})
		shuffle = *enabled
	} else {
		shuffle, err = h.playback.ToggleShuffle(ctx, usecases.ToggleShuffleInput{
			GuildID:               guildID,
			NotificationChannelID: notificationChannelID,
		})
	}
	if err != nil {
		return respondServiceError(r, "shuffle", guildID, err)
	}

	if shuffle {
		return respondSuccess(r, "Shuffle enabled.")
	}
	return respondSuccess(r, "Shuffle disabled.")
}

// HandleFilter handles the /filter command.
func (h *CommandHandlers) HandleFilter(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var name string
	var enabled bool
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "name":
			name = opt.StringValue()
		case "enabled":
			enabled = opt.BoolValue()
		}
	}

	filter, err := usecases.ParseFilter(name)
	if err != nil {
		return respondServiceError(r, "filter", guildID, err)
	}

	output, err := h.playback.SetFilter(ctx, usecases.SetFilterInput{
		GuildID:               guildID,
		Filter:                filter,
		Enabled:               enabled,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "filter", guildID, err)
	}

	var description string
	switch {
	case !output.Changed && enabled:
		description = fmt.Sprintf("**%s** is already enabled.", filter)
	case !output.Changed:
		description = fmt.Sprintf("**%s** is not enabled.", filter)
	case enabled:
		description = fmt.Sprintf("Enabled **%s**.", filter)
	default:
		description = fmt.Sprintf("Disabled **%s**.", filter)
	}

	active := "none"
	if len(output.Filters) > 0 {
		active = formatFilters(output.Filters)
	}

	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: description,
					Color:       colorSuccess,
					Footer: &discordgo.MessageEmbedFooter{
						Text: "Active filters: " + active,
					},
				},
			},
		},
	})
}

// HandleStay handles the /stay command.
func (h *CommandHandlers) HandleStay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	ctx := context.Background()

	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		return respondError(r, "Invalid guild")
	}

	notificationChannelID, err := snowflake.Parse(i.ChannelID)
	if err != nil {
		return respondError(r, "Invalid notification channel")
	}

	var enabled bool
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "enabled" {
			enabled = opt.BoolValue()
		}
	}

	err = h.playback.SetStayConnected(ctx, usecases.SetStayConnectedInput{
		GuildID:               guildID,
		Enabled:               enabled,
		NotificationChannelID: notificationChannelID,
	})
	if err != nil {
		return respondServiceError(r, "stay", guildID, err)
	}

	if enabled {
		return respondSuccess(r, "I will stay in the voice channel when nothing is playing.")
	}
	return respondSuccess(r, "I will leave the voice channel after a while when nothing is playing.")
}

// Response helpers.

func respondError(r bot.Responder, message string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Title:       "Error",
					Description: message,
					Color:       colorError,
				},
			},
		},
	})
}

// respondServiceError shows known errors to the user and logs the rest.
func respondServiceError(r bot.Responder, command string, guildID snowflake.ID, err error) error {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return respondError(r, capitalize(err.Error()))
		}
	}

	slog.Error("command failed", "command", command, "guild", guildID, "error", err)
	return respondError(r, "Something went wrong. Please try again later.")
}

func respondSuccess(r bot.Responder, description string) error {
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{
					Description: description,
					Color:       colorSuccess,
				},
			},
		},
	})
}

func trackLink(track *usecases.Track) string {
	if track.URL != "" {
		return fmt.Sprintf("[%s](%s)", track.Title, track.URL)
	}
	return fmt.Sprintf("**%s**", track.Title)
}

// writeTrackLine writes a single track line to the string builder.
// Escapes period to prevent Discord markdown list formatting.
func writeTrackLine(sb *strings.Builder, displayIndex int, track *usecases.Track) {
	fmt.Fprintf(
		sb,
		"%d\\. %s - %s `%s`\n",
		displayIndex,
		trackLink(track),
		track.Artist,
		track.FormattedDuration(),
	)
}

func formatFilters(filters []usecases.Filter) string {
	names := make([]string, len(filters))
	for i, f := range filters {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
