package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
	"golang.org/x/sync/errgroup"
)

// Embed colors.
const (
	colorRed  = 0xE74C3C
	colorBlue = 0x3498DB
)

const (
	youtubeThumbnailBase = "https://img.youtube.com/vi"
	thumbnailTimeout     = 5 * time.Second
)

// Ordered from best to worst.
var youtubeThumbnailQualities = []string{"maxresdefault", "sddefault", "hqdefault", "mqdefault"}

// Notifier sends notifications to Discord channels.
type Notifier struct {
	session    *discordgo.Session
	thumbnails *thumbnailResolver
}

// NewNotifier creates a new Notifier.
func NewNotifier(session *discordgo.Session) *Notifier {
	return &Notifier{
		session:    session,
		thumbnails: newThumbnailResolver(&http.Client{Timeout: thumbnailTimeout}, youtubeThumbnailBase),
	}
}

// SendNowPlaying sends a "Now Playing" embed to the channel and returns the message ID.
func (n *Notifier) SendNowPlaying(
	channelID snowflake.ID,
	info *ports.NowPlayingInfo,
) (snowflake.ID, error) {
	source := domain.ParseTrackSource(info.SourceName)

	ctx, cancel := context.WithTimeout(context.Background(), thumbnailTimeout)
	thumbnail := n.thumbnails.Resolve(ctx, source, info.Identifier, info.ArtworkURL)
	cancel()

	msg, err := n.session.ChannelMessageSendEmbed(
		channelID.String(),
		nowPlayingEmbed(info, source, thumbnail),
	)
	if err != nil {
		return 0, err
	}
	return snowflake.Parse(msg.ID)
}

// DeleteMessage deletes a message from the channel.
func (n *Notifier) DeleteMessage(channelID snowflake.ID, messageID snowflake.ID) error {
	return n.session.ChannelMessageDelete(channelID.String(), messageID.String())
}

// SendInfo sends a neutral status message embed to the channel.
func (n *Notifier) SendInfo(channelID snowflake.ID, message string) error {
	return n.sendDescription(channelID, message, colorBlue)
}

// SendError sends an error message embed to the channel.
func (n *Notifier) SendError(channelID snowflake.ID, message string) error {
	return n.sendDescription(channelID, message, colorRed)
}

func (n *Notifier) sendDescription(channelID snowflake.ID, message string, color int) error {
	_, err := n.session.ChannelMessageSendEmbed(channelID.String(), &discordgo.MessageEmbed{
		Description: message,
		Color:       color,
	})
	return err
}

func nowPlayingEmbed(
	info *ports.NowPlayingInfo,
	source domain.TrackSource,
	thumbnailURL string,
) *discordgo.MessageEmbed {
	duration := info.Duration
	if info.IsLive {
		duration = "LIVE"
	}

	embed := &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    "Now Playing",
			IconURL: source.IconURL(),
		},
		Title: info.Title,
		URL:   info.URL,
		Color: source.Color(),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Artist", Value: info.Artist, Inline: true},
			{Name: "Duration", Value: duration, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text:    "Requested by " + info.RequesterName,
			IconURL: info.RequesterAvatarURL,
		},
	}

	if !info.EnqueuedAt.IsZero() {
		embed.Timestamp = info.EnqueuedAt.UTC().Format(time.RFC3339)
	}
	if len(info.Filters) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   "Filters",
			Value:  strings.Join(info.Filters, ", "),
			Inline: true,
		})
	}
	if thumbnailURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: thumbnailURL}
	}

	return embed
}

// thumbnailResolver finds the best available artwork for a track.
// YouTube serves higher resolutions than resolvers report, so those are probed
// and the result is remembered per video.
type thumbnailResolver struct {
	client  *http.Client
	baseURL string
	cache   sync.Map // video ID -> URL
}

func newThumbnailResolver(client *http.Client, baseURL string) *thumbnailResolver {
	return &thumbnailResolver{client: client, baseURL: baseURL}
}

// Resolve returns the best thumbnail URL, or fallbackURL when nothing better exists.
func (r *thumbnailResolver) Resolve(
	ctx context.Context,
	source domain.TrackSource,
	identifier string,
	fallbackURL string,
) string {
	if source != domain.TrackSourceYouTube || identifier == "" {
		return fallbackURL
	}
	if cached, ok := r.cache.Load(identifier); ok {
		return cached.(string)
	}

	found := make([]bool, len(youtubeThumbnailQualities))
	g, ctx := errgroup.WithContext(ctx)
	for idx, quality := range youtubeThumbnailQualities {
		g.Go(func() error {
			found[idx] = r.exists(ctx, fmt.Sprintf("%s/%s/%s.jpg", r.baseURL, identifier, quality))
			return nil
		})
	}
	_ = g.Wait()

	for idx, ok := range found {
		if ok {
			url := fmt.Sprintf("%s/%s/%s.jpg", r.baseURL, identifier, youtubeThumbnailQualities[idx])
			r.cache.Store(identifier, url)
			return url
		}
	}

	// Not cached: the probes may have failed on a transient error.
	return fallbackURL
}

func (r *thumbnailResolver) exists(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Ensure Notifier implements ports.NotificationSender.
var _ ports.NotificationSender = (*Notifier)(nil)
