package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/bot"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/usecases"
)

// Discord accepts at most 25 autocomplete choices.
const maxAutocompleteChoices = 25

type autocompleteService interface {
	GetQueueTracks(ctx context.Context, input usecases.GetQueueTracksInput) *usecases.GetQueueTracksOutput
	SearchTracks(ctx context.Context, input usecases.SearchTracksInput) (*usecases.SearchTracksOutput, error)
}

// AutocompleteHandler handles autocomplete requests.
type AutocompleteHandler struct {
	autocomplete autocompleteService
}

// NewAutocompleteHandler creates a new AutocompleteHandler.
func NewAutocompleteHandler(autocomplete autocompleteService) *AutocompleteHandler {
	return &AutocompleteHandler{
		autocomplete: autocomplete,
	}
}

// Handle routes an autocomplete interaction to the handler for its command.
func (h *AutocompleteHandler) Handle(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	data := i.ApplicationCommandData()

	switch data.Name {
	case "play":
		return h.HandlePlay(s, i, r)
	case "queue":
		if len(data.Options) > 0 && data.Options[0].Name == "remove" {
			return h.HandleQueueRemove(s, i, r)
		}
	}
	return nil
}

// HandleQueueRemove suggests upcoming queue positions.
func (h *AutocompleteHandler) HandleQueueRemove(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
	guildID, err := snowflake.Parse(i.GuildID)
	if err != nil {
		slog.Warn("failed to parse guild ID in autocomplete", "error", err, "guildID", i.GuildID)
		return respondChoices(r, nil)
	}

	output := h.autocomplete.GetQueueTracks(context.Background(), usecases.GetQueueTracksInput{
		GuildID: guildID,
	})

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, min(len(output.Upcoming), maxAutocompleteChoices))
	for idx, entry := range output.Upcoming {
		if idx >= maxAutocompleteChoices {
			break
		}
		// Use 1-indexed positions to match queue list display
		displayPos := idx + 1
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%d. %s", displayPos, truncate(entry.Track.Title, 90)),
			Value: displayPos,
		})
	}

	return respondChoices(r, choices)
}

// HandlePlay suggests search results for the play query.
func (h *AutocompleteHandler) HandlePlay(
	_ *discordgo.Session,
	i *discordgo.InteractionCreate,
	r bot.Responder,
) error {
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

	// Don't search for very short queries
	if len([]rune(query)) < 2 {
		return respondChoices(r, nil)
	}

	result, err := h.autocomplete.SearchTracks(context.Background(), usecases.SearchTracksInput{
		Query:  query,
		Source: source,
		Limit:  10,
	})
	if err != nil {
		slog.Debug("autocomplete search failed", "query", query, "error", err)
		return respondChoices(r, nil)
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(result.Tracks))
	for _, track := range result.Tracks {
		// Choice values are limited to 100 characters.
		if track.URL == "" || len(track.URL) > 100 {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  truncate(fmt.Sprintf("%s - %s", track.Title, track.Artist), 100),
			Value: track.URL,
		})
	}

	return respondChoices(r, choices)
}

func respondChoices(r bot.Responder, choices []*discordgo.ApplicationCommandOptionChoice) error {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	return r.Respond(&discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
