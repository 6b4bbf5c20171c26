package usecases

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

// DefaultAutocompleteLimit is the most choices Discord accepts in one autocomplete response.
const DefaultAutocompleteLimit = 25

// GetQueueTracksInput contains the input for the GetQueueTracks use case.
type GetQueueTracksInput struct {
	GuildID snowflake.ID
}

// GetQueueTracksOutput contains the output for the GetQueueTracks use case.
type GetQueueTracksOutput struct {
	NowPlaying *domain.QueuedTrack
	Upcoming   []*domain.QueuedTrack
}

// AutocompleteService handles autocomplete-related operations.
type AutocompleteService struct {
	orchestrator *Orchestrator
	trackLoader  *TrackLoaderService
}

// NewAutocompleteService creates a new AutocompleteService.
func NewAutocompleteService(
	orchestrator *Orchestrator,
	trackLoader *TrackLoaderService,
) *AutocompleteService {
	return &AutocompleteService{
		orchestrator: orchestrator,
		trackLoader:  trackLoader,
	}
}

// GetQueueTracks returns the current queue for autocomplete suggestions.
// A guild without a room yields an empty result.
func (s *AutocompleteService) GetQueueTracks(
	ctx context.Context,
	input GetQueueTracksInput,
) *GetQueueTracksOutput {
	r, err := s.orchestrator.room(input.GuildID)
	if err != nil {
		return &GetQueueTracksOutput{}
	}

	out, err := callRoom(ctx, r, func() (*GetQueueTracksOutput, error) {
		nowPlaying := r.state.NowPlaying()
		return &GetQueueTracksOutput{
			NowPlaying: nowPlaying,
			Upcoming:   upcomingTracks(r.state.Queue().List(), nowPlaying),
		}, nil
	})
	if err != nil {
		return &GetQueueTracksOutput{}
	}
	return out
}

// SearchTracks searches for tracks matching the query.
// This is a pass-through to TrackLoaderService.SearchTracks.
func (s *AutocompleteService) SearchTracks(
	ctx context.Context,
	input SearchTracksInput,
) (*SearchTracksOutput, error) {
	if s.trackLoader == nil || input.Query == "" {
		return &SearchTracksOutput{Tracks: nil}, nil
	}

	if input.Limit <= 0 {
		input.Limit = DefaultAutocompleteLimit
	}
	return s.trackLoader.SearchTracks(ctx, input)
}
