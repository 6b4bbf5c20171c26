package usecases

import (
	"context"
	"fmt"

	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

// LoadTracksInput contains the input for the LoadTracks use case.
type LoadTracksInput struct {
	Query  string
	Source domain.SearchSource // Search source for free-text queries (optional, defaults to YouTube)
}

// LoadTracksOutput contains the result of the LoadTracks use case.
type LoadTracksOutput struct {
	Tracks       []*domain.Track // All tracks for a playlist, otherwise the best match
	PlaylistName string
}

// TrackLoaderService handles track loading operations.
type TrackLoaderService struct {
	trackResolver ports.TrackResolver
}

// NewTrackLoaderService creates a new TrackLoaderService.
func NewTrackLoaderService(trackResolver ports.TrackResolver) *TrackLoaderService {
	return &TrackLoaderService{
		trackResolver: trackResolver,
	}
}

// LoadTracks resolves the query into playable tracks.
func (s *TrackLoaderService) LoadTracks(
	ctx context.Context,
	input LoadTracksInput,
) (*LoadTracksOutput, error) {
	query := domain.NewSearchQuery(input.Query, input.Source)
	if query.IsEmpty() {
		return nil, domain.ErrNoResults
	}

	result, err := s.trackResolver.LoadTracks(ctx, query.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load tracks: %w", err)
	}

	if result.Type == ports.LoadTypeEmpty || result.Type == ports.LoadTypeError ||
		len(result.Tracks) == 0 {
		return nil, domain.ErrNoResults
	}

	infos := result.Tracks
	if result.Type != ports.LoadTypePlaylist {
		infos = infos[:1]
	}

	out := &LoadTracksOutput{PlaylistName: result.PlaylistName}
	for _, info := range infos {
		track := toDomainTrack(info)
		if !track.IsValid() {
			continue
		}
		out.Tracks = append(out.Tracks, track)
	}
	if len(out.Tracks) == 0 {
		return nil, domain.ErrNoResults
	}

	return out, nil
}

// SearchTracksInput contains the input for the SearchTracks use case.
type SearchTracksInput struct {
	Query  string
	Source domain.SearchSource
	Limit  int
}

// SearchTracksOutput contains the result of the SearchTracks use case.
type SearchTracksOutput struct {
	Tracks       []*ports.TrackInfo
	IsPlaylist   bool
	PlaylistName string
	TrackCount   int // Total tracks before the limit was applied
}

// SearchTracks searches for tracks matching the query.
func (s *TrackLoaderService) SearchTracks(
	ctx context.Context,
	input SearchTracksInput,
) (*SearchTracksOutput, error) {
	query := domain.NewSearchQuery(input.Query, input.Source)
	if query.IsEmpty() {
		return &SearchTracksOutput{Tracks: nil}, nil
	}

	result, err := s.trackResolver.LoadTracks(ctx, query.String())
	if err != nil {
		return nil, err
	}

	if result.Type == ports.LoadTypeEmpty || result.Type == ports.LoadTypeError {
		return &SearchTracksOutput{Tracks: nil}, nil
	}

	limit := input.Limit
	if limit <= 0 || limit > len(result.Tracks) {
		limit = len(result.Tracks)
	}

	return &SearchTracksOutput{
		Tracks:       result.Tracks[:limit],
		IsPlaylist:   result.Type == ports.LoadTypePlaylist,
		PlaylistName: result.PlaylistName,
		TrackCount:   len(result.Tracks),
	}, nil
}

func toDomainTrack(info *ports.TrackInfo) *domain.Track {
	return &domain.Track{
		Identifier: info.Identifier,
		URL:        info.URL,
		Title:      info.Title,
		Artist:     info.Artist,
		Duration:   info.Duration,
		ArtworkURL: info.ArtworkURL,
		SourceName: info.SourceName,
		IsLive:     info.IsLive,
	}
}
