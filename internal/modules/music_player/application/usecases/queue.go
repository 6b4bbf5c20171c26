package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

const DefaultPageSize = 10

// EnqueueInput contains the input for the Enqueue use case.
type EnqueueInput struct {
	GuildID               snowflake.ID
	RequesterID           snowflake.ID
	Tracks                []*domain.Track
	VoiceChannelID        snowflake.ID // Optional: joined when the guild has no room yet
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// EnqueueOutput contains the result of the Enqueue use case.
type EnqueueOutput struct {
	Entries        []*domain.QueuedTrack
	Position       int  // 1-indexed position of the first entry among upcoming tracks
	StartedPlaying bool // The first entry started playing immediately
}

// QueueListInput contains the input for the QueueList use case.
type QueueListInput struct {
	GuildID               snowflake.ID
	Page                  int          // 1-indexed page number
	PageSize              int          // Items per page (optional, defaults to 10)
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// QueueListOutput contains the result of the QueueList use case.
type QueueListOutput struct {
	NowPlaying  *domain.QueuedTrack
	Position    time.Duration
	Tracks      []*domain.QueuedTrack // Upcoming tracks on this page
	FirstNumber int                   // 1-indexed number of Tracks[0]
	TotalTracks int
	CurrentPage int
	TotalPages  int
	LoopMode    domain.LoopMode
	Shuffle     bool
}

// QueueRemoveInput contains the input for the QueueRemove use case.
type QueueRemoveInput struct {
	GuildID               snowflake.ID
	Position              int          // 1-indexed position among upcoming tracks
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// QueueRemoveOutput contains the result of the QueueRemove use case.
type QueueRemoveOutput struct {
	RemovedTrack *domain.Track
}

// QueueClearInput contains the input for the QueueClear use case.
type QueueClearInput struct {
	GuildID               snowflake.ID
	NotificationChannelID snowflake.ID // Optional: updates notification channel if non-zero
}

// QueueClearOutput contains the result of the QueueClear use case.
type QueueClearOutput struct {
	ClearedCount int
}

// QueueService handles queue operations.
type QueueService struct {
	orchestrator *Orchestrator
}

// NewQueueService creates a new QueueService.
func NewQueueService(orchestrator *Orchestrator) *QueueService {
	return &QueueService{orchestrator: orchestrator}
}

// Enqueue adds tracks to the queue and starts playing the first one if the room is idle.
func (q *QueueService) Enqueue(ctx context.Context, input EnqueueInput) (*EnqueueOutput, error) {
	if len(input.Tracks) == 0 {
		return nil, domain.ErrNoResults
	}

	r, err := q.orchestrator.room(input.GuildID)
	if errors.Is(err, domain.ErrRoomNotFound) && input.VoiceChannelID != 0 {
		r, _, err = q.orchestrator.join(
			ctx,
			input.GuildID,
			input.VoiceChannelID,
			input.NotificationChannelID,
		)
	}
	if err != nil {
		return nil, err
	}

	return callRoom(ctx, r, func() (*EnqueueOutput, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		out := &EnqueueOutput{}
		for _, track := range input.Tracks {
			out.Entries = append(out.Entries, r.state.Queue().Add(track, input.RequesterID))
		}

		first := out.Entries[0]
		if r.state.Status() == domain.RoomStatusIdle {
			r.state.ResetFailures()
			q.orchestrator.launch(r, launchRequest{entry: first, announce: true})
			out.StartedPlaying = true
			return out, nil
		}

		out.Position = upcomingPosition(r.state, first.Key)
		return out, nil
	})
}

// List returns the upcoming tracks with pagination.
func (q *QueueService) List(ctx context.Context, input QueueListInput) (*QueueListOutput, error) {
	r, err := q.orchestrator.room(input.GuildID)
	if err != nil {
		return nil, err
	}

	snapshot, err := callRoom(ctx, r, func() (*RoomSnapshot, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)
		return r.snapshot(), nil
	})
	if err != nil {
		return nil, err
	}

	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	page := input.Page
	if page <= 0 {
		page = 1
	}

	upcoming := upcomingTracks(snapshot.Queue, snapshot.NowPlaying)

	// Pagination applies to upcoming tracks only
	totalTracks := len(upcoming)
	totalPages := (totalTracks + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	// Clamp page to valid range
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := min(start+pageSize, totalTracks)

	var pageTracks []*domain.QueuedTrack
	if start < totalTracks {
		pageTracks = upcoming[start:end]
	}

	return &QueueListOutput{
		NowPlaying:  snapshot.NowPlaying,
		Position:    snapshot.Position,
		Tracks:      pageTracks,
		FirstNumber: start + 1,
		TotalTracks: totalTracks,
		CurrentPage: page,
		TotalPages:  totalPages,
		LoopMode:    snapshot.LoopMode,
		Shuffle:     snapshot.Shuffle,
	}, nil
}

// Remove removes an upcoming track. The now-playing track must be skipped instead.
func (q *QueueService) Remove(ctx context.Context, input QueueRemoveInput) (*QueueRemoveOutput, error) {
	r, err := q.orchestrator.room(input.GuildID)
	if err != nil {
		return nil, err
	}

	return callRoom(ctx, r, func() (*QueueRemoveOutput, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		upcoming := upcomingTracks(r.state.Queue().List(), r.state.NowPlaying())
		if len(upcoming) == 0 {
			return nil, domain.ErrQueueEmpty
		}
		if input.Position < 1 || input.Position > len(upcoming) {
			return nil, domain.ErrInvalidPosition
		}

		entry := upcoming[input.Position-1]
		r.state.Queue().Remove(entry.Key)

		return &QueueRemoveOutput{RemovedTrack: entry.Track}, nil
	})
}

// Clear removes every upcoming track and keeps the now-playing one.
func (q *QueueService) Clear(ctx context.Context, input QueueClearInput) (*QueueClearOutput, error) {
	r, err := q.orchestrator.room(input.GuildID)
	if err != nil {
		return nil, err
	}

	return callRoom(ctx, r, func() (*QueueClearOutput, error) {
		r.state.SetNotificationChannelID(input.NotificationChannelID)

		upcoming := upcomingTracks(r.state.Queue().List(), r.state.NowPlaying())
		if len(upcoming) == 0 {
			if r.state.Queue().IsEmpty() {
				return nil, domain.ErrQueueEmpty
			}
			return nil, domain.ErrNothingToClear
		}

		for _, entry := range upcoming {
			r.state.Queue().Remove(entry.Key)
		}

		return &QueueClearOutput{ClearedCount: len(upcoming)}, nil
	})
}

// upcomingTracks returns the queue without the now-playing entry.
func upcomingTracks(queue []*domain.QueuedTrack, nowPlaying *domain.QueuedTrack) []*domain.QueuedTrack {
	if nowPlaying == nil {
		return queue
	}
	upcoming := make([]*domain.QueuedTrack, 0, len(queue))
	for _, entry := range queue {
		if entry.Key != nowPlaying.Key {
			upcoming = append(upcoming, entry)
		}
	}
	return upcoming
}

func upcomingPosition(state *domain.RoomState, key domain.QueueKey) int {
	for i, entry := range upcomingTracks(state.Queue().List(), state.NowPlaying()) {
		if entry.Key == key {
			return i + 1
		}
	}
	return 0
}
