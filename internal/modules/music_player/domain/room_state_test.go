package domain

import (
	"errors"
	"testing"

	"github.com/disgoorg/snowflake/v2"
)

func newTestRoom(titles ...string) (*RoomState, []*QueuedTrack) {
	s := NewRoomState(snowflake.ID(1), snowflake.ID(2), snowflake.ID(3))
	entries := make([]*QueuedTrack, 0, len(titles))
	for _, title := range titles {
		entries = append(entries, s.Queue().Add(&Track{Title: title, URL: "https://example.com/" + title}, 0))
	}
	return s, entries
}

func firstPick(int) int { return 0 }

func TestRoomState_Status(t *testing.T) {
	s, entries := newTestRoom("a")

	if s.Status() != RoomStatusIdle {
		t.Errorf("expected idle, got %s", s.Status())
	}
	s.SetNowPlaying(entries[0])
	if s.Status() != RoomStatusPlaying {
		t.Errorf("expected playing, got %s", s.Status())
	}
	s.SetPaused(true)
	if s.Status() != RoomStatusPaused {
		t.Errorf("expected paused, got %s", s.Status())
	}
	s.Destroy()
	if s.Status() != RoomStatusDestroyed {
		t.Errorf("expected destroyed, got %s", s.Status())
	}
	if !s.Queue().IsEmpty() {
		t.Error("expected queue to be cleared on destroy")
	}
}

func TestRoomState_Advance(t *testing.T) {
	tests := []struct {
		name      string
		loopMode  LoopMode
		reason    AdvanceReason
		current   int
		expected  string
		remaining int
	}{
		{name: "off finished", loopMode: LoopModeOff, reason: AdvanceFinished, current: 0, expected: "b", remaining: 2},
		{name: "off skipped", loopMode: LoopModeOff, reason: AdvanceSkipped, current: 1, expected: "a", remaining: 2},
		{name: "track finished repeats", loopMode: LoopModeTrack, reason: AdvanceFinished, current: 1, expected: "b", remaining: 3},
		{name: "track skipped advances", loopMode: LoopModeTrack, reason: AdvanceSkipped, current: 0, expected: "b", remaining: 2},
		{name: "track failed advances", loopMode: LoopModeTrack, reason: AdvanceFailed, current: 0, expected: "b", remaining: 2},
		{name: "queue next", loopMode: LoopModeQueue, reason: AdvanceFinished, current: 1, expected: "c", remaining: 3},
		{name: "queue wraps", loopMode: LoopModeQueue, reason: AdvanceSkipped, current: 2, expected: "a", remaining: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, entries := newTestRoom("a", "b", "c")
			s.SetLoopMode(tt.loopMode)
			s.SetNowPlaying(entries[tt.current])

			next := s.Advance(tt.reason, firstPick)
			if next == nil {
				t.Fatalf("expected %q, got nil", tt.expected)
			}
			if next.Track.Title != tt.expected {
				t.Errorf("Advance() = %q, expected %q", next.Track.Title, tt.expected)
			}
			if s.Queue().Len() != tt.remaining {
				t.Errorf("expected %d remaining, got %d", tt.remaining, s.Queue().Len())
			}
		})
	}
}

func TestRoomState_AdvanceLastTrackStops(t *testing.T) {
	s, entries := newTestRoom("a")
	s.SetNowPlaying(entries[0])

	if next := s.Advance(AdvanceFinished, firstPick); next != nil {
		t.Errorf("expected nil, got %q", next.Track.Title)
	}
	if !s.Queue().IsEmpty() {
		t.Error("expected empty queue")
	}
}

func TestRoomState_AdvanceQueueLoopSingleTrack(t *testing.T) {
	s, entries := newTestRoom("a")
	s.SetLoopMode(LoopModeQueue)
	s.SetNowPlaying(entries[0])

	next := s.Advance(AdvanceSkipped, firstPick)
	if next == nil || next.Key != entries[0].Key {
		t.Errorf("expected the same entry to replay, got %v", next)
	}
}

func TestRoomState_AdvanceShuffleExcludesCurrent(t *testing.T) {
	s, entries := newTestRoom("a", "b", "c")
	s.SetLoopMode(LoopModeQueue)
	s.SetShuffle(true)
	s.SetNowPlaying(entries[1])

	var gotN int
	next := s.Advance(AdvanceFinished, func(n int) int {
		gotN = n
		return n - 1
	})

	if gotN != 2 {
		t.Errorf("expected 2 candidates, got %d", gotN)
	}
	if next == nil || next.Track.Title != "c" {
		t.Errorf("expected c, got %v", next)
	}
}

func TestRoomState_ToggleSkipVote(t *testing.T) {
	s, entries := newTestRoom("a")
	user := snowflake.ID(42)

	if _, err := s.ToggleSkipVote(user); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("expected ErrNotPlaying, got %v", err)
	}

	s.SetNowPlaying(entries[0])

	voted, err := s.ToggleSkipVote(user)
	if err != nil || !voted {
		t.Fatalf("expected vote to be added, got %v, %v", voted, err)
	}
	if s.SkipVoteCount() != 1 || !s.HasSkipVote(user) {
		t.Errorf("expected one vote from user, got %d", s.SkipVoteCount())
	}

	voted, err = s.ToggleSkipVote(user)
	if err != nil || voted {
		t.Fatalf("expected vote to be withdrawn, got %v, %v", voted, err)
	}
	if s.SkipVoteCount() != 0 {
		t.Errorf("expected no votes, got %d", s.SkipVoteCount())
	}

	s.BeginTransition()
	if _, err := s.ToggleSkipVote(user); !errors.Is(err, ErrBusy) {
		t.Errorf("expected busy error during transition, got %v", err)
	}
}

func TestRoomState_VotesClearedOnTransition(t *testing.T) {
	s, entries := newTestRoom("a", "b")
	s.SetNowPlaying(entries[0])
	_, _ = s.ToggleSkipVote(1)
	_, _ = s.ToggleSkipVote(2)

	s.BeginTransition()
	if s.SkipVoteCount() != 0 {
		t.Errorf("expected votes cleared, got %d", s.SkipVoteCount())
	}
}

func TestRequiredSkipVotes(t *testing.T) {
	tests := []struct {
		listeners int
		expected  int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
	}

	for _, tt := range tests {
		if got := RequiredSkipVotes(tt.listeners); got != tt.expected {
			t.Errorf("RequiredSkipVotes(%d) = %d, expected %d", tt.listeners, got, tt.expected)
		}
	}
}

func TestRoomState_ApplySettings(t *testing.T) {
	stored := RoomSettings{
		LoopMode: LoopModeQueue,
		Shuffle:  true,
		Filters:  []Filter{FilterEcho, Filter("bogus")},
	}

	t.Run("applies when untouched", func(t *testing.T) {
		s, _ := newTestRoom()
		if !s.ApplySettings(stored) {
			t.Fatal("expected settings to be applied")
		}
		if s.LoopMode() != LoopModeQueue || !s.Shuffle() {
			t.Errorf("unexpected settings %+v", s.Settings())
		}
		if got := s.Filters().Enabled(); len(got) != 1 || got[0] != FilterEcho {
			t.Errorf("expected only echo filter, got %v", got)
		}
	})

	t.Run("session changes win", func(t *testing.T) {
		s, _ := newTestRoom()
		s.SetLoopMode(LoopModeTrack)
		if s.ApplySettings(stored) {
			t.Fatal("expected settings to be ignored")
		}
		if s.LoopMode() != LoopModeTrack {
			t.Errorf("expected track loop mode, got %s", s.LoopMode())
		}
	})
}

func TestRoomState_SetFilterReportsChange(t *testing.T) {
	s, _ := newTestRoom()

	if !s.SetFilter(FilterBassBoost, true) {
		t.Error("expected enabling to report a change")
	}
	if s.SetFilter(FilterBassBoost, true) {
		t.Error("expected enabling twice to report no change")
	}
	if !s.SetFilter(FilterBassBoost, false) {
		t.Error("expected disabling to report a change")
	}
}
