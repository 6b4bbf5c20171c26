package domain

import (
	"cmp"
	"iter"
	"slices"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

// QueueKey identifies a queued track for its whole lifetime in a room.
type QueueKey string

// NewQueueKey returns a fresh random key.
func NewQueueKey() QueueKey {
	return QueueKey(uuid.NewString())
}

// QueuedTrack places a track in a room's queue.
// Index is assigned at insertion, strictly increasing and never reused within a room.
type QueuedTrack struct {
	Key         QueueKey
	Index       uint64
	Track       *Track
	RequesterID snowflake.ID
	EnqueuedAt  time.Time
}

// TrackQueue is a keyed collection of queued tracks ordered by insertion index.
// It is not safe for concurrent use; a room mutates it only from its executor.
type TrackQueue struct {
	entries   map[QueueKey]*QueuedTrack
	nextIndex uint64

	// ordered caches entries sorted by Index until the next mutation.
	ordered []*QueuedTrack
	dirty   bool
}

// NewTrackQueue creates an empty TrackQueue.
func NewTrackQueue() *TrackQueue {
	return &TrackQueue{
		entries: make(map[QueueKey]*QueuedTrack),
	}
}

// Add appends track with the next index and returns its entry.
func (q *TrackQueue) Add(track *Track, requesterID snowflake.ID) *QueuedTrack {
	entry := &QueuedTrack{
		Key:         NewQueueKey(),
		Index:       q.nextIndex,
		Track:       track,
		RequesterID: requesterID,
		EnqueuedAt:  time.Now().UTC(),
	}
	q.nextIndex++
	q.entries[entry.Key] = entry
	q.dirty = true
	return entry
}

// Remove deletes the entry with the given key.
func (q *TrackQueue) Remove(key QueueKey) (*QueuedTrack, bool) {
	entry, ok := q.entries[key]
	if !ok {
		return nil, false
	}
	delete(q.entries, key)
	q.dirty = true
	return entry, true
}

// Get returns the entry with the given key.
func (q *TrackQueue) Get(key QueueKey) (*QueuedTrack, bool) {
	entry, ok := q.entries[key]
	return entry, ok
}

// Len returns the number of queued tracks.
func (q *TrackQueue) Len() int {
	return len(q.entries)
}

// IsEmpty returns true if the queue has no entries.
func (q *TrackQueue) IsEmpty() bool {
	return len(q.entries) == 0
}

// Clear removes every entry and returns how many were removed.
// The index counter keeps increasing.
func (q *TrackQueue) Clear() int {
	n := len(q.entries)
	clear(q.entries)
	q.ordered = nil
	q.dirty = false
	return n
}

// Ordered yields entries in ascending Index order.
// The sequence iterates a snapshot, so mutating the queue while ranging is allowed.
func (q *TrackQueue) Ordered() iter.Seq[*QueuedTrack] {
	return func(yield func(*QueuedTrack) bool) {
		for _, entry := range q.sorted() {
			if !yield(entry) {
				return
			}
		}
	}
}

// List returns a copy of all entries in ascending Index order.
func (q *TrackQueue) List() []*QueuedTrack {
	return slices.Clone(q.sorted())
}

// Head returns the entry with the lowest index, or nil if the queue is empty.
func (q *TrackQueue) Head() *QueuedTrack {
	sorted := q.sorted()
	if len(sorted) == 0 {
		return nil
	}
	return sorted[0]
}

// After returns the first entry whose index is greater than index, or nil.
func (q *TrackQueue) After(index uint64) *QueuedTrack {
	sorted := q.sorted()
	i, found := slices.BinarySearchFunc(sorted, index, func(e *QueuedTrack, target uint64) int {
		return cmp.Compare(e.Index, target)
	})
	if found {
		i++
	}
	if i >= len(sorted) {
		return nil
	}
	return sorted[i]
}

// At returns the entry at the given 0-based position in index order.
func (q *TrackQueue) At(position int) (*QueuedTrack, bool) {
	sorted := q.sorted()
	if position < 0 || position >= len(sorted) {
		return nil, false
	}
	return sorted[position], true
}

// Position returns the 0-based position of key in index order, or -1.
func (q *TrackQueue) Position(key QueueKey) int {
	return slices.IndexFunc(q.sorted(), func(e *QueuedTrack) bool {
		return e.Key == key
	})
}

func (q *TrackQueue) sorted() []*QueuedTrack {
	if !q.dirty && q.ordered != nil {
		return q.ordered
	}

	ordered := make([]*QueuedTrack, 0, len(q.entries))
	for _, entry := range q.entries {
		ordered = append(ordered, entry)
	}
	slices.SortFunc(ordered, func(a, b *QueuedTrack) int {
		return cmp.Compare(a.Index, b.Index)
	})

	q.ordered = ordered
	q.dirty = false
	return ordered
}
