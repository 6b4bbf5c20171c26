package infrastructure

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// MemoryRepository is an in-memory per-guild store.
// The music player keeps its live rooms here.
type MemoryRepository[V comparable] struct {
	mu     sync.RWMutex
	values map[snowflake.ID]V
}

// NewMemoryRepository creates a new MemoryRepository.
func NewMemoryRepository[V comparable]() *MemoryRepository[V] {
	return &MemoryRepository[V]{
		values: make(map[snowflake.ID]V),
	}
}

// Get returns the value for the given guild.
func (r *MemoryRepository[V]) Get(guildID snowflake.ID) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.values[guildID]
	return value, ok
}

// LoadOrStore returns the existing value for the guild if present.
// Otherwise it stores value. The loaded result is true if the value was loaded.
func (r *MemoryRepository[V]) LoadOrStore(guildID snowflake.ID, value V) (actual V, loaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.values[guildID]; ok {
		return existing, true
	}
	r.values[guildID] = value
	return value, false
}

// CompareAndDelete removes the guild's value only if it is still old.
func (r *MemoryRepository[V]) CompareAndDelete(guildID snowflake.ID, old V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.values[guildID]; !ok || existing != old {
		return false
	}
	delete(r.values, guildID)
	return true
}

// All returns a snapshot of every stored value.
func (r *MemoryRepository[V]) All() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values := make([]V, 0, len(r.values))
	for _, value := range r.values {
		values = append(values, value)
	}
	return values
}

// Count returns the number of stored values (for testing/monitoring).
func (r *MemoryRepository[V]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.values)
}
