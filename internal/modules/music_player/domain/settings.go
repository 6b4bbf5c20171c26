package domain

// RoomSettings are the per-guild preferences persisted between sessions.
type RoomSettings struct {
	LoopMode      LoopMode
	Shuffle       bool
	StayConnected bool
	Filters       []Filter
}
