package domain

import (
	"fmt"
	"strings"
)

// LoopMode represents the loop mode for queue playback.
type LoopMode int

const (
	LoopModeOff   LoopMode = iota // Default: finished tracks leave the queue
	LoopModeTrack                 // Replay the current track on natural end
	LoopModeQueue                 // Keep finished tracks and wrap to the lowest index
)

// String returns a human-readable representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopModeTrack:
		return "track"
	case LoopModeQueue:
		return "queue"
	default:
		return "off"
	}
}

// Next returns the mode after m in the cycle off -> track -> queue -> off.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopModeOff:
		return LoopModeTrack
	case LoopModeTrack:
		return LoopModeQueue
	default:
		return LoopModeOff
	}
}

// ParseLoopMode converts a string to a LoopMode.
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "":
		return LoopModeOff, nil
	case "track":
		return LoopModeTrack, nil
	case "queue":
		return LoopModeQueue, nil
	default:
		return LoopModeOff, fmt.Errorf("unknown loop mode %q", s)
	}
}
