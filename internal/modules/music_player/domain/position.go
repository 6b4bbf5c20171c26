package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParsePosition parses a playback position given as seconds ("90"),
// minutes and seconds ("1:30") or hours, minutes and seconds ("1:02:03").
func ParsePosition(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidTimestamp
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}

	var total int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		// Minute and second fields after the first must stay below 60.
		if i > 0 && n >= 60 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		total = total*60 + n
	}

	return time.Duration(total) * time.Second, nil
}
