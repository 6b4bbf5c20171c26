package ports

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

// SettingsStore persists per-guild room preferences.
type SettingsStore interface {
	// Load returns the stored settings and whether any were found.
	Load(ctx context.Context, guildID snowflake.ID) (domain.RoomSettings, bool, error)

	// Save stores the settings, replacing any previous ones.
	Save(ctx context.Context, guildID snowflake.ID, settings domain.RoomSettings) error
}
