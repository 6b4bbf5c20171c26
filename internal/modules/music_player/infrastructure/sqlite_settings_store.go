package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

// Ensure SQLiteSettingsStore implements ports.SettingsStore.
var _ ports.SettingsStore = (*SQLiteSettingsStore)(nil)

const settingsSchema = `CREATE TABLE IF NOT EXISTS room_settings (
	guild_id TEXT PRIMARY KEY,
	loop_mode TEXT NOT NULL DEFAULT 'off',
	shuffle INTEGER NOT NULL DEFAULT 0,
	stay_connected INTEGER NOT NULL DEFAULT 0,
	filters TEXT NOT NULL DEFAULT '',
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteSettingsStore persists room settings in a SQLite database.
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore opens the database at path and creates the schema.
func NewSQLiteSettingsStore(ctx context.Context, path string) (*SQLiteSettingsStore, error) {
	_ = sqlite3.SQLiteDriver{}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	db.SetMaxOpenConns(1)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, q := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		settingsSchema,
	} {
		if _, err := db.ExecContext(initCtx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize settings database: %w", err)
		}
	}

	return &SQLiteSettingsStore{db: db}, nil
}

// Load returns the stored settings for the guild and whether any were found.
func (s *SQLiteSettingsStore) Load(
	ctx context.Context,
	guildID snowflake.ID,
) (domain.RoomSettings, bool, error) {
	var (
		loopMode      string
		shuffle       bool
		stayConnected bool
		filters       string
	)

	err := s.db.QueryRowContext(ctx,
		"SELECT loop_mode, shuffle, stay_connected, filters FROM room_settings WHERE guild_id = ?",
		guildID.String(),
	).Scan(&loopMode, &shuffle, &stayConnected, &filters)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RoomSettings{}, false, nil
	}
	if err != nil {
		return domain.RoomSettings{}, false, fmt.Errorf("failed to load room settings: %w", err)
	}

	settings := domain.RoomSettings{
		Shuffle:       shuffle,
		StayConnected: stayConnected,
	}

	mode, err := domain.ParseLoopMode(loopMode)
	if err != nil {
		slog.Warn("ignoring stored loop mode", "guild", guildID, "loop_mode", loopMode)
	}
	settings.LoopMode = mode

	for _, name := range strings.Split(filters, ",") {
		if name == "" {
			continue
		}
		f, err := domain.ParseFilter(name)
		if err != nil {
			slog.Warn("ignoring stored filter", "guild", guildID, "filter", name)
			continue
		}
		settings.Filters = append(settings.Filters, f)
	}

	return settings, true, nil
}

// Save stores the settings for the guild, replacing any previous ones.
func (s *SQLiteSettingsStore) Save(
	ctx context.Context,
	guildID snowflake.ID,
	settings domain.RoomSettings,
) error {
	names := make([]string, len(settings.Filters))
	for i, f := range settings.Filters {
		names[i] = string(f)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_settings (guild_id, loop_mode, shuffle, stay_connected, filters, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(guild_id) DO UPDATE SET
			loop_mode = excluded.loop_mode,
			shuffle = excluded.shuffle,
			stay_connected = excluded.stay_connected,
			filters = excluded.filters,
			updated_at = CURRENT_TIMESTAMP`,
		guildID.String(),
		settings.LoopMode.String(),
		settings.Shuffle,
		settings.StayConnected,
		strings.Join(names, ","),
	)
	if err != nil {
		return fmt.Errorf("failed to save room settings: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSettingsStore) Close() error {
	return s.db.Close()
}
