package music_player

import (
	"errors"
	"time"
)

// Config holds the music player module configuration.
type Config struct {
	// Lavalink is only used to resolve tracks. yt-dlp is used when no address is set.
	LavalinkAddress  string `env:"LAVALINK_ADDRESS"`
	LavalinkPassword string `env:"LAVALINK_PASSWORD"`
	LavalinkSecure   bool   `env:"LAVALINK_SECURE"`

	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`

	CacheEnabled       bool          `env:"CACHE_ENABLED"        envDefault:"true"`
	CacheDir           string        `env:"CACHE_DIR"            envDefault:"cache"`
	CacheMaxDuration   time.Duration `env:"CACHE_MAX_DURATION"   envDefault:"20m"`
	CacheMaxAge        time.Duration `env:"CACHE_MAX_AGE"        envDefault:"24h"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"1h"`
	CacheFetchRate     float64       `env:"CACHE_FETCH_RATE"     envDefault:"0.5"`
	CacheFetchBurst    int           `env:"CACHE_FETCH_BURST"    envDefault:"2"`

	SettingsDBPath string `env:"SETTINGS_DB_PATH" envDefault:"roomcast.db"`

	VoiceReconnectTimeout time.Duration `env:"VOICE_RECONNECT_TIMEOUT" envDefault:"30s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT"            envDefault:"5m"`

	// DJRoleName is the role whose members skip without a vote.
	DJRoleName string `env:"DJ_ROLE_NAME" envDefault:"DJ"`
}

// Validate checks constraints that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.LavalinkAddress != "" && c.LavalinkPassword == "" {
		errs = append(errs, errors.New("LAVALINK_PASSWORD is required when LAVALINK_ADDRESS is set"))
	}
	if c.VoiceReconnectTimeout <= 0 {
		errs = append(errs, errors.New("VOICE_RECONNECT_TIMEOUT must be positive"))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, errors.New("IDLE_TIMEOUT must not be negative"))
	}
	if c.CacheEnabled {
		if c.CacheDir == "" {
			errs = append(errs, errors.New("CACHE_DIR is required when CACHE_ENABLED is set"))
		}
		if c.CacheSweepInterval <= 0 {
			errs = append(errs, errors.New("CACHE_SWEEP_INTERVAL must be positive"))
		}
		if c.CacheFetchRate < 0 {
			errs = append(errs, errors.New("CACHE_FETCH_RATE must not be negative"))
		}
	}
	return errors.Join(errs...)
}
