package music_player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sglre6355/roomcast/internal/bot"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/usecases"
	"github.com/sglre6355/roomcast/internal/modules/music_player/infrastructure"
	"github.com/sglre6355/roomcast/internal/modules/music_player/presentation/discord"
)

const (
	lavalinkConnectTimeout = 10 * time.Second
	shutdownTimeout        = 15 * time.Second
)

func init() {
	bot.Register(&MusicPlayerModule{})
}

// Compile-time interface checks.
var (
	_ bot.ConfigurableModule = (*MusicPlayerModule)(nil)
	_ bot.AutocompleteModule = (*MusicPlayerModule)(nil)
)

// MusicPlayerModule provides music playback commands.
type MusicPlayerModule struct {
	config          *Config
	commandHandlers *discord.CommandHandlers
	autocomplete    *discord.AutocompleteHandler
	eventHandlers   *discord.EventHandlers

	voiceChannel        *usecases.VoiceChannelService
	eventBus            *infrastructure.ChannelEventBus
	notificationHandler *infrastructure.NotificationEventHandler
	sourceCache         *infrastructure.SourceCache
	settingsStore       *infrastructure.SQLiteSettingsStore
	lavalink            *infrastructure.LavalinkResolver

	// Context for background work such as cache sweeps
	ctx    context.Context
	cancel context.CancelFunc
}

// Name returns the module name.
func (m *MusicPlayerModule) Name() string {
	return "music_player"
}

// Commands returns the slash commands for this module.
func (m *MusicPlayerModule) Commands() []*discordgo.ApplicationCommand {
	return discord.Commands()
}

// CommandHandlers returns the command handlers for this module.
func (m *MusicPlayerModule) CommandHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"join":       m.commandHandlers.HandleJoin,
		"leave":      m.commandHandlers.HandleLeave,
		"play":       m.commandHandlers.HandlePlay,
		"stop":       m.commandHandlers.HandleStop,
		"pause":      m.commandHandlers.HandlePause,
		"resume":     m.commandHandlers.HandleResume,
		"skip":       m.commandHandlers.HandleSkip,
		"seek":       m.commandHandlers.HandleSeek,
		"nowplaying": m.commandHandlers.HandleNowPlaying,
		"queue":      m.commandHandlers.HandleQueue,
		"loop":       m.commandHandlers.HandleLoop,
		"shuffle":    m.commandHandlers.HandleShuffle,
		"filter":     m.commandHandlers.HandleFilter,
		"stay":       m.commandHandlers.HandleStay,
	}
}

// EventHandlers returns the event handlers for this module.
func (m *MusicPlayerModule) EventHandlers() []bot.EventHandler {
	return []bot.EventHandler{
		func(s *discordgo.Session, event *discordgo.VoiceServerUpdate) {
			m.eventHandlers.HandleVoiceServerUpdate(s, event)
		},
		func(s *discordgo.Session, event *discordgo.VoiceStateUpdate) {
			m.eventHandlers.HandleVoiceStateUpdate(s, event)
		},
	}
}

// AutocompleteHandlers returns the autocomplete handlers for this module.
func (m *MusicPlayerModule) AutocompleteHandlers() map[string]bot.InteractionHandler {
	return map[string]bot.InteractionHandler{
		"play":  m.autocomplete.Handle,
		"queue": m.autocomplete.Handle,
	}
}

// LoadConfig loads module-specific configuration from environment variables.
func (m *MusicPlayerModule) LoadConfig() error {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Init initializes the module.
func (m *MusicPlayerModule) Init(deps bot.ModuleDependencies) error {
	session := deps.Session
	if session == nil || session.State == nil || session.State.User == nil {
		return errors.New("music_player requires an open Discord session")
	}

	botID, err := snowflake.Parse(session.State.User.ID)
	if err != nil {
		return fmt.Errorf("failed to parse bot user ID: %w", err)
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())

	// Track resolution
	resolver := m.newTrackResolver(botID)

	// Source cache
	fetcher := infrastructure.NewYtdlpFetcher()
	var cache ports.SourceCache
	if m.config.CacheEnabled {
		m.sourceCache, err = infrastructure.NewSourceCache(infrastructure.SourceCacheConfig{
			Dir:        m.config.CacheDir,
			FetchRate:  m.config.CacheFetchRate,
			FetchBurst: m.config.CacheFetchBurst,
		}, fetcher)
		if err != nil {
			return err
		}
		cache = m.sourceCache
		go m.sourceCache.Run(m.ctx, m.config.CacheSweepInterval, m.config.CacheMaxAge)
	}

	// Persisted room settings
	m.settingsStore, err = infrastructure.NewSQLiteSettingsStore(m.ctx, m.config.SettingsDBPath)
	if err != nil {
		return err
	}

	// Event bus and notifications
	m.eventBus = infrastructure.NewChannelEventBus(infrastructure.DefaultEventBufferSize)
	m.notificationHandler = infrastructure.NewNotificationEventHandler(
		infrastructure.NewNotifier(session),
		m.eventBus,
		infrastructure.NewDiscordUserInfoProvider(session),
	)
	m.notificationHandler.Start()

	// Playback engine
	voiceState := infrastructure.NewVoiceStateProvider(session)
	orchestrator := usecases.NewOrchestrator(
		usecases.OrchestratorConfig{
			CacheEnabled:     m.config.CacheEnabled,
			CacheMaxDuration: m.config.CacheMaxDuration,
			ReconnectTimeout: m.config.VoiceReconnectTimeout,
			IdleTimeout:      m.config.IdleTimeout,
		},
		usecases.OrchestratorDeps{
			Rooms:      infrastructure.NewMemoryRepository[*usecases.Room](),
			Transport:  infrastructure.NewDiscordVoiceTransport(session),
			Transcoder: infrastructure.NewFFmpegTranscoder(m.config.FFmpegPath),
			Fetcher:    fetcher,
			Cache:      cache,
			Settings:   m.settingsStore,
			VoiceState: voiceState,
			Publisher:  m.eventBus,
		},
	)

	// Services
	trackLoader := usecases.NewTrackLoaderService(resolver)
	m.voiceChannel = usecases.NewVoiceChannelService(orchestrator, voiceState)
	playback := usecases.NewPlaybackService(orchestrator, voiceState)
	queue := usecases.NewQueueService(orchestrator)
	autocomplete := usecases.NewAutocompleteService(orchestrator, trackLoader)

	// Presentation
	m.commandHandlers = discord.NewCommandHandlers(
		m.voiceChannel,
		playback,
		queue,
		trackLoader,
		m.config.DJRoleName,
	)
	m.autocomplete = discord.NewAutocompleteHandler(autocomplete)
	m.eventHandlers = discord.NewEventHandlers(m.voiceChannel)

	slog.Info("music_player module initialized",
		"lavalink", m.lavalink != nil,
		"cache", m.config.CacheEnabled,
	)

	return nil
}

// newTrackResolver returns the resolver chain: Lavalink when configured and reachable, then yt-dlp.
func (m *MusicPlayerModule) newTrackResolver(botID snowflake.ID) ports.TrackResolver {
	ytdlpResolver := infrastructure.NewYtdlpResolver()
	if m.config.LavalinkAddress == "" {
		return ytdlpResolver
	}

	ctx, cancel := context.WithTimeout(m.ctx, lavalinkConnectTimeout)
	defer cancel()

	lavalink, err := infrastructure.NewLavalinkResolver(ctx, botID, infrastructure.LavalinkConfig{
		Address:  m.config.LavalinkAddress,
		Password: m.config.LavalinkPassword,
		Secure:   m.config.LavalinkSecure,
	})
	if err != nil {
		slog.Warn("failed to connect to Lavalink, resolving with yt-dlp only", "error", err)
		return ytdlpResolver
	}
	m.lavalink = lavalink

	return infrastructure.NewFallbackResolver(lavalink, ytdlpResolver)
}

// Shutdown cleans up module resources.
func (m *MusicPlayerModule) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Leave every voice channel before the stores go away
	if m.voiceChannel != nil {
		m.voiceChannel.Close(ctx)
	}

	// Cancel context to stop background work
	if m.cancel != nil {
		m.cancel()
	}

	if m.eventBus != nil {
		m.eventBus.Close()
	}

	if m.sourceCache != nil {
		m.sourceCache.Close()
	}

	if m.lavalink != nil {
		m.lavalink.Close()
	}

	if m.settingsStore != nil {
		if err := m.settingsStore.Close(); err != nil {
			return fmt.Errorf("failed to close settings store: %w", err)
		}
	}

	return nil
}
