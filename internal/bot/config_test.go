package bot

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoadConfig_WithValidToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token-123")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DiscordToken != "test-token-123" {
		t.Errorf("expected token %q, got %q", "test-token-123", cfg.DiscordToken)
	}
}

func TestLoadConfig_WithEmptyToken(t *testing.T) {
	// Clear the environment variable
	t.Setenv("DISCORD_TOKEN", "")

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for missing token, got nil")
	}
}

func TestLoadConfig_LogLevel(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  slog.Level
	}{
		{name: "info", value: "INFO", want: slog.LevelInfo},
		{name: "debug", value: "DEBUG", want: slog.LevelDebug},
		{name: "warn", value: "warn", want: slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_TOKEN", "test-token")
			t.Setenv("LOG_LEVEL", tt.value)

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.LogLevel != tt.want {
				t.Errorf("expected level %v, got %v", tt.want, cfg.LogLevel)
			}
		})
	}
}

func TestLoadConfig_LogFormat(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		wantText bool
		wantErr  bool
	}{
		{name: "default json", value: ""},
		{name: "text", value: "text", wantText: true},
		{name: "unknown", value: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_TOKEN", "test-token")
			if tt.value != "" {
				t.Setenv("LOG_FORMAT", tt.value)
			}

			cfg, err := LoadConfig()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var buf bytes.Buffer
			slog.New(cfg.NewLogHandler(&buf)).Info("hello", "guild", 1)

			isJSON := strings.HasPrefix(buf.String(), "{")
			if isJSON == tt.wantText {
				t.Errorf("expected text=%v output, got %q", tt.wantText, buf.String())
			}
		})
	}
}
