package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
)

func newThumbnailServer(t *testing.T, available ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		requests.Add(1)
		for _, quality := range available {
			if strings.HasSuffix(req.URL.Path, "/"+quality+".jpg") {
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestThumbnailResolver_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		available []string
		source    domain.TrackSource
		want      string
	}{
		{
			name:      "prefers highest quality",
			available: []string{"hqdefault", "maxresdefault"},
			source:    domain.TrackSourceYouTube,
			want:      "/abc/maxresdefault.jpg",
		},
		{
			name:      "falls through qualities",
			available: []string{"mqdefault"},
			source:    domain.TrackSourceYouTube,
			want:      "/abc/mqdefault.jpg",
		},
		{
			name:   "nothing available",
			source: domain.TrackSourceYouTube,
			want:   "https://artwork.example/abc.jpg",
		},
		{
			name:      "other sources use artwork",
			available: []string{"maxresdefault"},
			source:    domain.TrackSourceSoundCloud,
			want:      "https://artwork.example/abc.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newThumbnailServer(t, tt.available...)
			r := newThumbnailResolver(srv.Client(), srv.URL)

			got := r.Resolve(context.Background(), tt.source, "abc", "https://artwork.example/abc.jpg")
			if !strings.HasSuffix(got, tt.want) {
				t.Errorf("expected URL ending in %q, got %q", tt.want, got)
			}
		})
	}
}

func TestThumbnailResolver_CachesHits(t *testing.T) {
	srv, requests := newThumbnailServer(t, "sddefault")
	r := newThumbnailResolver(srv.Client(), srv.URL)

	first := r.Resolve(context.Background(), domain.TrackSourceYouTube, "abc", "")
	probes := requests.Load()
	second := r.Resolve(context.Background(), domain.TrackSourceYouTube, "abc", "")

	if first != second {
		t.Errorf("expected cached URL %q, got %q", first, second)
	}
	if requests.Load() != probes {
		t.Errorf("expected no further probes, got %d", requests.Load()-probes)
	}
}

func TestNowPlayingEmbed(t *testing.T) {
	info := &ports.NowPlayingInfo{
		Title:         "Song",
		Artist:        "Artist",
		Duration:      "03:00",
		URL:           "https://youtube.com/watch?v=abc",
		Filters:       []string{"bassboost", "nightcore"},
		RequesterName: "alice",
		EnqueuedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	embed := nowPlayingEmbed(info, domain.TrackSourceYouTube, "https://img/abc.jpg")

	if embed.Title != "Song" || embed.URL != info.URL {
		t.Errorf("unexpected title/url: %q %q", embed.Title, embed.URL)
	}
	if embed.Color != domain.TrackSourceYouTube.Color() {
		t.Errorf("expected source color, got %#x", embed.Color)
	}
	if embed.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected timestamp %q", embed.Timestamp)
	}
	if embed.Image == nil || embed.Image.URL != "https://img/abc.jpg" {
		t.Errorf("expected image, got %+v", embed.Image)
	}
	if embed.Footer.Text != "Requested by alice" {
		t.Errorf("unexpected footer %q", embed.Footer.Text)
	}

	fields := make(map[string]string)
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	if fields["Duration"] != "03:00" {
		t.Errorf("unexpected duration %q", fields["Duration"])
	}
	if fields["Filters"] != "bassboost, nightcore" {
		t.Errorf("unexpected filters %q", fields["Filters"])
	}
}

func TestNowPlayingEmbed_Live(t *testing.T) {
	embed := nowPlayingEmbed(&ports.NowPlayingInfo{Title: "Stream", IsLive: true}, domain.TrackSourceTwitch, "")

	for _, f := range embed.Fields {
		if f.Name == "Duration" && f.Value != "LIVE" {
			t.Errorf("expected LIVE duration, got %q", f.Value)
		}
		if f.Name == "Filters" {
			t.Error("expected no filters field")
		}
	}
	if embed.Image != nil || embed.Timestamp != "" {
		t.Errorf("expected no image or timestamp, got %+v %q", embed.Image, embed.Timestamp)
	}
}
