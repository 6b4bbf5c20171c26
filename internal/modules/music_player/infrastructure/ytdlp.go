package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
)

const (
	ytdlpAudioFormat = "bestaudio[ext=webm]/bestaudio"
	ytdlpPrintFormat = "%(webpage_url,url)s\t%(title)s\t%(uploader,channel)s\t%(duration)s\t%(id)s\t%(extractor_key,ie_key)s\t%(is_live)s\t%(thumbnail)s"

	// DefaultSearchLimit is the number of results requested for searches.
	DefaultSearchLimit = 10
	// DefaultPlaylistLimit caps the number of entries loaded from a playlist URL.
	DefaultPlaylistLimit = 100
)

// Compile-time checks for the yt-dlp adapters.
var (
	_ ports.SourceFetcher = (*YtdlpFetcher)(nil)
	_ ports.TrackResolver = (*YtdlpResolver)(nil)
)

// YtdlpFetcher downloads and streams audio with yt-dlp.
type YtdlpFetcher struct{}

// NewYtdlpFetcher creates a new YtdlpFetcher.
func NewYtdlpFetcher() *YtdlpFetcher {
	return &YtdlpFetcher{}
}

// Fetch downloads the best audio of url into dest.
func (f *YtdlpFetcher) Fetch(ctx context.Context, url, dest string) error {
	res, err := ytdlp.New().
		Format(ytdlpAudioFormat).
		Output(dest).
		NoPart().
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to download source: %w%s", err, stderrSuffix(res))
	}
	return nil
}

// Stream returns the audio of url as it is downloaded.
// Closing the stream terminates yt-dlp.
func (f *YtdlpFetcher) Stream(ctx context.Context, url string) (io.ReadCloser, error) {
	cmd := ytdlp.New().
		Format(ytdlpAudioFormat).
		Output("-").
		NoSimulate().
		NoPart().
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		BuildCommand(ctx, url)

	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open yt-dlp output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start yt-dlp: %w", err)
	}

	return &ytdlpStream{ReadCloser: stdout, cmd: cmd, stderr: stderr, url: url}, nil
}

type ytdlpStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	url    string
	once   sync.Once
}

func (s *ytdlpStream) Close() error {
	s.once.Do(func() {
		_ = s.ReadCloser.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if err := s.cmd.Wait(); err != nil {
			// Killed or broken pipe once the reader stops early.
			msg := strings.ToLower(err.Error() + s.stderr.String())
			if !strings.Contains(msg, "killed") && !strings.Contains(msg, "broken pipe") {
				slog.Debug("yt-dlp stream exited with error", "url", s.url, "error", err)
			}
		}
	})
	return nil
}

// YtdlpResolver resolves URLs and search queries with yt-dlp.
type YtdlpResolver struct {
	searchLimit   int
	playlistLimit int
}

// NewYtdlpResolver creates a new YtdlpResolver.
func NewYtdlpResolver() *YtdlpResolver {
	return &YtdlpResolver{
		searchLimit:   DefaultSearchLimit,
		playlistLimit: DefaultPlaylistLimit,
	}
}

// LoadTracks resolves a URL or a "<source>:<term>" search query.
func (r *YtdlpResolver) LoadTracks(ctx context.Context, query string) (*ports.LoadResult, error) {
	target, isSearch := r.target(query)

	limit := r.playlistLimit
	if isSearch {
		limit = r.searchLimit
	}

	res, err := ytdlp.New().
		FlatPlaylist().
		Print(ytdlpPrintFormat).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", target)
	if err != nil {
		return &ports.LoadResult{Type: ports.LoadTypeError}, fmt.Errorf(
			"failed to resolve %q: %w%s", query, err, stderrSuffix(res),
		)
	}

	tracks := parseYtdlpTracks(res.Stdout)

	switch {
	case len(tracks) == 0:
		return &ports.LoadResult{Type: ports.LoadTypeEmpty}, nil
	case isSearch:
		return &ports.LoadResult{Type: ports.LoadTypeSearch, Tracks: tracks}, nil
	case len(tracks) == 1:
		return &ports.LoadResult{Type: ports.LoadTypeTrack, Tracks: tracks}, nil
	default:
		return &ports.LoadResult{Type: ports.LoadTypePlaylist, Tracks: tracks}, nil
	}
}

// target converts "ytsearch:term" into yt-dlp's "ytsearchN:term" form.
func (r *YtdlpResolver) target(query string) (string, bool) {
	for _, prefix := range []string{"ytsearch", "scsearch"} {
		if term, ok := strings.CutPrefix(query, prefix+":"); ok {
			return fmt.Sprintf("%s%d:%s", prefix, r.searchLimit, term), true
		}
	}
	return query, false
}

func parseYtdlpTracks(stdout string) []*ports.TrackInfo {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	tracks := make([]*ports.TrackInfo, 0, len(lines))

	for _, line := range lines {
		parts := strings.Split(line, "\t")
		if len(parts) < 8 || parts[0] == "" || parts[0] == "NA" {
			continue
		}

		track := &ports.TrackInfo{
			URL:        parts[0],
			Title:      naToEmpty(parts[1]),
			Artist:     naToEmpty(parts[2]),
			Identifier: naToEmpty(parts[4]),
			SourceName: strings.ToLower(naToEmpty(parts[5])),
			IsLive:     parts[6] == "True",
			ArtworkURL: naToEmpty(parts[7]),
		}
		if d, err := time.ParseDuration(parts[3] + "s"); err == nil {
			track.Duration = d.Truncate(time.Second)
		}
		if track.Title == "" {
			track.Title = track.URL
		}
		tracks = append(tracks, track)
	}

	return tracks
}

func naToEmpty(s string) string {
	if s == "NA" {
		return ""
	}
	return s
}

func stderrSuffix(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	if msg := strings.TrimSpace(res.Stderr); msg != "" {
		return ": " + msg
	}
	return ""
}

// FallbackResolver tries each resolver in order until one returns results.
type FallbackResolver struct {
	resolvers []ports.TrackResolver
}

// Ensure FallbackResolver implements ports.TrackResolver.
var _ ports.TrackResolver = (*FallbackResolver)(nil)

// NewFallbackResolver creates a FallbackResolver over the given resolvers.
func NewFallbackResolver(resolvers ...ports.TrackResolver) *FallbackResolver {
	return &FallbackResolver{resolvers: resolvers}
}

// LoadTracks returns the first non-empty result.
func (r *FallbackResolver) LoadTracks(ctx context.Context, query string) (*ports.LoadResult, error) {
	var errs []error
	for _, resolver := range r.resolvers {
		result, err := resolver.LoadTracks(ctx, query)
		if err != nil {
			slog.Debug("resolver failed, trying next", "query", query, "error", err)
			errs = append(errs, err)
			continue
		}
		if result != nil && len(result.Tracks) > 0 {
			return result, nil
		}
	}

	if len(errs) == len(r.resolvers) && len(errs) > 0 {
		return &ports.LoadResult{Type: ports.LoadTypeError}, errors.Join(errs...)
	}
	return &ports.LoadResult{Type: ports.LoadTypeEmpty}, nil
}
