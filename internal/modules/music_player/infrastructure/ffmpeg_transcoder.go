package infrastructure

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sglre6355/roomcast/internal/modules/music_player/application/ports"
	"github.com/sglre6355/roomcast/internal/modules/music_player/domain"
	"golang.org/x/sync/errgroup"
	"layeh.com/gopus"
)

const (
	maxOpusFrameBytes = 1000
	pcmBufferFrames   = 16
	stderrTailBytes   = 512

	// DefaultMaxFrameDrops is the number of consecutive dropped frames a pipeline tolerates.
	DefaultMaxFrameDrops = 50
)

// Ensure FFmpegTranscoder implements ports.Transcoder.
var _ ports.Transcoder = (*FFmpegTranscoder)(nil)

// FFmpegTranscoder decodes sources with an ffmpeg subprocess and encodes 20ms Opus frames.
type FFmpegTranscoder struct {
	ffmpegPath    string
	maxFrameDrops int
}

// NewFFmpegTranscoder creates a new FFmpegTranscoder.
func NewFFmpegTranscoder(ffmpegPath string) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegTranscoder{
		ffmpegPath:    ffmpegPath,
		maxFrameDrops: DefaultMaxFrameDrops,
	}
}

// Start spawns ffmpeg for spec and begins delivering frames to spec.Sink.
func (t *FFmpegTranscoder) Start(ctx context.Context, spec ports.PipelineSpec) (ports.Pipeline, error) {
	if spec.Sink == nil {
		return nil, fmt.Errorf("%w: no frame sink", domain.ErrPipelineSpawnFailed)
	}
	if spec.Input.Path == "" && spec.Input.Stream == nil {
		return nil, fmt.Errorf("%w: no input", domain.ErrPipelineSpawnFailed)
	}

	encoder, err := gopus.NewEncoder(ports.SampleRate, ports.Channels, gopus.Audio)
	if err != nil {
		closeInput(spec.Input)
		return nil, fmt.Errorf("%w: failed to create opus encoder: %w", domain.ErrPipelineSpawnFailed, err)
	}

	pctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(pctx)

	cmd := exec.CommandContext(gctx, t.ffmpegPath, ffmpegArgs(spec)...)
	cmd.WaitDelay = 2 * time.Second
	if spec.Input.Stream != nil {
		cmd.Stdin = spec.Input.Stream
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		closeInput(spec.Input)
		return nil, fmt.Errorf("%w: %w", domain.ErrPipelineSpawnFailed, err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		closeInput(spec.Input)
		return nil, fmt.Errorf("%w: %w", domain.ErrPipelineSpawnFailed, err)
	}

	p := &ffmpegPipeline{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
		seeked: spec.Seek > 0,
	}

	pcm := make(chan []int16, pcmBufferFrames)

	g.Go(func() error {
		defer close(pcm)
		for {
			buf := make([]int16, ports.FrameSize*ports.Channels)
			if err := binary.Read(stdout, binary.LittleEndian, buf); err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || gctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("failed to read pcm: %w", err)
			}
			select {
			case pcm <- buf:
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		drops := 0
		for buf := range pcm {
			if err := p.waitResumed(gctx); err != nil {
				return nil
			}

			frame, err := encoder.Encode(buf, ports.FrameSize, maxOpusFrameBytes)
			if err != nil {
				return fmt.Errorf("failed to encode opus frame: %w", err)
			}

			err = spec.Sink.SendFrame(gctx, frame)
			switch {
			case err == nil:
				drops = 0
				p.frames.Add(1)
			case errors.Is(err, ports.ErrFrameDropped):
				drops++
				if drops >= t.maxFrameDrops {
					return fmt.Errorf("failed to send frames: %d consecutive drops: %w", drops, err)
				}
			case gctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("failed to send frame: %w", err)
			}
		}
		return nil
	})

	go func() {
		groupErr := g.Wait()
		closeInput(spec.Input)
		waitErr := cmd.Wait()

		p.finish(pctx, groupErr, waitErr, stderr.String())
	}()

	slog.Debug("pipeline started",
		"pipeline", p.id,
		"seek", spec.Seek,
		"filters", spec.FilterGraph,
		"streamed", spec.Input.Stream != nil,
	)

	return p, nil
}

// ffmpegArgs builds the ffmpeg command line for spec.
// File inputs seek before -i for fast input seeking; piped inputs can only decode and discard.
func ffmpegArgs(spec ports.PipelineSpec) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}

	seek := ""
	if spec.Seek > 0 {
		seek = strconv.FormatFloat(spec.Seek.Seconds(), 'f', 3, 64)
	}

	if spec.Input.Path != "" {
		if seek != "" {
			args = append(args, "-ss", seek)
		}
		args = append(args, "-i", spec.Input.Path)
	} else {
		args = append(args, "-i", "pipe:0")
		if seek != "" {
			args = append(args, "-ss", seek)
		}
	}

	if spec.FilterGraph != "" {
		args = append(args, "-af", spec.FilterGraph)
	}

	return append(args,
		"-f", "s16le",
		"-ar", strconv.Itoa(ports.SampleRate),
		"-ac", strconv.Itoa(ports.Channels),
		"pipe:1",
	)
}

func closeInput(input ports.PipelineInput) {
	if input.Stream != nil {
		_ = input.Stream.Close()
	}
}

type ffmpegPipeline struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	result ports.PipelineResult
	seeked bool // Started past the beginning; may legitimately decode nothing

	frames  atomic.Int64
	stopped atomic.Bool

	mu      sync.Mutex
	paused  bool
	resumed chan struct{}
}

func (p *ffmpegPipeline) ID() string {
	return p.id
}

func (p *ffmpegPipeline) Stop() {
	p.stopped.Store(true)
	p.cancel()
}

func (p *ffmpegPipeline) Done() <-chan struct{} {
	return p.done
}

func (p *ffmpegPipeline) Result() ports.PipelineResult {
	<-p.done
	return p.result
}

func (p *ffmpegPipeline) Position() time.Duration {
	return time.Duration(p.frames.Load()) * ports.FrameDuration
}

func (p *ffmpegPipeline) SetPaused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if paused == p.paused {
		return
	}
	p.paused = paused
	if paused {
		p.resumed = make(chan struct{})
	} else {
		close(p.resumed)
	}
}

func (p *ffmpegPipeline) waitResumed(ctx context.Context) error {
	for {
		p.mu.Lock()
		paused, resumed := p.paused, p.resumed
		p.mu.Unlock()

		if !paused {
			return nil
		}
		select {
		case <-resumed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *ffmpegPipeline) finish(ctx context.Context, groupErr, waitErr error, stderr string) {
	defer close(p.done)
	defer p.cancel()

	switch {
	case p.stopped.Load() || ctx.Err() != nil:
		p.result = ports.PipelineResult{Reason: ports.PipelineStopped}
	case groupErr != nil:
		p.result = ports.PipelineResult{Reason: ports.PipelineFailed, Err: groupErr}
	case waitErr != nil:
		p.result = ports.PipelineResult{
			Reason: ports.PipelineFailed,
			Err:    fmt.Errorf("ffmpeg exited: %w%s", waitErr, tail(stderr)),
		}
	case p.frames.Load() == 0 && !p.seeked:
		p.result = ports.PipelineResult{
			Reason: ports.PipelineFailed,
			Err:    fmt.Errorf("%w: no audio decoded%s", domain.ErrSourceUnavailable, tail(stderr)),
		}
	default:
		p.result = ports.PipelineResult{Reason: ports.PipelineFinished}
	}

	slog.Debug("pipeline ended",
		"pipeline", p.id,
		"reason", p.result.Reason.String(),
		"position", p.Position(),
		"error", p.result.Err,
	)
}

func tail(stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return ""
	}
	if len(stderr) > stderrTailBytes {
		stderr = stderr[len(stderr)-stderrTailBytes:]
	}
	return ": " + stderr
}
