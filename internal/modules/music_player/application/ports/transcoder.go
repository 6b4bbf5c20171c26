package ports

import (
	"context"
	"errors"
	"io"
	"time"
)

// Audio format produced by every pipeline.
const (
	SampleRate    = 48000
	Channels      = 2
	FrameSize     = 960 // samples per channel in one 20ms frame
	FrameDuration = 20 * time.Millisecond
)

// ErrFrameDropped is returned by a FrameSink that could not accept a frame in time.
// Pipelines tolerate a bounded number of consecutive drops.
var ErrFrameDropped = errors.New("voice frame dropped")

// FrameSink receives encoded Opus frames.
type FrameSink interface {
	SendFrame(ctx context.Context, frame []byte) error
}

// PipelineInput is the audio source of a pipeline. Exactly one field is set.
type PipelineInput struct {
	Path   string        // Local file from the source cache
	Stream io.ReadCloser // Direct stream, closed by the pipeline
}

// PipelineSpec describes a pipeline to start.
type PipelineSpec struct {
	Input       PipelineInput
	Seek        time.Duration // Start offset into the source
	FilterGraph string        // ffmpeg -af graph, empty for none
	Sink        FrameSink
}

// PipelineEndReason describes how a pipeline ended.
type PipelineEndReason int

const (
	PipelineFinished PipelineEndReason = iota // Source ran out
	PipelineStopped                           // Stop was called or the context was cancelled
	PipelineFailed                            // The transcoder or the sink failed
)

// String returns a human-readable representation of the reason.
func (r PipelineEndReason) String() string {
	switch r {
	case PipelineFinished:
		return "finished"
	case PipelineStopped:
		return "stopped"
	default:
		return "failed"
	}
}

// PipelineResult is available once a pipeline is done.
type PipelineResult struct {
	Reason PipelineEndReason
	Err    error
}

// Pipeline is a running transcode from a source into a frame sink.
type Pipeline interface {
	// ID uniquely identifies the pipeline.
	ID() string

	// Stop terminates the pipeline. It is safe to call more than once.
	Stop()

	// Done is closed once every stage has exited.
	Done() <-chan struct{}

	// Result returns how the pipeline ended. Only valid after Done is closed.
	Result() PipelineResult

	// Position returns how much output audio has been sent.
	Position() time.Duration

	// SetPaused holds or releases frame delivery without tearing down the pipeline.
	SetPaused(paused bool)
}

// Transcoder starts pipelines.
type Transcoder interface {
	// Start spawns a pipeline. It returns an error wrapping domain.ErrPipelineSpawnFailed
	// when the process cannot be started.
	Start(ctx context.Context, spec PipelineSpec) (Pipeline, error)
}
