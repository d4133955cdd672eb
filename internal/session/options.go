package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"chordcast/internal/config"
	"chordcast/internal/encoder"
	"chordcast/internal/history"
	"chordcast/internal/pacing"
)

// FrameSource renders the video frame with the given index, which shows the
// stream at sample position. Every frame must be FrameBytes long.
type FrameSource interface {
	Frame(index, position int64) []byte
	FrameBytes() int
}

// Recorder keeps a ledger of sessions. history.Store satisfies it.
type Recorder interface {
	Begin(ctx context.Context, rec history.Record) error
	Finish(ctx context.Context, id string, out history.Outcome) error
}

// Options configure a Session.
type Options struct {
	PipeDir   string
	AudioPipe string
	VideoPipe string

	QueueCapacity    int
	SampleRate       int
	FPS              int
	BatchThreshold   int
	PollInterval     time.Duration
	OverrunTolerance time.Duration

	// Output and frame size are only recorded in history.
	Output      string
	FrameWidth  int
	FrameHeight int

	// PlannedSamples, when known, lets progress logs report a percentage.
	PlannedSamples int64

	Frames   FrameSource
	Launcher encoder.Launcher
	Recorder Recorder
	Clock    pacing.Clock
	Logger   *slog.Logger
}

// OptionsFromConfig fills the stream settings from cfg. Collaborators
// (Frames, Launcher, Recorder, Logger) are left for the caller.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PipeDir:          cfg.Paths.PipeDir,
		AudioPipe:        cfg.Paths.AudioPipe,
		VideoPipe:        cfg.Paths.VideoPipe,
		QueueCapacity:    cfg.Stream.QueueCapacity,
		SampleRate:       cfg.Stream.SampleRate,
		FPS:              cfg.Stream.FPS,
		BatchThreshold:   cfg.Stream.BatchThreshold,
		PollInterval:     cfg.PollInterval(),
		OverrunTolerance: cfg.OverrunTolerance(),
		Output:           cfg.Encoder.Output,
		FrameWidth:       cfg.Stream.FrameWidth,
		FrameHeight:      cfg.Stream.FrameHeight,
	}
}

func (o Options) validate() error {
	var problems []string
	if strings.TrimSpace(o.PipeDir) == "" {
		problems = append(problems, "pipe directory is required")
	}
	if strings.TrimSpace(o.AudioPipe) == "" || strings.TrimSpace(o.VideoPipe) == "" {
		problems = append(problems, "audio and video pipe names are required")
	} else if o.AudioPipe == o.VideoPipe {
		problems = append(problems, "audio and video pipes must differ")
	}
	if o.SampleRate <= 0 {
		problems = append(problems, "sample rate must be positive")
	}
	if o.FPS <= 0 {
		problems = append(problems, "fps must be positive")
	}
	if o.Frames == nil {
		problems = append(problems, "frame source is required")
	} else if o.Frames.FrameBytes() <= 0 {
		problems = append(problems, "frame source reports no frame size")
	}
	if o.Launcher == nil {
		problems = append(problems, "encoder launcher is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("session options: %w", errors.New(strings.Join(problems, "; ")))
	}
	return nil
}

func (o Options) audioPath() string {
	return filepath.Join(o.PipeDir, filepath.Base(o.AudioPipe))
}

func (o Options) videoPath() string {
	return filepath.Join(o.PipeDir, filepath.Base(o.VideoPipe))
}

func (o Options) lockPath() string {
	return filepath.Join(o.PipeDir, ".chordcast.lock")
}
