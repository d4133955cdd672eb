package pacing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chordcast/internal/logging"
)

const overrunWarnInterval = 5 * time.Second

// Progress holds the counters for one session. Only the goroutine driving the
// session mutates it.
type Progress struct {
	SamplesWritten int64
	AudioSeconds   float64
	VideoSeconds   float64
	FramesWritten  int64
}

// Options configure a Controller.
type Options struct {
	SampleRate       int
	FPS              int
	BatchThreshold   int
	OverrunTolerance time.Duration
	Clock            Clock
	Logger           *slog.Logger
}

// Controller paces audio against wall time and computes owed video frames.
type Controller struct {
	sampleRate       int64
	fps              int64
	batchThreshold   int64
	overrunTolerance time.Duration
	clock            Clock
	logger           *slog.Logger

	progress Progress
	t0       time.Time
	started  bool

	overruns     int64
	lastOverrun  time.Time
	maxOverrunBy time.Duration
}

// New validates opts and returns a controller with zeroed progress.
func New(opts Options) (*Controller, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", opts.SampleRate)
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", opts.FPS)
	}
	if opts.BatchThreshold < 0 {
		return nil, fmt.Errorf("batch threshold must be non-negative, got %d", opts.BatchThreshold)
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	return &Controller{
		sampleRate:       int64(opts.SampleRate),
		fps:              int64(opts.FPS),
		batchThreshold:   int64(opts.BatchThreshold),
		overrunTolerance: opts.OverrunTolerance,
		clock:            clock,
		logger:           logging.NewComponentLogger(opts.Logger, "pacing"),
	}, nil
}

// Start records t0. Pace measures elapsed time from here.
func (c *Controller) Start() {
	c.t0 = c.clock.Now()
	c.started = true
}

// Progress returns a copy of the current counters.
func (c *Controller) Progress() Progress {
	return c.progress
}

// AudioDuration is the exact playback length of the samples written so far.
func (c *Controller) AudioDuration() time.Duration {
	return samplesToDuration(c.progress.SamplesWritten, c.sampleRate)
}

// Pace blocks until wall time since Start has caught up with the audio already
// written. When production instead lags behind by more than the overrun
// tolerance, the overrun is counted and occasionally logged; it is never an
// error. Only ctx cancellation during the sleep is returned.
func (c *Controller) Pace(ctx context.Context) error {
	if !c.started {
		c.Start()
	}
	now := c.clock.Now()
	elapsed := now.Sub(c.t0)
	written := c.AudioDuration()
	if elapsed < written {
		return c.clock.Sleep(ctx, written-elapsed)
	}
	behind := elapsed - written
	if c.overrunTolerance > 0 && behind > c.overrunTolerance {
		c.recordOverrun(now, behind)
	}
	return nil
}

func (c *Controller) recordOverrun(now time.Time, behind time.Duration) {
	c.overruns++
	if behind > c.maxOverrunBy {
		c.maxOverrunBy = behind
	}
	if !c.lastOverrun.IsZero() && now.Sub(c.lastOverrun) < overrunWarnInterval {
		return
	}
	c.lastOverrun = now
	logging.WarnWithContext(c.logger, "audio production behind real time", "pacing_overrun",
		logging.Duration("behind", behind),
		logging.Int64("overruns", c.overruns),
		logging.String(logging.FieldErrorHint, "reduce frame size or fps, or check host load"),
		logging.String(logging.FieldImpact, "queues absorb the backlog until full, then the producer blocks"),
		logging.Alert("realtime_lag"),
	)
}

// Overruns reports how many Pace calls found production behind by more than
// the tolerance, and the worst lag seen.
func (c *Controller) Overruns() (int64, time.Duration) {
	return c.overruns, c.maxOverrunBy
}

// Advance accounts for samples just enqueued and returns how many frames the
// caller should render now. It returns zero while the owed count is below the
// batch threshold; those frames stay owed.
func (c *Controller) Advance(samples int) int64 {
	if samples > 0 {
		c.progress.SamplesWritten += int64(samples)
		c.progress.AudioSeconds = float64(c.progress.SamplesWritten) / float64(c.sampleRate)
	}
	owed := c.Owed()
	if owed < c.batchThreshold {
		return 0
	}
	return owed
}

// Expected is floor(samples*fps/sampleRate), the frame count the audio written
// so far calls for.
func (c *Controller) Expected() int64 {
	return c.progress.SamplesWritten * c.fps / c.sampleRate
}

// Owed is the number of frames expected but not yet committed.
func (c *Controller) Owed() int64 {
	return c.Expected() - c.progress.FramesWritten
}

// Commit records n frames as enqueued.
func (c *Controller) Commit(n int64) {
	if n <= 0 {
		return
	}
	c.progress.FramesWritten += n
	c.progress.VideoSeconds = float64(c.progress.FramesWritten) / float64(c.fps)
}

// Balanced reports whether committed frames exactly match the audio written.
func (c *Controller) Balanced() bool {
	return c.Owed() == 0
}

// FrameOffset returns the audio sample position frame index i represents,
// i/fps seconds into the stream.
func (c *Controller) FrameOffset(frame int64) int64 {
	return frame * c.sampleRate / c.fps
}

func samplesToDuration(samples, rate int64) time.Duration {
	whole := samples / rate
	rem := samples % rate
	return time.Duration(whole)*time.Second + time.Duration(rem)*time.Second/time.Duration(rate)
}
