package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"chordcast/internal/bqueue"
	"chordcast/internal/encoder"
	"chordcast/internal/fifo"
	"chordcast/internal/history"
	"chordcast/internal/logging"
	"chordcast/internal/pacing"
	"chordcast/internal/writer"
)

const releaseInterval = 5 * time.Millisecond

// Summary describes a finished session.
type Summary struct {
	ID             string
	State          State
	Progress       pacing.Progress
	ExpectedFrames int64
	Overruns       int64
	WorstOverrun   time.Duration
	Audio          writer.Stats
	Video          writer.Stats
	Elapsed        time.Duration
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	ID            string
	State         State
	Progress      pacing.Progress
	AudioQueued   int
	VideoQueued   int
	QueueCapacity int
}

// Session drives one encoder through two named pipes.
type Session struct {
	opts   Options
	id     string
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	published pacing.Progress

	pacer      *pacing.Controller
	sampler    *logging.ProgressSampler
	frameBytes int
	audioQ     *bqueue.Queue[[]byte]
	videoQ     *bqueue.Queue[[]byte]

	lock      *flock.Flock
	audioSink *fifo.Sink
	videoSink *fifo.Sink
	audioW    *writer.Worker
	videoW    *writer.Worker
	groupCtx  context.Context
	groupDone chan struct{}
	groupErr  error
	proc      encoder.Process
	encCancel context.CancelFunc
	encDone   chan struct{}
	encErr    error
	fatal     error
	startedAt time.Time
	recorded  bool
}

// New validates opts and returns a session in INIT.
func New(opts Options) (*Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	pacer, err := pacing.New(pacing.Options{
		SampleRate:       opts.SampleRate,
		FPS:              opts.FPS,
		BatchThreshold:   opts.BatchThreshold,
		OverrunTolerance: opts.OverrunTolerance,
		Clock:            opts.Clock,
		Logger:           opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	logger := logging.WithSession(logging.NewComponentLogger(opts.Logger, "session"), id)
	return &Session{
		opts:       opts,
		id:         id,
		logger:     logger,
		state:      StateInit,
		pacer:      pacer,
		sampler:    logging.NewProgressSampler(10),
		frameBytes: opts.Frames.FrameBytes(),
		audioQ:     bqueue.New[[]byte](opts.QueueCapacity),
		videoQ:     bqueue.New[[]byte](opts.QueueCapacity),
	}, nil
}

// ID is the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()
	s.logger.Debug("session state changed",
		logging.String("from", prev.String()),
		logging.String("to", state.String()),
	)
}

// Snapshot reports progress and queue occupancy. Safe from any goroutine.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.id,
		State:         s.state,
		Progress:      s.published,
		AudioQueued:   s.audioQ.Len(),
		VideoQueued:   s.videoQ.Len(),
		QueueCapacity: s.audioQ.Cap(),
	}
}

func (s *Session) publish() {
	progress := s.pacer.Progress()
	s.mu.Lock()
	s.published = progress
	s.mu.Unlock()
}

// Start creates both pipes, launches the encoder, and starts the pipe
// writers. It may be called once.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateInit {
		state := s.state
		s.mu.Unlock()
		return invalidState("start", state)
	}
	s.mu.Unlock()

	if err := s.open(ctx); err != nil {
		s.setState(StateFailed)
		logging.ErrorWithContext(s.logger, "session start failed", "session_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the encoder binary and pipe directory"),
		)
		return err
	}

	s.startedAt = time.Now()
	s.pacer.Start()
	s.setState(StateOpen)
	s.recordBegin(ctx)
	s.logger.Info("session started",
		logging.String("audio_pipe", s.audioSink.Path()),
		logging.String("video_pipe", s.videoSink.Path()),
		logging.Int("encoder_pid", s.proc.Pid()),
		logging.Int("queue_capacity", s.audioQ.Cap()),
	)
	return nil
}

func (s *Session) open(ctx context.Context) error {
	if err := os.MkdirAll(s.opts.PipeDir, 0o755); err != nil {
		return fmt.Errorf("create pipe directory: %w", err)
	}
	s.lock = flock.New(s.opts.lockPath())
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock pipe directory: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrPipeDirBusy, s.opts.PipeDir)
	}

	audioSink, err := fifo.Create(s.opts.audioPath())
	if err != nil {
		s.unlock()
		return err
	}
	videoSink, err := fifo.Create(s.opts.videoPath())
	if err != nil {
		_ = audioSink.Destroy()
		s.unlock()
		return err
	}
	s.audioSink, s.videoSink = audioSink, videoSink

	s.audioW = writer.New("audio", s.audioQ, audioSink, s.opts.PollInterval, s.logger)
	s.videoW = writer.New("video", s.videoQ, videoSink, s.opts.PollInterval, s.logger)

	// The encoder outlives ctx so a cancelled caller can still Stop and
	// drain; it is killed only when the session aborts.
	encCtx, encCancel := context.WithCancel(logging.WithSessionID(context.WithoutCancel(ctx), s.id))
	proc, err := s.opts.Launcher.Launch(encCtx, audioSink.Path(), videoSink.Path())
	if err != nil {
		encCancel()
		s.destroySinks()
		s.unlock()
		return fmt.Errorf("launch encoder: %w", err)
	}
	s.proc, s.encCancel = proc, encCancel

	group, groupCtx := errgroup.WithContext(context.Background())
	group.Go(func() error { return s.audioW.Run(groupCtx) })
	group.Go(func() error { return s.videoW.Run(groupCtx) })
	s.groupCtx = groupCtx
	s.groupDone = make(chan struct{})
	go func() {
		s.groupErr = group.Wait()
		close(s.groupDone)
	}()

	s.encDone = make(chan struct{})
	go s.watchEncoder()
	return nil
}

// watchEncoder waits for the encoder and then releases any writer still
// blocked opening its pipe, so an encoder that dies before reading turns into
// write errors instead of a hang.
func (s *Session) watchEncoder() {
	s.encErr = s.proc.Wait()
	s.releaseWriters()
	close(s.encDone)
}

// releaseWriters keeps opening the read ends until every writer is past its
// open. A single release can land before a writer starts opening.
func (s *Session) releaseWriters() {
	ticker := time.NewTicker(releaseInterval)
	defer ticker.Stop()
	pairs := []struct {
		worker *writer.Worker
		sink   *fifo.Sink
	}{{s.audioW, s.audioSink}, {s.videoW, s.videoSink}}
	for {
		pending := false
		for _, p := range pairs {
			if p.worker.Opened() {
				continue
			}
			pending = true
			if err := p.sink.Release(); err != nil {
				s.logger.Debug("release pipe failed", logging.String("path", p.sink.Path()), logging.Error(err))
			}
		}
		if !pending {
			return
		}
		select {
		case <-s.groupDone:
			return
		case <-ticker.C:
		}
	}
}

// WriteAudio paces, enqueues chunk as PCM, and renders the frames it makes
// owed. A pipe failure moves the session to FAILED, tears it down, and is
// returned as a *SinkWriteError. A cancelled ctx is returned as is and
// leaves the session OPEN.
func (s *Session) WriteAudio(ctx context.Context, chunk AudioChunk) error {
	if state := s.State(); state != StateOpen {
		return invalidState("write_audio", state)
	}
	if err := s.write(ctx, chunk); err != nil {
		if s.fatal != nil {
			s.abort()
			return s.fatal
		}
		return err
	}
	return nil
}

func (s *Session) write(ctx context.Context, chunk AudioChunk) error {
	if err := s.checkWorkers(); err != nil {
		return err
	}
	if err := s.pacer.Pace(ctx); err != nil {
		return err
	}
	if len(chunk.Samples) > 0 {
		if err := s.enqueue(ctx, s.audioQ, encodeS16LE(chunk.Samples)); err != nil {
			return err
		}
	}
	owed := s.pacer.Advance(len(chunk.Samples))
	err := s.produceFrames(ctx, owed)
	s.publish()
	s.logProgress()
	return err
}

func (s *Session) produceFrames(ctx context.Context, n int64) error {
	for i := int64(0); i < n; i++ {
		index := s.pacer.Progress().FramesWritten
		frame := s.opts.Frames.Frame(index, s.pacer.FrameOffset(index))
		if len(frame) != s.frameBytes {
			s.fatal = fmt.Errorf("frame %d is %d bytes, want %d", index, len(frame), s.frameBytes)
			return s.fatal
		}
		if err := s.enqueue(ctx, s.videoQ, frame); err != nil {
			return err
		}
		s.pacer.Commit(1)
	}
	return nil
}

// enqueue blocks on a full queue until a slot frees, ctx is cancelled, or a
// writer fails.
func (s *Session) enqueue(ctx context.Context, q *bqueue.Queue[[]byte], payload []byte) error {
	putCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.groupCtx, cancel)
	defer stop()

	if err := q.Put(putCtx, payload); err != nil {
		if failure := s.checkWorkers(); failure != nil {
			return failure
		}
		return err
	}
	return nil
}

// checkWorkers returns the writer failure, if any, and records it as fatal.
func (s *Session) checkWorkers() error {
	if s.fatal != nil {
		return s.fatal
	}
	select {
	case <-s.groupCtx.Done():
	default:
		return nil
	}
	// A writer failed. Kill the encoder so the sibling writer cannot stay
	// blocked on a pipe nobody reads, then collect the first error.
	s.encCancel()
	<-s.groupDone
	s.fatal = s.groupErr
	if s.fatal == nil {
		s.fatal = fmt.Errorf("%w: pipe writers exited early", ErrSinkWrite)
	}
	return s.fatal
}

func (s *Session) logProgress() {
	progress := s.pacer.Progress()
	percent := -1.0
	if s.opts.PlannedSamples > 0 {
		percent = float64(progress.SamplesWritten) / float64(s.opts.PlannedSamples) * 100
	}
	if !s.sampler.ShouldLog(percent, "") {
		return
	}
	s.logger.Info("stream progress",
		logging.Float64("audio_seconds", progress.AudioSeconds),
		logging.Int64("frames", progress.FramesWritten),
		logging.Float64("percent", percent),
		logging.Int("audio_queued", s.audioQ.Len()),
		logging.Int("video_queued", s.videoQ.Len()),
	)
}

// Stop flushes owed frames, drains both queues into the encoder, waits for
// it to exit, removes the pipes, and checks that frames written equal
// floor(audio seconds * fps). It returns ErrInvalidState unless OPEN.
func (s *Session) Stop() (Summary, error) {
	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		return s.summary(state), invalidState("stop", state)
	}
	s.state = StateClosing
	s.mu.Unlock()
	s.logger.Debug("session closing", logging.Int64("owed_frames", s.pacer.Owed()))

	// Residual owed frames are flushed so the count check below is exact.
	if err := s.produceFrames(context.Background(), s.pacer.Owed()); err != nil && s.fatal == nil {
		s.fatal = err
	}
	s.publish()

	err := s.teardown()
	if err == nil {
		err = s.checkInvariant()
	}

	final := StateClosed
	if err != nil {
		final = StateFailed
	}
	s.setState(final)
	summary := s.summary(final)
	s.recordFinish(summary, err)
	if err != nil {
		logging.ErrorWithContext(s.logger, "session failed", "session_failed",
			logging.Error(err),
			logging.Int64("frames", summary.Progress.FramesWritten),
			logging.Int64("expected_frames", summary.ExpectedFrames),
			logging.String(logging.FieldErrorHint, "inspect encoder logs; restart the stream"),
		)
		return summary, err
	}
	s.logger.Info("session closed",
		logging.Float64("audio_seconds", summary.Progress.AudioSeconds),
		logging.Int64("frames", summary.Progress.FramesWritten),
		logging.Int64("overruns", summary.Overruns),
		logging.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// abort tears down after a fatal error during WriteAudio.
func (s *Session) abort() {
	_ = s.teardown()
	s.setState(StateFailed)
	summary := s.summary(StateFailed)
	s.recordFinish(summary, s.fatal)
	logging.ErrorWithContext(s.logger, "session aborted", "session_failed",
		logging.Error(s.fatal),
		logging.String(logging.FieldErrorHint, "the encoder stopped reading; check its output destination"),
		logging.String(logging.FieldImpact, "stream ended"),
	)
}

// teardown stops the writers, joins them, waits for the encoder, removes the
// pipes, and releases the directory lock. It returns the first writer or
// encoder error.
func (s *Session) teardown() error {
	s.audioW.Stop()
	s.videoW.Stop()
	if s.fatal != nil {
		s.encCancel()
	}
	<-s.groupDone
	workerErr := s.groupErr
	if workerErr != nil {
		s.encCancel()
	}
	<-s.encDone
	encErr := s.encErr
	s.encCancel()

	s.destroySinks()
	s.unlock()

	if s.fatal != nil {
		return s.fatal
	}
	if workerErr != nil {
		s.fatal = workerErr
		return workerErr
	}
	if encErr != nil {
		return encErr
	}
	return nil
}

func (s *Session) checkInvariant() error {
	progress := s.pacer.Progress()
	expected := s.pacer.Expected()
	if progress.FramesWritten != expected {
		return &InvariantViolationError{
			FramesWritten:  progress.FramesWritten,
			ExpectedFrames: expected,
			AudioSeconds:   progress.AudioSeconds,
		}
	}
	return nil
}

func (s *Session) destroySinks() {
	for _, sink := range []*fifo.Sink{s.audioSink, s.videoSink} {
		if sink == nil {
			continue
		}
		if err := sink.Destroy(); err != nil {
			logging.WarnWithContext(s.logger, "remove pipe failed", "pipe_cleanup",
				logging.String("path", sink.Path()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the stale pipe manually"),
			)
		}
	}
}

func (s *Session) unlock() {
	if s.lock == nil {
		return
	}
	if err := s.lock.Unlock(); err != nil {
		s.logger.Debug("unlock pipe directory failed", logging.Error(err))
	}
}

// Summary reports the session's totals so far. Call it from the goroutine
// that drives WriteAudio, typically after a failed write.
func (s *Session) Summary() Summary {
	return s.summary(s.State())
}

func (s *Session) summary(state State) Summary {
	overruns, worst := s.pacer.Overruns()
	summary := Summary{
		ID:             s.id,
		State:          state,
		Progress:       s.pacer.Progress(),
		ExpectedFrames: s.pacer.Expected(),
		Overruns:       overruns,
		WorstOverrun:   worst,
	}
	if s.audioW != nil {
		summary.Audio = s.audioW.Stats()
		summary.Video = s.videoW.Stats()
	}
	if !s.startedAt.IsZero() {
		summary.Elapsed = time.Since(s.startedAt)
	}
	return summary
}

func (s *Session) recordBegin(ctx context.Context) {
	if s.opts.Recorder == nil {
		return
	}
	err := s.opts.Recorder.Begin(context.WithoutCancel(ctx), history.Record{
		ID:          s.id,
		Output:      s.opts.Output,
		SampleRate:  s.opts.SampleRate,
		FPS:         s.opts.FPS,
		FrameWidth:  s.opts.FrameWidth,
		FrameHeight: s.opts.FrameHeight,
		StartedAt:   s.startedAt,
	})
	if err != nil {
		logging.WarnWithContext(s.logger, "history record failed", "history_write",
			logging.Error(err),
			logging.String(logging.FieldImpact, "session will be missing from history"),
		)
		return
	}
	s.recorded = true
}

func (s *Session) recordFinish(summary Summary, cause error) {
	if s.opts.Recorder == nil || !s.recorded {
		return
	}
	out := history.Outcome{
		Status:         history.StatusCompleted,
		SamplesWritten: summary.Progress.SamplesWritten,
		FramesWritten:  summary.Progress.FramesWritten,
		AudioSeconds:   summary.Progress.AudioSeconds,
		VideoSeconds:   summary.Progress.VideoSeconds,
		Overruns:       summary.Overruns,
	}
	if cause != nil {
		out.Status = history.StatusFailed
		out.Error = cause.Error()
	}
	if err := s.opts.Recorder.Finish(context.Background(), s.id, out); err != nil && !errors.Is(err, context.Canceled) {
		logging.WarnWithContext(s.logger, "history update failed", "history_write",
			logging.Error(err),
			logging.String(logging.FieldImpact, "session outcome missing from history"),
		)
	}
}
