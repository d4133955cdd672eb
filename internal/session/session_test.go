package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chordcast/internal/encoder"
	"chordcast/internal/history"
	"chordcast/internal/logging"
)

const testFrameBytes = 16

// indexFrames renders frames that carry their own index, so the video stream
// order can be checked.
type indexFrames struct{}

func (indexFrames) Frame(index, position int64) []byte {
	frame := make([]byte, testFrameBytes)
	binary.LittleEndian.PutUint64(frame, uint64(index))
	binary.LittleEndian.PutUint64(frame[8:], uint64(position))
	return frame
}

func (indexFrames) FrameBytes() int { return testFrameBytes }

// readerEncoder stands in for ffmpeg: it opens both pipes and reads them to
// EOF, keeping what it read.
type readerEncoder struct {
	mu       sync.Mutex
	launched int
	audio    bytes.Buffer
	video    bytes.Buffer
}

func (e *readerEncoder) Launch(_ context.Context, audioPipe, videoPipe string) (encoder.Process, error) {
	e.mu.Lock()
	e.launched++
	e.mu.Unlock()
	p := &fakeProcess{done: make(chan struct{})}
	var wg sync.WaitGroup
	wg.Add(2)
	go e.drain(&wg, audioPipe, &e.audio)
	go e.drain(&wg, videoPipe, &e.video)
	go func() {
		wg.Wait()
		close(p.done)
	}()
	return p, nil
}

func (e *readerEncoder) drain(wg *sync.WaitGroup, path string, dst *bytes.Buffer) {
	defer wg.Done()
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	e.mu.Lock()
	dst.Write(data)
	e.mu.Unlock()
}

func (e *readerEncoder) audioBytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.audio.Bytes()...)
}

func (e *readerEncoder) videoBytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.video.Bytes()...)
}

// deadEncoder exits at once without opening either pipe.
type deadEncoder struct{}

func (deadEncoder) Launch(context.Context, string, string) (encoder.Process, error) {
	p := &fakeProcess{done: make(chan struct{}), err: encoder.ErrEncoderExit}
	close(p.done)
	return p, nil
}

type failingLauncher struct{}

func (failingLauncher) Launch(context.Context, string, string) (encoder.Process, error) {
	return nil, errors.New("exec: ffmpeg not found")
}

type fakeProcess struct {
	done chan struct{}
	err  error
}

func (p *fakeProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *fakeProcess) Pid() int { return 4242 }

// instantClock advances on Sleep so pacing never waits in tests.
type instantClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) Sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

type memoryRecorder struct {
	mu       sync.Mutex
	begun    []history.Record
	finished map[string]history.Outcome
}

func (r *memoryRecorder) Begin(_ context.Context, rec history.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = append(r.begun, rec)
	return nil
}

func (r *memoryRecorder) Finish(_ context.Context, id string, out history.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		r.finished = make(map[string]history.Outcome)
	}
	r.finished[id] = out
	return nil
}

func testOptions(t *testing.T, launcher encoder.Launcher) Options {
	t.Helper()
	return Options{
		PipeDir:        filepath.Join(t.TempDir(), "pipes"),
		AudioPipe:      "audio.fifo",
		VideoPipe:      "video.fifo",
		QueueCapacity:  8,
		SampleRate:     44100,
		FPS:            30,
		BatchThreshold: 15,
		PollInterval:   time.Millisecond,
		Frames:         indexFrames{},
		Launcher:       launcher,
		Clock:          &instantClock{now: time.Unix(1_700_000_000, 0)},
		Logger:         logging.NewNop(),
	}
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func ramp(n int, offset int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32((i+offset)%200-100) / 100
	}
	return out
}

func TestFullCycleWritesExactFrameCount(t *testing.T) {
	enc := &readerEncoder{}
	opts := testOptions(t, enc)
	s := newSession(t, opts)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.State() != StateOpen {
		t.Fatalf("state after start = %s", s.State())
	}

	sizes := []int{441, 1000, 22050, 7, 44100, 3333, 999}
	var wantAudio []byte
	total := 0
	for i, n := range sizes {
		chunk := AudioChunk{Samples: ramp(n, total)}
		wantAudio = append(wantAudio, encodeS16LE(chunk.Samples)...)
		if err := s.WriteAudio(context.Background(), chunk); err != nil {
			t.Fatalf("WriteAudio %d: %v", i, err)
		}
		total += n
		snap := s.Snapshot()
		if snap.AudioQueued > snap.QueueCapacity || snap.VideoQueued > snap.QueueCapacity {
			t.Fatalf("queue occupancy exceeded capacity: %+v", snap)
		}
	}

	summary, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	wantFrames := int64(total) * 30 / 44100
	if summary.Progress.FramesWritten != wantFrames {
		t.Fatalf("frames = %d, want %d", summary.Progress.FramesWritten, wantFrames)
	}
	if summary.State != StateClosed || s.State() != StateClosed {
		t.Fatalf("state = %s", s.State())
	}

	if got := enc.audioBytes(); !bytes.Equal(got, wantAudio) {
		t.Fatalf("audio stream mismatch: got %d bytes, want %d", len(got), len(wantAudio))
	}
	video := enc.videoBytes()
	if int64(len(video)) != wantFrames*testFrameBytes {
		t.Fatalf("video stream has %d bytes, want %d", len(video), wantFrames*testFrameBytes)
	}
	for i := int64(0); i < wantFrames; i++ {
		frame := video[i*testFrameBytes:]
		if idx := int64(binary.LittleEndian.Uint64(frame)); idx != i {
			t.Fatalf("frame %d carries index %d", i, idx)
		}
		if pos := int64(binary.LittleEndian.Uint64(frame[8:])); pos != i*44100/30 {
			t.Fatalf("frame %d position %d, want %d", i, pos, i*44100/30)
		}
	}

	snap := s.Snapshot()
	if snap.AudioQueued != 0 || snap.VideoQueued != 0 {
		t.Fatalf("queues not empty after stop: %+v", snap)
	}
	for _, name := range []string{opts.AudioPipe, opts.VideoPipe} {
		if _, err := os.Stat(filepath.Join(opts.PipeDir, name)); !os.IsNotExist(err) {
			t.Fatalf("pipe %s still present: %v", name, err)
		}
	}
}

func TestOneSecondChunkProducesThirtyFrames(t *testing.T) {
	enc := &readerEncoder{}
	opts := testOptions(t, enc)
	opts.BatchThreshold = 30
	s := newSession(t, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.WriteAudio(context.Background(), AudioChunk{Samples: make([]float32, 44100)}); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}
	progress := s.Snapshot().Progress
	if progress.FramesWritten != 30 || progress.AudioSeconds != 1.0 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestBatchThresholdDefersUntilStop(t *testing.T) {
	enc := &readerEncoder{}
	opts := testOptions(t, enc)
	opts.BatchThreshold = 60
	s := newSession(t, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	half := AudioChunk{Samples: make([]float32, 22050)}
	for i := 0; i < 2; i++ {
		if err := s.WriteAudio(context.Background(), half); err != nil {
			t.Fatalf("WriteAudio %d: %v", i, err)
		}
		if frames := s.Snapshot().Progress.FramesWritten; frames != 0 {
			t.Fatalf("chunk %d produced %d frames, want deferred", i, frames)
		}
	}
	summary, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if summary.Progress.FramesWritten != 30 {
		t.Fatalf("residual flush wrote %d frames, want 30", summary.Progress.FramesWritten)
	}
	if got := len(enc.videoBytes()); got != 30*testFrameBytes {
		t.Fatalf("encoder received %d video bytes", got)
	}
}

func TestStopImmediatelyAfterStart(t *testing.T) {
	enc := &readerEncoder{}
	rec := &memoryRecorder{}
	opts := testOptions(t, enc)
	opts.Recorder = rec
	s := newSession(t, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	summary, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if summary.Progress.FramesWritten != 0 || summary.ExpectedFrames != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(rec.begun) != 1 || rec.begun[0].ID != s.ID() {
		t.Fatalf("history begin not recorded: %+v", rec.begun)
	}
	if out := rec.finished[s.ID()]; out.Status != history.StatusCompleted {
		t.Fatalf("history outcome = %+v", out)
	}
}

func TestOperationsOutsideOpenAreRejected(t *testing.T) {
	s := newSession(t, testOptions(t, &readerEncoder{}))

	if err := s.WriteAudio(context.Background(), AudioChunk{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("WriteAudio before start: %v", err)
	}
	if _, err := s.Stop(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Stop before start: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Start: %v", err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.WriteAudio(context.Background(), AudioChunk{Samples: make([]float32, 10)}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("WriteAudio after stop: %v", err)
	}
	if _, err := s.Stop(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestEncoderDeathSurfacesSinkWriteError(t *testing.T) {
	rec := &memoryRecorder{}
	opts := testOptions(t, deadEncoder{})
	opts.QueueCapacity = 2
	opts.BatchThreshold = 1
	opts.Recorder = rec
	s := newSession(t, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var err error
	for i := 0; i < 500 && err == nil; i++ {
		err = s.WriteAudio(context.Background(), AudioChunk{Samples: make([]float32, 4410)})
	}
	if !errors.Is(err, ErrSinkWrite) {
		t.Fatalf("expected ErrSinkWrite, got %v", err)
	}
	var sinkErr *SinkWriteError
	if !errors.As(err, &sinkErr) {
		t.Fatalf("expected *SinkWriteError, got %T", err)
	}
	if s.State() != StateFailed {
		t.Fatalf("state = %s, want FAILED", s.State())
	}
	for _, name := range []string{opts.AudioPipe, opts.VideoPipe} {
		if _, statErr := os.Stat(filepath.Join(opts.PipeDir, name)); !os.IsNotExist(statErr) {
			t.Fatalf("pipe %s left behind after failure", name)
		}
	}
	if _, stopErr := s.Stop(); !errors.Is(stopErr, ErrInvalidState) {
		t.Fatalf("Stop after failure: %v", stopErr)
	}
	if out := rec.finished[s.ID()]; out.Status != history.StatusFailed || out.Error == "" {
		t.Fatalf("failure not recorded: %+v", out)
	}
}

func TestLaunchFailureLeavesNoPipes(t *testing.T) {
	opts := testOptions(t, failingLauncher{})
	s := newSession(t, opts)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected launch error")
	}
	if s.State() != StateFailed {
		t.Fatalf("state = %s, want FAILED", s.State())
	}
	if _, err := os.Stat(filepath.Join(opts.PipeDir, opts.AudioPipe)); !os.IsNotExist(err) {
		t.Fatalf("audio pipe left behind: %v", err)
	}

	again := newSession(t, opts)
	again.opts.Launcher = &readerEncoder{}
	if err := again.Start(context.Background()); err != nil {
		t.Fatalf("pipe dir lock not released after failed start: %v", err)
	}
	if _, err := again.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestPipeDirectoryIsExclusive(t *testing.T) {
	opts := testOptions(t, &readerEncoder{})
	first := newSession(t, opts)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer func() {
		if _, err := first.Stop(); err != nil {
			t.Fatalf("first Stop: %v", err)
		}
	}()

	opts.Launcher = &readerEncoder{}
	second := newSession(t, opts)
	if err := second.Start(context.Background()); !errors.Is(err, ErrPipeDirBusy) {
		t.Fatalf("expected ErrPipeDirBusy, got %v", err)
	}
}

func TestCancelledWriteLeavesSessionOpen(t *testing.T) {
	opts := testOptions(t, &readerEncoder{})
	opts.Clock = nil
	s := newSession(t, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Ten seconds of audio puts the producer far ahead of the wall clock, so
	// the next write has to wait and sees the cancelled context.
	if err := s.WriteAudio(context.Background(), AudioChunk{Samples: make([]float32, 441000)}); err != nil {
		t.Fatalf("WriteAudio: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.WriteAudio(ctx, AudioChunk{Samples: make([]float32, 100)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.State() != StateOpen {
		t.Fatalf("state = %s, want OPEN", s.State())
	}
	summary, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if summary.Progress.FramesWritten != 300 {
		t.Fatalf("frames = %d, want 300", summary.Progress.FramesWritten)
	}
}

func TestFrameSizeMismatchFailsSession(t *testing.T) {
	opts := testOptions(t, &readerEncoder{})
	opts.BatchThreshold = 1
	opts.Frames = shortFrames{}
	s := newSession(t, opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	err := s.WriteAudio(context.Background(), AudioChunk{Samples: make([]float32, 44100)})
	if err == nil {
		t.Fatal("expected frame size error")
	}
	if s.State() != StateFailed {
		t.Fatalf("state = %s, want FAILED", s.State())
	}
}

type shortFrames struct{}

func (shortFrames) Frame(int64, int64) []byte { return []byte{1, 2, 3} }
func (shortFrames) FrameBytes() int           { return 4 }

func TestInvariantViolationError(t *testing.T) {
	err := error(&InvariantViolationError{FramesWritten: 29, ExpectedFrames: 30, AudioSeconds: 1})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
	var typed *InvariantViolationError
	if !errors.As(err, &typed) || typed.ExpectedFrames != 30 {
		t.Fatalf("errors.As failed for %v", err)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	base := testOptions(t, &readerEncoder{})
	cases := map[string]func(*Options){
		"no frames":    func(o *Options) { o.Frames = nil },
		"no launcher":  func(o *Options) { o.Launcher = nil },
		"same pipes":   func(o *Options) { o.VideoPipe = o.AudioPipe },
		"no pipe dir":  func(o *Options) { o.PipeDir = "" },
		"zero rate":    func(o *Options) { o.SampleRate = 0 },
		"negative fps": func(o *Options) { o.FPS = -30 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := base
			mutate(&opts)
			if _, err := New(opts); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
