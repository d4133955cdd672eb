package pacing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newController(t *testing.T, opts Options) (*Controller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	if opts.SampleRate == 0 {
		opts.SampleRate = 44100
	}
	if opts.FPS == 0 {
		opts.FPS = 30
	}
	opts.Clock = clock
	ctrl, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctrl.Start()
	return ctrl, clock
}

func TestAdvanceOneSecondProducesThirtyFrames(t *testing.T) {
	ctrl, _ := newController(t, Options{BatchThreshold: 15})

	owed := ctrl.Advance(44100)
	if owed != 30 {
		t.Fatalf("owed = %d, want 30", owed)
	}
	ctrl.Commit(owed)

	p := ctrl.Progress()
	if p.AudioSeconds != 1.0 {
		t.Fatalf("audio seconds = %v, want 1.0", p.AudioSeconds)
	}
	if p.FramesWritten != 30 || p.VideoSeconds != 1.0 {
		t.Fatalf("unexpected progress %+v", p)
	}
	if !ctrl.Balanced() {
		t.Fatal("expected balanced after commit")
	}
}

func TestAdvanceDefersBelowBatchThreshold(t *testing.T) {
	ctrl, _ := newController(t, Options{BatchThreshold: 60})

	if owed := ctrl.Advance(22050); owed != 0 {
		t.Fatalf("first chunk returned %d, want deferred", owed)
	}
	if ctrl.Owed() != 15 {
		t.Fatalf("owed after first chunk = %d, want 15", ctrl.Owed())
	}
	if owed := ctrl.Advance(22050); owed != 0 {
		t.Fatalf("second chunk returned %d, want deferred", owed)
	}
	if ctrl.Owed() != 30 {
		t.Fatalf("owed after second chunk = %d, want 30", ctrl.Owed())
	}
	if ctrl.Progress().FramesWritten != 0 {
		t.Fatal("no frames should be committed while deferred")
	}
}

func TestAdvanceIsExactAcrossOddChunking(t *testing.T) {
	ctrl, _ := newController(t, Options{BatchThreshold: 7})
	chunks := []int{1, 1023, 4410, 333, 44100, 17, 9000, 2}
	total := int64(0)
	for _, n := range chunks {
		total += int64(n)
		ctrl.Commit(ctrl.Advance(n))
		lag := ctrl.Owed()
		if lag < 0 || lag >= 7 {
			t.Fatalf("lag %d outside [0, 7) after chunk %d", lag, n)
		}
	}
	ctrl.Commit(ctrl.Owed())
	want := total * 30 / 44100
	if ctrl.Progress().FramesWritten != want {
		t.Fatalf("frames = %d, want %d", ctrl.Progress().FramesWritten, want)
	}
}

func TestZeroThresholdProducesEveryFrame(t *testing.T) {
	ctrl, _ := newController(t, Options{BatchThreshold: 0})
	if owed := ctrl.Advance(1470); owed != 1 {
		t.Fatalf("owed = %d, want 1", owed)
	}
	if owed := ctrl.Advance(0); owed != 1 {
		t.Fatalf("uncommitted frame should still be owed, got %d", owed)
	}
}

func TestPaceSleepsWhenAheadOfWallClock(t *testing.T) {
	ctrl, clock := newController(t, Options{})

	if err := ctrl.Pace(context.Background()); err != nil {
		t.Fatalf("Pace: %v", err)
	}
	if len(clock.slept) != 0 {
		t.Fatalf("nothing written yet, should not sleep: %v", clock.slept)
	}

	ctrl.Advance(44100)
	clock.advance(250 * time.Millisecond)
	if err := ctrl.Pace(context.Background()); err != nil {
		t.Fatalf("Pace: %v", err)
	}
	if len(clock.slept) != 1 || clock.slept[0] != 750*time.Millisecond {
		t.Fatalf("slept %v, want [750ms]", clock.slept)
	}
}

func TestPaceRecordsOverrunWithoutError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctrl, clock := newController(t, Options{OverrunTolerance: 500 * time.Millisecond, Logger: logger})

	ctrl.Advance(44100)
	clock.advance(2 * time.Second)
	if err := ctrl.Pace(context.Background()); err != nil {
		t.Fatalf("overrun must not be an error: %v", err)
	}
	clock.advance(100 * time.Millisecond)
	if err := ctrl.Pace(context.Background()); err != nil {
		t.Fatalf("Pace: %v", err)
	}

	count, worst := ctrl.Overruns()
	if count != 2 {
		t.Fatalf("overruns = %d, want 2", count)
	}
	if worst != 1100*time.Millisecond {
		t.Fatalf("worst overrun = %v, want 1.1s", worst)
	}
	if got := strings.Count(buf.String(), "pacing_overrun"); got != 1 {
		t.Fatalf("expected one sampled warning, got %d\n%s", got, buf.String())
	}
}

func TestPaceHonorsContext(t *testing.T) {
	ctrl, err := New(Options{SampleRate: 44100, FPS: 30})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctrl.Start()
	ctrl.Advance(44100 * 60)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ctrl.Pace(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewValidatesOptions(t *testing.T) {
	cases := []Options{
		{SampleRate: 0, FPS: 30},
		{SampleRate: 44100, FPS: 0},
		{SampleRate: 44100, FPS: 30, BatchThreshold: -1},
	}
	for _, opts := range cases {
		if _, err := New(opts); err == nil {
			t.Fatalf("expected error for %+v", opts)
		}
	}
}

func TestFrameOffset(t *testing.T) {
	ctrl, _ := newController(t, Options{})
	if got := ctrl.FrameOffset(30); got != 44100 {
		t.Fatalf("FrameOffset(30) = %d, want 44100", got)
	}
	if got := ctrl.FrameOffset(1); got != 1470 {
		t.Fatalf("FrameOffset(1) = %d, want 1470", got)
	}
}
