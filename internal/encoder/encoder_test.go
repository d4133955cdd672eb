package encoder

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"chordcast/internal/config"
	"chordcast/internal/fifo"
)

const catInputsScript = `#!/bin/sh
prev=""
for arg in "$@"; do
  if [ "$prev" = "-i" ]; then
    cat "$arg" > /dev/null &
  fi
  prev="$arg"
done
wait
echo "muxing finished" >&2
exit 0
`

func writeStub(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return path
}

func testContract(output string) Contract {
	return Contract{
		SampleRate:      44100,
		Channels:        1,
		Width:           426,
		Height:          240,
		FPS:             30,
		Output:          output,
		VideoBitrate:    "200k",
		AudioBitrate:    "128k",
		Preset:          "ultrafast",
		KeyframeSeconds: 3,
		ThreadQueueSize: 1024,
		Threads:         2,
	}
}

func flagValue(args []string, flag string, occurrence int) string {
	seen := 0
	for i := 0; i < len(args)-1; i++ {
		if args[i] != flag {
			continue
		}
		if seen == occurrence {
			return args[i+1]
		}
		seen++
	}
	return ""
}

func TestArgsHonorContract(t *testing.T) {
	args := Args(testContract("rtmp://live.example/app/key"), "/tmp/a.fifo", "/tmp/v.fifo")

	if got := flagValue(args, "-i", 0); got != "/tmp/a.fifo" {
		t.Fatalf("first input = %q, want audio pipe", got)
	}
	if got := flagValue(args, "-i", 1); got != "/tmp/v.fifo" {
		t.Fatalf("second input = %q, want video pipe", got)
	}
	checks := map[string]string{
		"-ar":       "44100",
		"-ac":       "1",
		"-s":        "426x240",
		"-g":        "90",
		"-b:v":      "200k",
		"-b:a":      "128k",
		"-preset":   "ultrafast",
		"-flvflags": "no_duration_filesize",
	}
	for flag, want := range checks {
		if got := flagValue(args, flag, 0); got != want {
			t.Fatalf("%s = %q, want %q", flag, got, want)
		}
	}
	if got := flagValue(args, "-f", 0); got != "s16le" {
		t.Fatalf("audio input format = %q", got)
	}
	if got := flagValue(args, "-f", 1); got != "rawvideo" {
		t.Fatalf("video input format = %q", got)
	}
	if got := flagValue(args, "-f", 2); got != "flv" {
		t.Fatalf("output format = %q", got)
	}
	if got := flagValue(args, "-pix_fmt", 0); got != "rgba" {
		t.Fatalf("input pixel format = %q", got)
	}
	if !slices.Contains(args, "-re") {
		t.Fatal("expected live pacing flag -re")
	}
	if last := args[len(args)-1]; last != "rtmp://live.example/app/key" {
		t.Fatalf("output must be last, got %q", last)
	}
	// Output framerate is fixed after the inputs.
	if got := flagValue(args, "-r", 1); got != "30" {
		t.Fatalf("output framerate = %q", got)
	}
}

func TestArgsLetFFmpegInferFormatFromExtension(t *testing.T) {
	args := Args(testContract("/srv/out/stream.mp4"), "a", "v")
	if got := flagValue(args, "-f", 2); got != "" {
		t.Fatalf("unexpected output format %q", got)
	}
	if slices.Contains(args, "-flvflags") {
		t.Fatal("flv flags on non-flv output")
	}

	c := testContract("/srv/out/stream.mkv")
	c.Format = "matroska"
	args = Args(c, "a", "v")
	if got := flagValue(args, "-f", 2); got != "matroska" {
		t.Fatalf("explicit format = %q", got)
	}
}

func TestContractFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.Output = "/tmp/out.flv"
	c := ContractFromConfig(&cfg)
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.FrameBytes() != cfg.Stream.FrameWidth*cfg.Stream.FrameHeight*4 {
		t.Fatalf("frame bytes = %d", c.FrameBytes())
	}
	if c.ContainerFormat() != "flv" {
		t.Fatalf("container = %q", c.ContainerFormat())
	}
}

func TestContractValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Contract)
	}{
		{"sample rate", func(c *Contract) { c.SampleRate = 0 }},
		{"stereo", func(c *Contract) { c.Channels = 2 }},
		{"frame size", func(c *Contract) { c.Width = 0 }},
		{"fps", func(c *Contract) { c.FPS = -1 }},
		{"output", func(c *Contract) { c.Output = " " }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testContract("/tmp/out.flv")
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFFmpegLaunchReadsBothPipes(t *testing.T) {
	dir := t.TempDir()
	binary := writeStub(t, dir, "ffmpeg", catInputsScript)

	audio, err := fifo.Create(filepath.Join(dir, "audio.fifo"))
	if err != nil {
		t.Fatalf("create audio fifo: %v", err)
	}
	video, err := fifo.Create(filepath.Join(dir, "video.fifo"))
	if err != nil {
		t.Fatalf("create video fifo: %v", err)
	}

	var logs syncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	launcher, err := NewFFmpeg(binary, testContract(filepath.Join(dir, "out", "stream.flv")), logger)
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}
	proc, err := launcher.Launch(context.Background(), audio.Path(), video.Path())
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if proc.Pid() <= 0 {
		t.Fatalf("unexpected pid %d", proc.Pid())
	}

	for _, sink := range []*fifo.Sink{audio, video} {
		w, err := sink.OpenForWrite()
		if err != nil {
			t.Fatalf("open %s: %v", sink.Path(), err)
		}
		if _, err := w.Write(bytes.Repeat([]byte{1}, 4096)); err != nil {
			t.Fatalf("write %s: %v", sink.Path(), err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close %s: %v", sink.Path(), err)
		}
	}

	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("encoder stub did not exit")
	}
	if err := proc.Wait(); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if !strings.Contains(logs.String(), "muxing finished") {
		t.Fatalf("stderr not forwarded to log:\n%s", logs.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); err != nil {
		t.Fatalf("output directory not created: %v", err)
	}
}

func TestFFmpegNonZeroExitWrapsErrEncoderExit(t *testing.T) {
	dir := t.TempDir()
	binary := writeStub(t, dir, "ffmpeg", "#!/bin/sh\necho 'Connection refused' >&2\nexit 3\n")

	launcher, err := NewFFmpeg(binary, testContract(filepath.Join(dir, "stream.flv")), nil)
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}
	proc, err := launcher.Launch(context.Background(), "a", "v")
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	err = proc.Wait()
	if !errors.Is(err, ErrEncoderExit) {
		t.Fatalf("expected ErrEncoderExit, got %v", err)
	}
	if !strings.Contains(err.Error(), "Connection refused") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

func TestNewFFmpegRequiresBinary(t *testing.T) {
	if _, err := NewFFmpeg(" ", testContract("/tmp/x.flv"), nil); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
