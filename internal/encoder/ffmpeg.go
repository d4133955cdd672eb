package encoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"chordcast/internal/logging"
)

// ErrEncoderExit is wrapped by Process.Wait when the encoder exits non-zero.
var ErrEncoderExit = errors.New("encoder exited with error")

const stderrTailLines = 8

// Process is a running encoder.
type Process interface {
	// Wait blocks until the encoder exits. Safe to call more than once.
	Wait() error
	Pid() int
}

// Launcher starts an encoder reading from the two pipe paths.
type Launcher interface {
	Launch(ctx context.Context, audioPipe, videoPipe string) (Process, error)
}

// FFmpeg launches ffmpeg with the flags Args produces.
type FFmpeg struct {
	Binary   string
	Contract Contract
	Logger   *slog.Logger
}

// NewFFmpeg returns a launcher for binary honouring contract.
func NewFFmpeg(binary string, contract Contract, logger *slog.Logger) (*FFmpeg, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	if err := contract.Validate(); err != nil {
		return nil, err
	}
	return &FFmpeg{Binary: binary, Contract: contract, Logger: logger}, nil
}

// Launch starts ffmpeg. The process is killed if ctx is cancelled.
func (f *FFmpeg) Launch(ctx context.Context, audioPipe, videoPipe string) (Process, error) {
	logger := logging.NewComponentLogger(logging.WithContext(ctx, f.Logger), "encoder")
	if out := f.Contract.Output; !strings.Contains(out, "://") {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	args := Args(f.Contract, audioPipe, videoPipe)
	cmd := exec.CommandContext(ctx, f.Binary, args...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", f.Binary, err)
	}
	logger.Info("encoder started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String("output", f.Contract.Output),
		logging.String("format", f.Contract.ContainerFormat()),
	)
	logger.Debug("encoder command", logging.String("args", strings.Join(args, " ")))

	p := &ffmpegProcess{
		cmd:        cmd,
		logger:     logger,
		stderrDone: make(chan struct{}),
	}
	go p.forwardStderr(stderr)
	return p, nil
}

type ffmpegProcess struct {
	cmd        *exec.Cmd
	logger     *slog.Logger
	stderrDone chan struct{}

	mu   sync.Mutex
	tail []string

	once sync.Once
	err  error
}

func (p *ffmpegProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *ffmpegProcess) Wait() error {
	p.once.Do(func() {
		<-p.stderrDone
		if err := p.cmd.Wait(); err != nil {
			p.err = fmt.Errorf("%w: %v%s", ErrEncoderExit, err, p.tailSuffix())
			p.logger.Warn("encoder exited", logging.Error(p.err))
			return
		}
		p.logger.Info("encoder exited")
	})
	return p.err
}

func (p *ffmpegProcess) forwardStderr(r io.Reader) {
	defer close(p.stderrDone)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p.logger.Debug("ffmpeg", logging.String("line", line))
		p.mu.Lock()
		p.tail = append(p.tail, line)
		if len(p.tail) > stderrTailLines {
			p.tail = p.tail[len(p.tail)-stderrTailLines:]
		}
		p.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("encoder stderr read failed", logging.Error(err))
		// Keep draining so ffmpeg never blocks on a full stderr pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func (p *ffmpegProcess) tailSuffix() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tail) == 0 {
		return ""
	}
	return " (" + p.tail[len(p.tail)-1] + ")"
}
