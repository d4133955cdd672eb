package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains filesystem locations used by a stream session.
type Paths struct {
	PipeDir   string `toml:"pipe_dir"`
	StateDir  string `toml:"state_dir"`
	LogDir    string `toml:"log_dir"`
	AudioPipe string `toml:"audio_pipe"`
	VideoPipe string `toml:"video_pipe"`
}

// Stream contains the audio/video timing contract and queue sizing.
type Stream struct {
	SampleRate     int `toml:"sample_rate"`
	FPS            int `toml:"fps"`
	FrameWidth     int `toml:"frame_width"`
	FrameHeight    int `toml:"frame_height"`
	QueueCapacity  int `toml:"queue_capacity"`
	BatchThreshold int `toml:"batch_threshold"`
	// PollIntervalMillis bounds how long a pipe writer waits on an empty queue
	// before re-checking its stop flag.
	PollIntervalMillis int `toml:"poll_interval_ms"`
	// OverrunToleranceMillis is how far wall-clock time may run ahead of the
	// audio written before the session reports a pacing overrun.
	OverrunToleranceMillis int `toml:"overrun_tolerance_ms"`
}

// Encoder contains the ffmpeg invocation settings.
type Encoder struct {
	Binary          string `toml:"binary"`
	Output          string `toml:"output"`
	Format          string `toml:"format"`
	VideoBitrate    string `toml:"video_bitrate"`
	AudioBitrate    string `toml:"audio_bitrate"`
	Preset          string `toml:"preset"`
	KeyframeSeconds int    `toml:"keyframe_seconds"`
	ThreadQueueSize int    `toml:"thread_queue_size"`
	Threads         int    `toml:"threads"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for chordcast.
//
// Configuration sections by subsystem:
//   - Paths: named pipe directory, state (history database) and log directories
//   - Stream: sample rate, frame rate, frame size, queue capacity, pacing
//   - Encoder: ffmpeg binary, output destination, and codec settings
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Stream  Stream  `toml:"stream"`
	Encoder Encoder `toml:"encoder"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chordcast/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("chordcast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the pipe, state, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.PipeDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// AudioPipePath returns the absolute path of the audio named pipe.
func (c *Config) AudioPipePath() string {
	return filepath.Join(c.Paths.PipeDir, c.Paths.AudioPipe)
}

// VideoPipePath returns the absolute path of the video named pipe.
func (c *Config) VideoPipePath() string {
	return filepath.Join(c.Paths.PipeDir, c.Paths.VideoPipe)
}

// HistoryPath returns the location of the session history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LogPath returns the log file mirrored from stderr, or "" without a log
// directory.
func (c *Config) LogPath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "chordcast.log")
}

// PollInterval returns the writer poll timeout as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Stream.PollIntervalMillis) * time.Millisecond
}

// OverrunTolerance returns the pacing overrun tolerance as a duration.
func (c *Config) OverrunTolerance() time.Duration {
	return time.Duration(c.Stream.OverrunToleranceMillis) * time.Millisecond
}

// FrameBytes is the size of one raw RGBA video frame.
func (c *Config) FrameBytes() int {
	return c.Stream.FrameWidth * c.Stream.FrameHeight * 4
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
