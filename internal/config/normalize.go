package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeEncoder(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.PipeDir) == "" {
		c.Paths.PipeDir = defaultPipeDir
	}
	if c.Paths.PipeDir, err = expandPath(c.Paths.PipeDir); err != nil {
		return fmt.Errorf("paths.pipe_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.AudioPipe = filepath.Base(strings.TrimSpace(c.Paths.AudioPipe))
	if c.Paths.AudioPipe == "" || c.Paths.AudioPipe == "." {
		c.Paths.AudioPipe = defaultAudioPipe
	}
	c.Paths.VideoPipe = filepath.Base(strings.TrimSpace(c.Paths.VideoPipe))
	if c.Paths.VideoPipe == "" || c.Paths.VideoPipe == "." {
		c.Paths.VideoPipe = defaultVideoPipe
	}
	return nil
}

func (c *Config) normalizeEncoder() error {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBinary
	}
	if value, ok := os.LookupEnv("CHORDCAST_OUTPUT"); ok && strings.TrimSpace(value) != "" {
		c.Encoder.Output = strings.TrimSpace(value)
	}
	c.Encoder.Output = strings.TrimSpace(c.Encoder.Output)
	if c.Encoder.Output != "" && !isURL(c.Encoder.Output) {
		var err error
		if c.Encoder.Output, err = expandPath(c.Encoder.Output); err != nil {
			return fmt.Errorf("encoder.output: %w", err)
		}
	}
	c.Encoder.Format = strings.ToLower(strings.TrimSpace(c.Encoder.Format))
	c.Encoder.Preset = strings.TrimSpace(c.Encoder.Preset)
	if c.Encoder.Preset == "" {
		c.Encoder.Preset = defaultPreset
	}
	c.Encoder.VideoBitrate = strings.TrimSpace(c.Encoder.VideoBitrate)
	if c.Encoder.VideoBitrate == "" {
		c.Encoder.VideoBitrate = defaultVideoBitrate
	}
	c.Encoder.AudioBitrate = strings.TrimSpace(c.Encoder.AudioBitrate)
	if c.Encoder.AudioBitrate == "" {
		c.Encoder.AudioBitrate = defaultAudioBitrate
	}
	if c.Encoder.ThreadQueueSize <= 0 {
		c.Encoder.ThreadQueueSize = defaultThreadQueueSize
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// isURL reports whether the encoder output names a network destination
// (rtmp://, srt://, udp://, ...) rather than a local file.
func isURL(value string) bool {
	return strings.Contains(value, "://")
}
