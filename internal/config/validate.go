package config

import (
	"errors"
	"fmt"
	"sort"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStream(); err != nil {
		return err
	}
	if err := c.validateEncoder(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.PipeDir == "" {
		return errors.New("paths.pipe_dir must be set")
	}
	if c.Paths.AudioPipe == c.Paths.VideoPipe {
		return errors.New("paths.audio_pipe and paths.video_pipe must differ")
	}
	return nil
}

func (c *Config) validateStream() error {
	if err := ensurePositiveMap(map[string]int{
		"stream.sample_rate":      c.Stream.SampleRate,
		"stream.fps":              c.Stream.FPS,
		"stream.frame_width":      c.Stream.FrameWidth,
		"stream.frame_height":     c.Stream.FrameHeight,
		"stream.queue_capacity":   c.Stream.QueueCapacity,
		"stream.poll_interval_ms": c.Stream.PollIntervalMillis,
	}); err != nil {
		return err
	}
	if c.Stream.BatchThreshold < 0 {
		return errors.New("stream.batch_threshold must be >= 0")
	}
	if c.Stream.OverrunToleranceMillis < 0 {
		return errors.New("stream.overrun_tolerance_ms must be >= 0")
	}
	if c.Stream.FrameWidth%2 != 0 || c.Stream.FrameHeight%2 != 0 {
		return errors.New("stream.frame_width and stream.frame_height must be even (yuv420p output)")
	}
	return nil
}

func (c *Config) validateEncoder() error {
	if c.Encoder.Output == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/chordcast/config.toml"
		}
		return fmt.Errorf("encoder.output is required. Set CHORDCAST_OUTPUT or edit %s (create with 'chordcast config init')", defaultPath)
	}
	if c.Encoder.KeyframeSeconds <= 0 {
		return errors.New("encoder.keyframe_seconds must be positive")
	}
	if c.Encoder.Threads < 0 {
		return errors.New("encoder.threads must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
