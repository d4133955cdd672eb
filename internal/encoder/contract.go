package encoder

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chordcast/internal/config"
)

const (
	SampleFormat = "s16le"
	PixelFormat  = "rgba"
	Channels     = 1
)

// Contract fixes the formats both sides of the pipes agree on.
type Contract struct {
	SampleRate      int
	Channels        int
	Width           int
	Height          int
	FPS             int
	Output          string
	Format          string
	VideoBitrate    string
	AudioBitrate    string
	Preset          string
	KeyframeSeconds int
	ThreadQueueSize int
	Threads         int
}

// ContractFromConfig derives the encoder contract from loaded configuration.
func ContractFromConfig(cfg *config.Config) Contract {
	return Contract{
		SampleRate:      cfg.Stream.SampleRate,
		Channels:        Channels,
		Width:           cfg.Stream.FrameWidth,
		Height:          cfg.Stream.FrameHeight,
		FPS:             cfg.Stream.FPS,
		Output:          cfg.Encoder.Output,
		Format:          cfg.Encoder.Format,
		VideoBitrate:    cfg.Encoder.VideoBitrate,
		AudioBitrate:    cfg.Encoder.AudioBitrate,
		Preset:          cfg.Encoder.Preset,
		KeyframeSeconds: cfg.Encoder.KeyframeSeconds,
		ThreadQueueSize: cfg.Encoder.ThreadQueueSize,
		Threads:         cfg.Encoder.Threads,
	}
}

// Validate rejects contracts ffmpeg could not honour.
func (c Contract) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return errors.New("encoder contract: sample rate must be positive")
	case c.Channels != Channels:
		return fmt.Errorf("encoder contract: only mono audio is supported, got %d channels", c.Channels)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("encoder contract: invalid frame size %dx%d", c.Width, c.Height)
	case c.FPS <= 0:
		return errors.New("encoder contract: fps must be positive")
	case strings.TrimSpace(c.Output) == "":
		return errors.New("encoder contract: output is required")
	}
	return nil
}

// FrameBytes is the size of one raw video frame.
func (c Contract) FrameBytes() int {
	return c.Width * c.Height * 4
}

// ContainerFormat is the muxer ffmpeg should use, or "" to let ffmpeg infer
// it from the output name.
func (c Contract) ContainerFormat() string {
	if format := strings.TrimSpace(c.Format); format != "" {
		return format
	}
	lower := strings.ToLower(c.Output)
	if strings.HasPrefix(lower, "rtmp://") || strings.HasPrefix(lower, "rtmps://") || strings.HasSuffix(lower, ".flv") {
		return "flv"
	}
	return ""
}

// Args renders the ffmpeg command line for contract c reading from the two
// pipes. Both inputs are paced in real time and the output framerate is
// pinned to the contract's fps.
func Args(c Contract, audioPipe, videoPipe string) []string {
	fps := strconv.Itoa(c.FPS)
	args := make([]string, 0, 64)
	if c.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(c.Threads))
	}
	args = append(args, "-hide_banner", "-nostdin", "-re", "-y")

	args = append(args,
		"-f", SampleFormat,
		"-acodec", "pcm_"+SampleFormat,
		"-ar", strconv.Itoa(c.SampleRate),
		"-ac", strconv.Itoa(max(c.Channels, 1)),
	)
	args = appendThreadQueue(args, c.ThreadQueueSize)
	args = append(args, "-i", audioPipe)

	args = append(args,
		"-s", fmt.Sprintf("%dx%d", c.Width, c.Height),
		"-f", "rawvideo",
		"-pix_fmt", PixelFormat,
		"-r", fps,
	)
	args = appendThreadQueue(args, c.ThreadQueueSize)
	args = append(args, "-i", videoPipe)

	args = append(args,
		"-map", "0:a",
		"-map", "1:v",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
	)
	if c.Preset != "" {
		args = append(args, "-preset", c.Preset)
	}
	args = append(args, "-tune", "zerolatency")
	if c.KeyframeSeconds > 0 {
		args = append(args, "-g", strconv.Itoa(c.KeyframeSeconds*c.FPS), "-x264opts", "no-scenecut")
	}
	args = append(args, "-vsync", "cfr", "-c:a", "aac")
	if c.AudioBitrate != "" {
		args = append(args, "-b:a", c.AudioBitrate)
	}
	if c.VideoBitrate != "" {
		args = append(args, "-b:v", c.VideoBitrate)
	}
	args = append(args, "-r", fps)

	if format := c.ContainerFormat(); format != "" {
		args = append(args, "-f", format)
		if format == "flv" {
			args = append(args, "-flvflags", "no_duration_filesize")
		}
	}
	return append(args, c.Output)
}

func appendThreadQueue(args []string, size int) []string {
	if size <= 0 {
		return args
	}
	return append(args, "-thread_queue_size", strconv.Itoa(size))
}
