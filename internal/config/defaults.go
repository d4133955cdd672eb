package config

const (
	defaultPipeDir                = "~/.local/share/chordcast/pipes"
	defaultStateDir               = "~/.local/share/chordcast"
	defaultLogDir                 = "~/.local/share/chordcast/logs"
	defaultAudioPipe              = "audio.fifo"
	defaultVideoPipe              = "video.fifo"
	defaultSampleRate             = 44100
	defaultFPS                    = 30
	defaultFrameWidth             = 426
	defaultFrameHeight            = 240
	defaultQueueCapacity          = 256
	defaultBatchThreshold         = 15
	defaultPollIntervalMillis     = 10
	defaultOverrunToleranceMillis = 500
	defaultEncoderBinary          = "ffmpeg"
	defaultEncoderOutput          = "~/.local/share/chordcast/stream.flv"
	defaultVideoBitrate           = "200k"
	defaultAudioBitrate           = "128k"
	defaultPreset                 = "ultrafast"
	defaultKeyframeSeconds        = 3
	defaultThreadQueueSize        = 1024
	defaultEncoderThreads         = 2
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			PipeDir:   defaultPipeDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			AudioPipe: defaultAudioPipe,
			VideoPipe: defaultVideoPipe,
		},
		Stream: Stream{
			SampleRate:             defaultSampleRate,
			FPS:                    defaultFPS,
			FrameWidth:             defaultFrameWidth,
			FrameHeight:            defaultFrameHeight,
			QueueCapacity:          defaultQueueCapacity,
			BatchThreshold:         defaultBatchThreshold,
			PollIntervalMillis:     defaultPollIntervalMillis,
			OverrunToleranceMillis: defaultOverrunToleranceMillis,
		},
		Encoder: Encoder{
			Binary:          defaultEncoderBinary,
			Output:          defaultEncoderOutput,
			VideoBitrate:    defaultVideoBitrate,
			AudioBitrate:    defaultAudioBitrate,
			Preset:          defaultPreset,
			KeyframeSeconds: defaultKeyframeSeconds,
			ThreadQueueSize: defaultThreadQueueSize,
			Threads:         defaultEncoderThreads,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
