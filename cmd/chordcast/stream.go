package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"chordcast/internal/config"
	"chordcast/internal/deps"
	"chordcast/internal/encoder"
	"chordcast/internal/history"
	"chordcast/internal/logging"
	"chordcast/internal/preflight"
	"chordcast/internal/render"
	"chordcast/internal/session"
	"chordcast/internal/theory"
)

type streamFlags struct {
	duration     time.Duration
	seed         uint64
	chords       int
	chordSeconds float64
	chunk        int
	site         string
	output       string
}

func newStreamCommand(ctx *commandContext) *cobra.Command {
	flags := streamFlags{}

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Generate progressions and stream them through the encoder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if out := strings.TrimSpace(flags.output); out != "" {
				if !strings.Contains(out, "://") {
					if out, err = config.ExpandPath(out); err != nil {
						return fmt.Errorf("resolve output: %w", err)
					}
				}
				cfg.Encoder.Output = out
			}
			if !cmd.Flags().Changed("seed") {
				flags.seed = uint64(time.Now().UnixNano())
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var bar *progressbar.ProgressBar
			if flags.duration > 0 && shouldColorize(os.Stderr) {
				bar = newStreamBar(flags.duration, cfg.Stream.SampleRate)
			}
			summary, err := runStream(runCtx, cfg, flags, logger, bar)
			if bar != nil {
				_ = bar.Finish()
			}
			if summary.ID != "" {
				fmt.Fprintln(cmd.OutOrStdout(), renderFields(summaryFields(summary)))
			}
			return err
		},
	}

	cmd.Flags().DurationVarP(&flags.duration, "duration", "d", 0, "Stop after this much audio (0 streams until interrupted)")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 0, "Seed for the progression generator (default: time based)")
	cmd.Flags().IntVar(&flags.chords, "chords", 4, "Chords per progression")
	cmd.Flags().Float64Var(&flags.chordSeconds, "chord-seconds", 2, "Seconds each chord is held")
	cmd.Flags().IntVar(&flags.chunk, "chunk", 1024, "Samples per audio chunk handed to the session")
	cmd.Flags().StringVar(&flags.site, "site", "chordcast", "Site label drawn on every frame")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Override encoder.output for this run")
	return cmd
}

func newStreamBar(duration time.Duration, sampleRate int) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		int64(duration.Seconds()*float64(sampleRate)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("streaming"),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func runStream(ctx context.Context, cfg *config.Config, flags streamFlags, logger *slog.Logger, bar *progressbar.ProgressBar) (session.Summary, error) {
	if flags.chunk <= 0 {
		return session.Summary{}, errors.New("chunk must be positive")
	}
	if flags.chordSeconds <= 0 {
		return session.Summary{}, errors.New("chord-seconds must be positive")
	}
	for _, status := range deps.CheckBinaries(deps.EncoderRequirements(cfg)) {
		if !status.Available && !status.Optional {
			return session.Summary{}, fmt.Errorf("%s unavailable: %s", status.Name, status.Detail)
		}
	}

	if failed := preflight.Failed(preflight.RunAll(cfg)); len(failed) > 0 {
		return session.Summary{}, fmt.Errorf("preflight: %s: %s", failed[0].Name, failed[0].Detail)
	}

	launcher, err := encoder.NewFFmpeg(cfg.Encoder.Binary, encoder.ContractFromConfig(cfg), logger)
	if err != nil {
		return session.Summary{}, err
	}

	store, err := history.Open(cfg)
	if err != nil {
		return session.Summary{}, err
	}
	defer store.Close()

	playlist := &theory.Playlist{}
	producer := &render.Producer{
		Renderer: render.NewRenderer(cfg.Stream.FrameWidth, cfg.Stream.FrameHeight, flags.site),
		Lookup:   playlist,
	}

	budget := int64(flags.duration.Seconds() * float64(cfg.Stream.SampleRate))
	opts := session.OptionsFromConfig(cfg)
	opts.Frames = producer
	opts.Launcher = launcher
	opts.Recorder = store
	opts.Logger = logger
	opts.PlannedSamples = budget

	sess, err := session.New(opts)
	if err != nil {
		return session.Summary{}, err
	}
	if err := sess.Start(ctx); err != nil {
		return session.Summary{}, err
	}

	rng := rand.New(rand.NewPCG(flags.seed, flags.seed^0x9e3779b97f4a7c15))
	err = feed(ctx, sess, playlist, rng, cfg.Stream.SampleRate, flags, budget, func(written int64) {
		if bar != nil {
			_ = bar.Set64(written)
		}
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("stopping stream", logging.String("reason", stopReason(err)))
		return sess.Stop()
	default:
		// WriteAudio already tore the session down.
		return sess.Summary(), err
	}
}

func feed(ctx context.Context, sess *session.Session, playlist *theory.Playlist, rng *rand.Rand, sampleRate int, flags streamFlags, budget int64, progress func(int64)) error {
	var written int64
	for {
		prog := theory.RandomProgression(rng, flags.chords)
		track := theory.NewTrack(prog, sampleRate, flags.chordSeconds, 1+rng.Float64()*4, rng.Float64())
		playlist.Append(track)
		for _, chunk := range track.Chunks(flags.chunk) {
			if budget > 0 {
				remaining := budget - written
				if remaining <= 0 {
					return nil
				}
				if int64(len(chunk)) > remaining {
					chunk = chunk[:remaining]
				}
			}
			if err := sess.WriteAudio(ctx, session.AudioChunk{Samples: chunk}); err != nil {
				return err
			}
			written += int64(len(chunk))
			progress(written)
		}
	}
}

func stopReason(err error) string {
	if err != nil {
		return "interrupted"
	}
	return "duration reached"
}

func summaryFields(s session.Summary) [][2]string {
	return [][2]string{
		{"Session", s.ID},
		{"State", s.State.String()},
		{"Audio seconds", fmt.Sprintf("%.3f", s.Progress.AudioSeconds)},
		{"Frames", fmt.Sprintf("%d / %d", s.Progress.FramesWritten, s.ExpectedFrames)},
		{"Audio", fmt.Sprintf("%s in %d chunks", humanize.IBytes(uint64(s.Audio.Bytes)), s.Audio.Items)},
		{"Video", fmt.Sprintf("%s in %d frames", humanize.IBytes(uint64(s.Video.Bytes)), s.Video.Items)},
		{"Overruns", fmt.Sprintf("%d (worst %s)", s.Overruns, s.WorstOverrun.Round(time.Millisecond))},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
	}
}
