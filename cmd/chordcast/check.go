package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chordcast/internal/config"
	"chordcast/internal/deps"
	"chordcast/internal/fifo"
	"chordcast/internal/history"
	"chordcast/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the encoder binary and working directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			encoderStatus := deps.CheckEncoder(cmd.Context(), cfg.Encoder.Binary)
			lines := []string{renderStatusLine("Config", statusInfo, displayConfigPath(ctx.configPath), colorize)}
			lines = append(lines, dependencyLines([]deps.Status{encoderStatus}, colorize)...)
			results := preflight.RunAll(cfg)
			lines = append(lines, preflightLines(results, colorize)...)
			lines = append(lines, stalePipeLines(cfg, colorize)...)
			lines = append(lines, historyLine(cmd, cfg, colorize))
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			if !encoderStatus.Available {
				return errors.New("encoder is not available")
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}
}

func displayConfigPath(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path + " (defaults)"
	}
	return path
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			if dep.Detail != "" {
				message += ", " + dep.Detail
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

func preflightLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func stalePipeLines(cfg *config.Config, colorize bool) []string {
	var lines []string
	for _, path := range []string{cfg.AudioPipePath(), cfg.VideoPipePath()} {
		if _, err := os.Lstat(path); err != nil {
			continue
		}
		message := "stale file, will be replaced: " + path
		if fifo.IsFIFO(path) {
			message = "left over from an earlier session or in use: " + path
		}
		lines = append(lines, renderStatusLine("Pipe", statusWarn, message, colorize))
	}
	return lines
}

func historyLine(cmd *cobra.Command, cfg *config.Config, colorize bool) string {
	store, err := history.Open(cfg)
	if err != nil {
		return renderStatusLine("History", statusError, err.Error(), colorize)
	}
	defer store.Close()
	entries, err := store.List(cmd.Context(), 1)
	if err != nil {
		return renderStatusLine("History", statusError, err.Error(), colorize)
	}
	message := store.Path()
	if len(entries) > 0 {
		message = fmt.Sprintf("%s (last session %s)", message, entries[0].Status)
	}
	return renderStatusLine("History", statusOK, message, colorize)
}
