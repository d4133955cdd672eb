package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chordcast/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List recent stream sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				entry, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
				if errors.Is(err, history.ErrNotFound) {
					return fmt.Errorf("session %s not found", args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderFields(entryFields(*entry)))
				return nil
			}

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No sessions recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistoryTable(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultListLimit, "Maximum number of sessions to list")
	return cmd
}

func renderHistoryTable(entries []history.Entry) string {
	headers := []string{"ID", "Started", "Status", "Duration", "Audio", "Frames", "Output"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			shortID(e.ID),
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			string(e.Status),
			formatDuration(e.Duration()),
			fmt.Sprintf("%.2fs", e.AudioSeconds),
			strconv.FormatInt(e.FramesWritten, 10),
			e.Output,
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}
	return renderTable(headers, rows, aligns)
}

func entryFields(e history.Entry) [][2]string {
	fields := [][2]string{
		{"ID", e.ID},
		{"Status", string(e.Status)},
		{"Started", e.StartedAt.Local().Format(time.RFC3339)},
		{"Duration", formatDuration(e.Duration())},
		{"Output", e.Output},
		{"Format", fmt.Sprintf("%dx%d @ %d fps, %d Hz", e.FrameWidth, e.FrameHeight, e.FPS, e.SampleRate)},
		{"Samples", strconv.FormatInt(e.SamplesWritten, 10)},
		{"Frames", strconv.FormatInt(e.FramesWritten, 10)},
		{"Audio seconds", fmt.Sprintf("%.3f", e.AudioSeconds)},
		{"Video seconds", fmt.Sprintf("%.3f", e.VideoSeconds)},
		{"Overruns", strconv.FormatInt(e.Overruns, 10)},
	}
	if e.Error != "" {
		fields = append(fields, [2]string{"Error", e.Error})
	}
	return fields
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
