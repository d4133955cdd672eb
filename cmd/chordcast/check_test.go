package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"chordcast/internal/deps"
)

const versionScript = "#!/bin/sh\necho 'ffmpeg version 7.1-test'\n"

func TestCheckCommandReportsEncoder(t *testing.T) {
	env := setupCLITestEnv(t, versionScript)

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "[OK] Ready (command: "+env.cfg.Encoder.Binary+"), ffmpeg version 7.1-test")
	requireContains(t, out, "Pipe directory:")
	requireContains(t, out, "mkfifo ok")
	requireContains(t, out, "History:")
}

func TestCheckCommandFailsWithoutEncoder(t *testing.T) {
	env := setupCLITestEnv(t, "#!/bin/sh\nexit 1\n")

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	if err == nil {
		t.Fatal("expected check to fail")
	}
	requireContains(t, out, "[ERROR]")
}

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("FFmpeg", statusError, "missing", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "FFmpeg:", "[ERROR] missing")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("FFmpeg", statusOK, "Ready", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestDependencyLinesOptionalWarns(t *testing.T) {
	lines := dependencyLines([]deps.Status{
		{Name: "FFmpeg", Available: true, Command: "ffmpeg"},
		{Name: "ffprobe", Optional: true},
	}, false)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[OK] Ready (command: ffmpeg)") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[WARN] not available") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestShouldColorizeNonTerminal(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected io.Discard to be non-terminal")
	}
}
