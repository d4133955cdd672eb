package deps

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"chordcast/internal/config"
)

const versionProbeTimeout = 5 * time.Second

// EncoderRequirements lists the binaries a stream session launches.
func EncoderRequirements(cfg *config.Config) []Requirement {
	binary := "ffmpeg"
	if cfg != nil && strings.TrimSpace(cfg.Encoder.Binary) != "" {
		binary = cfg.Encoder.Binary
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     binary,
			Description: "Muxes the audio and video pipes into the stream output",
		},
	}
}

// CheckEncoder resolves the encoder binary and runs it with -version. The
// first line of the version banner is reported as Detail when it starts.
func CheckEncoder(ctx context.Context, binary string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Muxes the audio and video pipes into the stream output",
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	result.Command = binary

	resolved, err := resolveBinary(binary)
	if err != nil {
		result.Detail = err.Error()
		return result
	}
	result.Command = resolved

	if ctx == nil {
		ctx = context.Background()
	}
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, resolved, "-hide_banner", "-version").Output()
	if err != nil {
		result.Detail = fmt.Sprintf("%s -version failed: %v", filepath.Base(resolved), err)
		return result
	}
	result.Available = true
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	if scanner.Scan() {
		result.Detail = strings.TrimSpace(scanner.Text())
	}
	return result
}

func resolveBinary(binary string) (string, error) {
	if strings.ContainsRune(binary, os.PathSeparator) {
		info, err := os.Stat(binary)
		if err != nil {
			return "", fmt.Errorf("binary %q not found", binary)
		}
		if !isExecutable(info) {
			return "", fmt.Errorf("binary %q is not executable", binary)
		}
		return binary, nil
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", fmt.Errorf("binary %q not found", binary)
	}
	return path, nil
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
