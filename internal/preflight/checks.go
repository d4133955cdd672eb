package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"chordcast/internal/fifo"
)

const probePipeName = ".chordcast-preflight.fifo"

// CheckDirectoryAccess verifies that path exists, is a directory, and is
// readable, writable, and traversable by the current user.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckPipeSupport creates and removes a throwaway named pipe in dir. Some
// network and FUSE filesystems refuse mkfifo.
func CheckPipeSupport(dir string) Result {
	const name = "Named pipes"
	sink, err := fifo.Create(filepath.Join(dir, probePipeName))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", dir, err)}
	}
	if err := sink.Destroy(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: remove probe: %v)", dir, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (mkfifo ok)", dir)}
}

// CheckOutputTarget verifies a file output can be created. Network outputs
// are only checked for a scheme; reachability is the encoder's concern.
func CheckOutputTarget(output string) Result {
	const name = "Output"
	output = strings.TrimSpace(output)
	if output == "" {
		return Result{Name: name, Detail: "(error: encoder.output is empty)"}
	}
	if strings.Contains(output, "://") {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (network)", output)}
	}
	dir := nearestExisting(filepath.Dir(output))
	if dir == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing parent directory)", output)}
	}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s not writable: %v)", output, dir, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (writable)", output)}
}

func nearestExisting(dir string) string {
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if info.IsDir() {
				return dir
			}
			return ""
		}
		if !errors.Is(err, os.ErrNotExist) {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
