package fifo

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// Sink is a named pipe at a fixed filesystem path.
type Sink struct {
	path string
}

// Create removes any stale file at path and creates a fresh FIFO there.
func Create(path string) (*Sink, error) {
	if path == "" {
		return nil, errors.New("fifo path is required")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale fifo %s: %w", path, err)
	}
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return nil, fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return &Sink{path: path}, nil
}

// Path returns the filesystem location of the pipe.
func (s *Sink) Path() string {
	return s.path
}

// OpenForWrite opens the write end. It blocks until a reader opens the pipe.
func (s *Sink) OpenForWrite() (io.WriteCloser, error) {
	f, err := os.OpenFile(s.path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open fifo %s for write: %w", s.path, err)
	}
	return f, nil
}

// Release unblocks a writer waiting in OpenForWrite by briefly opening the
// read end. The writer's subsequent writes fail with EPIPE, which is how a
// pipe writer learns that the encoder went away before reading anything.
func (s *Sink) Release() error {
	fd, err := unix.Open(s.path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("release fifo %s: %w", s.path, err)
	}
	return unix.Close(fd)
}

// Destroy removes the pipe from the filesystem. A missing file is not an error.
func (s *Sink) Destroy() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove fifo %s: %w", s.path, err)
	}
	return nil
}

// IsFIFO reports whether path currently names a FIFO special file.
func IsFIFO(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return info.Mode()&fs.ModeNamedPipe != 0
}
