package fifo

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestCreateReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.fifo")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	sink, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !IsFIFO(sink.Path()) {
		t.Fatalf("expected %s to be a fifo", path)
	}

	if err := sink.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected fifo removed, stat err = %v", err)
	}
	if err := sink.Destroy(); err != nil {
		t.Fatalf("second Destroy should be a no-op: %v", err)
	}
}

func TestOpenForWriteBlocksUntilReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "video.fifo")
	sink, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = sink.Destroy() })

	opened := make(chan io.WriteCloser, 1)
	go func() {
		w, err := sink.OpenForWrite()
		if err != nil {
			t.Errorf("OpenForWrite: %v", err)
			close(opened)
			return
		}
		opened <- w
	}()

	select {
	case <-opened:
		t.Fatal("OpenForWrite returned before a reader existed")
	case <-time.After(50 * time.Millisecond):
	}

	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	var w io.WriteCloser
	select {
	case w = <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("OpenForWrite did not return after reader opened")
	}
	if w == nil {
		t.FailNow()
	}

	payload := []byte("frame-bytes")
	go func() {
		_, _ = w.Write(payload)
		_ = w.Close()
	}()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("read %q, want %q", got, payload)
	}
}

func TestReleaseUnblocksWriterWithBrokenPipe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.fifo")
	sink, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = sink.Destroy() })

	result := make(chan error, 1)
	go func() {
		w, err := sink.OpenForWrite()
		if err != nil {
			result <- err
			return
		}
		defer w.Close()
		// A concurrent release can briefly hold a read end open, so retry
		// until the write fails.
		for i := 0; i < 1000; i++ {
			if _, err = w.Write([]byte("x")); err != nil {
				break
			}
			time.Sleep(time.Millisecond)
		}
		result <- err
	}()

	// A release that lands before the writer starts opening is a no-op, so
	// keep releasing until the writer reports back.
	deadline := time.After(2 * time.Second)
	for {
		if err := sink.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
		select {
		case err := <-result:
			if !errors.Is(err, syscall.EPIPE) {
				t.Fatalf("expected EPIPE after release, got %v", err)
			}
			return
		case <-deadline:
			t.Fatal("writer stayed blocked after Release")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestReleaseMissingPipeIsNoop(t *testing.T) {
	sink := &Sink{path: filepath.Join(t.TempDir(), "gone.fifo")}
	if err := sink.Release(); err != nil {
		t.Fatalf("Release on missing pipe: %v", err)
	}
}

func TestCreateRequiresPath(t *testing.T) {
	if _, err := Create(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
