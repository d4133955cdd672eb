package writer

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"chordcast/internal/bqueue"
	"chordcast/internal/logging"
)

// DefaultPollInterval bounds how long a stopped worker waits before it notices
// the stop flag.
const DefaultPollInterval = 10 * time.Millisecond

// Opener yields the write end of a sink. fifo.Sink satisfies it.
type Opener interface {
	OpenForWrite() (io.WriteCloser, error)
}

// Stats is a point-in-time view of a worker's throughput.
type Stats struct {
	Items int64
	Bytes int64
}

// Worker moves payloads from a queue to a sink.
type Worker struct {
	name   string
	queue  *bqueue.Queue[[]byte]
	sink   Opener
	poll   time.Duration
	logger *slog.Logger

	stopped atomic.Bool
	opened  atomic.Bool
	items   atomic.Int64
	bytes   atomic.Int64
}

// New builds a worker. A non-positive poll interval falls back to
// DefaultPollInterval.
func New(name string, queue *bqueue.Queue[[]byte], sink Opener, poll time.Duration, logger *slog.Logger) *Worker {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	logger = logging.NewComponentLogger(logger, "writer").With(logging.String(logging.FieldStream, name))
	return &Worker{
		name:   name,
		queue:  queue,
		sink:   sink,
		poll:   poll,
		logger: logger,
	}
}

// Name returns the stream label, "audio" or "video".
func (w *Worker) Name() string {
	return w.name
}

// Stop asks the worker to exit once its queue is empty. Safe to call more
// than once and from any goroutine.
func (w *Worker) Stop() {
	w.stopped.Store(true)
}

// Opened reports whether Run has returned from opening the sink, whether or
// not the open succeeded.
func (w *Worker) Opened() bool {
	return w.opened.Load()
}

// Stats returns the counters accumulated so far.
func (w *Worker) Stats() Stats {
	return Stats{Items: w.items.Load(), Bytes: w.bytes.Load()}
}

// Run opens the sink and drains the queue into it. It returns nil after a
// full drain following Stop, a *SinkWriteError if the sink cannot be opened or
// written, or ctx.Err() if ctx is cancelled first. Cancellation is reserved
// for aborting after a sibling worker has already failed.
func (w *Worker) Run(ctx context.Context) error {
	out, err := w.sink.OpenForWrite()
	w.opened.Store(true)
	if err != nil {
		return &SinkWriteError{Stream: w.name, Op: "open", Err: err}
	}
	w.logger.Debug("sink opened")

	runErr := w.drain(ctx, out)
	if closeErr := out.Close(); closeErr != nil && runErr == nil {
		w.logger.Debug("sink close failed", logging.Error(closeErr))
	}
	if runErr != nil {
		return runErr
	}

	stats := w.Stats()
	w.logger.Debug("writer drained",
		logging.Int64("items", stats.Items),
		logging.Int64("bytes", stats.Bytes),
	)
	return nil
}

func (w *Worker) drain(ctx context.Context, out io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, ok := w.queue.Get(w.poll)
		if !ok {
			if w.stopped.Load() && w.queue.Len() == 0 {
				return nil
			}
			continue
		}
		n, err := out.Write(payload)
		w.bytes.Add(int64(n))
		if err != nil {
			return &SinkWriteError{Stream: w.name, Op: "write", Err: err}
		}
		w.items.Add(1)
	}
}
