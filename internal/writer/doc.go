// Package writer drains one bounded queue into one named pipe.
//
// A Worker opens its sink, then moves byte payloads from the queue to the pipe
// in FIFO order until it has been asked to stop and the queue is empty. Stop
// is cooperative: queued payloads are always flushed before Run returns, so a
// normal shutdown never drops data. Write failures end the worker with a
// *SinkWriteError; the session observes it through its errgroup.
package writer
