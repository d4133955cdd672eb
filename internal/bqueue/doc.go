// Package bqueue provides a fixed-capacity FIFO shared by one producer and one
// consumer goroutine.
//
// Put blocks while the queue is full, which is how a slow pipe reader pushes
// back on the audio-producing goroutine. Get waits at most a caller-chosen
// timeout so a consumer can poll a stop flag between items. There is no Close:
// lifetime is managed by the caller.
package bqueue
