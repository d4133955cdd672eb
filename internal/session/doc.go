// Package session runs one live stream: it owns the two named pipes, the
// encoder process, both pipe writers, and the pacing state that keeps video
// frame production locked to the audio written.
//
// A Session moves INIT -> OPEN -> CLOSING -> CLOSED, or to FAILED when a pipe
// write fails or the frame count check at close does not hold. Exactly one
// goroutine drives WriteAudio; Snapshot may be called from any goroutine.
package session
