package session

import (
	"errors"
	"fmt"

	"chordcast/internal/writer"
)

var (
	// ErrInvalidState is returned when an operation is called outside the
	// state it requires.
	ErrInvalidState = errors.New("invalid session state")
	// ErrSinkWrite marks a pipe write failure; the encoder is gone.
	ErrSinkWrite = writer.ErrSinkWrite
	// ErrInvariantViolation means the frames written at close did not match
	// the audio written. It indicates a defect, not a runtime condition.
	ErrInvariantViolation = errors.New("frame count invariant violated")
	// ErrPipeDirBusy means another session holds the pipe directory lock.
	ErrPipeDirBusy = errors.New("pipe directory in use by another session")
)

// SinkWriteError is the typed form of ErrSinkWrite.
type SinkWriteError = writer.SinkWriteError

// InvariantViolationError reports the mismatch found at close.
type InvariantViolationError struct {
	FramesWritten  int64
	ExpectedFrames int64
	AudioSeconds   float64
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%s: wrote %d frames for %.6fs of audio, expected %d",
		ErrInvariantViolation, e.FramesWritten, e.AudioSeconds, e.ExpectedFrames)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

func invalidState(op string, state State) error {
	return fmt.Errorf("%w: %s called while %s", ErrInvalidState, op, state)
}
