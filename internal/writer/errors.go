package writer

import (
	"errors"
	"fmt"
)

// ErrSinkWrite marks a failure to open or write a pipe sink, usually because
// the encoder closed its read end.
var ErrSinkWrite = errors.New("sink write failed")

// SinkWriteError records which stream failed and at which step.
type SinkWriteError struct {
	Stream string
	Op     string
	Err    error
}

func (e *SinkWriteError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s sink %s: %v", e.Stream, e.Op, e.Err)
}

func (e *SinkWriteError) Unwrap() []error {
	if e == nil {
		return nil
	}
	return []error{ErrSinkWrite, e.Err}
}
