package history

import "time"

// Status is the lifecycle state recorded for a session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record describes a session at start.
type Record struct {
	ID          string
	Output      string
	SampleRate  int
	FPS         int
	FrameWidth  int
	FrameHeight int
	StartedAt   time.Time
}

// Outcome is what a session reports when it ends.
type Outcome struct {
	Status         Status
	SamplesWritten int64
	FramesWritten  int64
	AudioSeconds   float64
	VideoSeconds   float64
	Overruns       int64
	Error          string
}

// Entry is one row of the ledger.
type Entry struct {
	Record
	Outcome
	EndedAt *time.Time
}

// Duration is how long the session ran, or zero while it is still running.
func (e Entry) Duration() time.Duration {
	if e.EndedAt == nil {
		return 0
	}
	return e.EndedAt.Sub(e.StartedAt)
}
