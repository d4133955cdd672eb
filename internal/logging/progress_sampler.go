package logging

import "strings"

// ProgressSampler suppresses repetitive playback progress logs while keeping
// signal when the track changes or the playhead crosses a percent bucket.
type ProgressSampler struct {
	bucketSize float64
	lastTrack  string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%) or when the track label changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. A negative
// percent means "unknown" and only a track change can trigger it.
func (s *ProgressSampler) ShouldLog(percent float64, track string) bool {
	if s == nil {
		return true
	}
	track = strings.TrimSpace(track)
	emit := false
	if track != "" && track != s.lastTrack {
		s.lastTrack = track
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		if percent > 100 {
			percent = 100
		}
		bucket := int(percent / s.bucketSize)
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastTrack = ""
	s.lastBucket = -1
}
