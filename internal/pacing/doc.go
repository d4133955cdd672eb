// Package pacing ties video frame production to the amount of audio written
// and throttles the producer to wall-clock playback rate.
//
// The Controller owns one session's Progress. Frame targets use integer
// sample arithmetic, so the frame count after N samples is exactly
// floor(N*fps/sampleRate) regardless of how the samples were chunked.
package pacing
