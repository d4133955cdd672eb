// Package render draws the raw RGBA video frames fed to the encoder.
//
// Rendering is a pure function of (Progress, TrackMeta): the same inputs
// always produce the same bytes, which keeps frames reproducible in tests.
package render
