// Package encoder describes and launches the external ffmpeg process that
// muxes the raw audio and video pipes into one output stream.
//
// The contract is fixed per session: mono s16le PCM on one pipe, rgba frames
// of a fixed size and rate on the other, one muxed destination. Args renders
// the contract as ffmpeg flags; FFmpeg launches the process and forwards its
// stderr into the structured log.
package encoder
