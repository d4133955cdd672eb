// Package theory is a small music model that feeds the streaming pipeline
// with something to play: diatonic scales, their triads, chord progressions,
// and sine-tone tracks rendered from them.
//
// It stands in for a richer upstream generator. The pipeline only needs float
// sample chunks and a position-keyed metadata lookup, both provided by Track
// and Playlist.
package theory
