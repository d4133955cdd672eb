// Package main hosts the chordcast CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration, checks that the encoder binary
// is present, runs a stream session fed by the demo progression generator,
// and lists the session history ledger. Streaming logic lives in the internal
// packages; commands here only wire collaborators together and render output.
package main
