// Package fifo manages the named pipes that carry raw audio and video into the
// encoder process.
//
// A Sink is created before the encoder starts, opened for writing by exactly
// one pipe writer, and destroyed after the encoder exits. Opening the write
// end blocks until the encoder opens the read end; Release exists for the case
// where the encoder dies before it ever does.
package fifo
