// Package deps checks for the external binaries chordcast shells out to.
package deps
