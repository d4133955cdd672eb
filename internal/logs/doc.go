// Package logs reads the chordcast log file for the logs command.
//
// Tail returns the last lines with bounded memory. Follow polls for appended
// lines until its context ends and restarts from the top when the file is
// truncated or recreated.
package logs
