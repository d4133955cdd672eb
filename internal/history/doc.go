// Package history persists a ledger of stream sessions in SQLite.
//
// Each session writes a row when it starts and completes it when it stops or
// fails, so operators can review frame counts, audio duration, pacing
// overruns, and failure reasons after the fact. The database lives in the
// configured state directory and uses WAL mode with a busy retry so the CLI
// can read it while a session is writing.
package history
