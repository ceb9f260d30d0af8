// Package audit keeps a SQLite history of realized restriction level
// changes. Recorder is registered as a controller listener and writes in
// batches on its own goroutine.
package audit
