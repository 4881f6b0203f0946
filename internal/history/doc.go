// Package history keeps a local audit trail of applied parameter changes
// in SQLite.
//
// A Recorder subscribes to the state manager and writes changes from a
// background goroutine so the control path never waits on disk. Queries
// return the newest entries first.
package history
