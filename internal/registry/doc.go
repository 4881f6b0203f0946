// Package registry holds the set of live console plugins and fans
// operations out to them.
//
// Every registered plugin gets its own worker goroutine with a FIFO queue,
// so operations submitted to one plugin run in submission order while
// different plugins run in parallel. A failing or panicking operation is
// reported as that plugin's Outcome and never affects the others.
//
// A connection string (port) can be bound to only one plugin at a time.
package registry
