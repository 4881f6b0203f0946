// Package api implements the HTTP REST API and WebSocket server for the
// mixer core.
//
// This package provides:
//   - REST endpoints for devices, channel parameters, scenes and snapshots
//   - A WebSocket endpoint whose clients are broadcast observers
//   - Parameter change history and meter readouts
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support
//
// # Architecture
//
// Every write goes through the state manager, which updates canonical
// state, dispatches to the board plugins and notifies its listeners. The
// broadcaster is one of those listeners; WebSocket clients receive the
// resulting events through it, except for the client that submitted the
// change.
//
// # Graceful Degradation
//
// History is optional. Without it the history endpoint answers 503 and
// everything else keeps working.
package api
