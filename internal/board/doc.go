// Package board implements the console plugin contract.
//
// A Plugin exposes the fixed operation set every console supports: connect
// and disconnect, state sync, the per-channel setters, scenes and meters.
// Board implements Plugin for any Model; a Model only describes a console
// (identity, capabilities, channel layout) and translates operations to and
// from wire messages. Models live in sub-packages and are selected by name
// through the catalog package.
//
// Outgoing operations follow one path:
//
//	resolve channel id -> drop if not connected -> skip if unsupported
//	  -> encode -> send every message under the device write lock
//
// An unknown channel id fails with mixer.InvalidChannelError before any I/O.
// A transport failure never reaches the caller: it is reported through the
// status handler and the board moves to the error state.
//
// Inbound bytes are queued per device and drained by a single consumer that
// decodes them, updates the board's channel cache and calls the handlers in
// arrival order.
package board
