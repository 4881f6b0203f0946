// Package mixer defines the protocol-agnostic parameter model shared by every
// part of Gray Logic Mixer.
//
// The model describes a console as a set of channels (inputs, auxes, FX
// returns, DCAs, main bus and so on), each carrying normalised values that do
// not depend on any wire protocol:
//
//	fader   0.0 .. 1.0
//	pan    -1.0 .. 1.0   (0.0 is centre)
//	gain   -144 .. +24 dB
//
// Board plugins translate these values to device integers; the state manager
// keeps one canonical MixerState per connected device.
//
// # Channel identifiers
//
// Channels are addressed by stable string ids built from their type and
// 1-based number:
//
//	input_1 .. input_N
//	stereo_1, aux_1, bus_1, fx_1 (FX return), fxsend_1, dca_1, matrix_1
//	main
//
// When several devices are connected, ids are namespaced as
// "device_id:channel_id" (see ChannelKey).
//
// # Errors
//
// The error taxonomy lives in errors.go. Every typed error unwraps to a
// package sentinel so callers can branch with errors.Is.
package mixer
