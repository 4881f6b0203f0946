// Package oscbridge exposes the mixer over Open Sound Control.
//
// Inbound messages, one argument each:
//
//	/graymixer/{device}/{channel}/{parameter}  set a parameter
//	/graymixer/scene                           recall a scene (int)
//	/graymixer/logging/level                   set the log level (int32 slog level or name)
//
// Boolean parameters accept numeric toggles: any value above zero is on.
// When a feedback target is configured every applied change is sent back
// on the parameter's address, except changes that arrived over OSC.
// Booleans are sent as 1.0 or 0.0.
package oscbridge
