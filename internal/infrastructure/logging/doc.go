// Package logging builds the service's slog logger.
//
// Records carry service and version attributes. The format is JSON unless
// logging.format is "text", and output goes to stdout unless
// logging.output is "stderr":
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Components take a child logger:
//
//	log := logging.New(cfg.Logging, version).With("component", "osc")
//	log.Info("listening", "addr", addr)
//
// The level is shared by a logger and its children and can be changed at
// runtime with SetLevel. The OSC bridge exposes it as
// /graymixer/logging/level, taking a name or an slog level number.
package logging
