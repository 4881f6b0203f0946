package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-mixer/internal/infrastructure/config"
)

const serviceName = "graymixer"

// Logger is a slog.Logger whose level can be changed while running.
// Loggers derived with With share one level. Safe for concurrent use.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New builds the service logger from the logging section of the config.
// Output "stderr" writes to stderr; anything else writes to stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return newLogger(w, cfg.Format, cfg.Level, version)
}

func newLogger(w io.Writer, format, level, version string) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(parseLevel(level))
	opts := &slog.HandlerOptions{Level: lv}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h), level: lv}
}

// parseLevel accepts debug, info, warn (or warning) and error in any case,
// plus slog's offset form such as "INFO+2". Anything else is info.
func parseLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lv
}

// SetLevel changes the level for this logger and all loggers derived from it.
func (l *Logger) SetLevel(name string) {
	l.level.Set(parseLevel(name))
}

// Level returns the current level name in lower case, e.g. "debug" or
// "info+2".
func (l *Logger) Level() string {
	return strings.ToLower(l.level.Level().String())
}

// With returns a child logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// Default is the JSON stdout logger used until the config is loaded.
func Default() *Logger {
	return newLogger(os.Stdout, "json", "info", "dev")
}
