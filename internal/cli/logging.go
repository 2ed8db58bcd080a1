package cli

import (
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger builds the process logger. Output goes to stderr, or to a
// rotating file when cfg.LogFile is set. The returned closer releases the
// file and is a no-op otherwise.
func newLogger(cfg *Config, opts *RootOptions, stderr io.Writer) (*slog.Logger, io.Closer) {
	level := parseLevel(cfg.LogLevel)
	if opts.Verbose {
		level = slog.LevelDebug
	}

	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		out, closer = rotator, rotator
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), closer
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
