// Package logging wires the process-wide structured logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how verbosely the logger writes.
type Options struct {
	Level      string // debug|info|warn|error
	FilePath   string // empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    bool
}

// New builds the root logger. With FilePath set, output goes to a rotated
// file via lumberjack; a human-readable stream is written to stderr when
// Console is set or when no FilePath is given, the way goproxy's
// DefaultLogger wrote to os.Stderr.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if opts.Console || opts.FilePath == "" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	if opts.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxOr(opts.MaxSizeMB, 50),
			MaxBackups: maxOr(opts.MaxBackups, 5),
			MaxAge:     maxOr(opts.MaxAgeDays, 28),
			Compress:   true,
		})
	}

	out := io.MultiWriter(writers...)
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func maxOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ForSession returns a child logger carrying a session id, mirroring
// goproxy's Logger.Printf("[%03d] ...", sessionID) convention but as a
// structured field instead of a formatted prefix.
func ForSession(base zerolog.Logger, sessionID int64) zerolog.Logger {
	return base.With().Int64("session", sessionID).Logger()
}
