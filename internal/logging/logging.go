// Package logging builds the zerolog logger shared by every component.
//
// Human-readable lines go to the console (stderr by default); when a file is
// configured the same events are also appended as JSON to a size-rotated log.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file created inside the data directory.
const FileName = "asccrash.log"

const (
	maxSizeMB  = 10
	maxBackups = 3
	maxAgeDays = 28
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name. Empty means info.
	Level string
	// Console receives human-readable output. Nil means os.Stderr.
	Console io.Writer
	// JSON writes console output as JSON instead of the pretty format.
	JSON bool
	// File is the rotating log file path. Empty disables file logging.
	File string
	// NoColor disables ANSI colours on the console.
	NoColor bool
}

// Logger is a zerolog logger plus the file it may hold open.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	if !opts.JSON {
		console = zerolog.ConsoleWriter{
			Out:        console,
			NoColor:    opts.NoColor,
			TimeFormat: time.Kitchen,
		}
	}

	l := &Logger{}
	out := console
	if opts.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
		}
		out = zerolog.MultiLevelWriter(console, l.file)
	}

	l.Logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return l, nil
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel maps a level name to a zerolog level. Empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	if s == "warning" {
		s = "warn"
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q (valid: trace, debug, info, warn, error)", s)
	}
	return level, nil
}

// Nop returns a logger that discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
