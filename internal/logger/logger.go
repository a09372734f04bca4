package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the component-scoped logging surface used across the pipeline.
type Logger interface {
	Debug(component, message string, fields map[string]interface{})
	Info(component, message string, fields map[string]interface{})
	Warning(component, message string, fields map[string]interface{})
	Error(component string, err error, fields map[string]interface{})
}

type Options struct {
	Level string
	// File, when set, receives JSON lines through a size-rotated writer.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Console defaults to stdout.
	Console io.Writer
}

// ParseLevel maps a level name to zerolog. An empty name means info; DEBUG=1 in the
// environment forces debug.
func ParseLevel(name string) (zerolog.Level, error) {
	if os.Getenv("DEBUG") == "1" {
		return zerolog.DebugLevel, nil
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q: %w", name, err)
	}
	return level, nil
}

// New builds the console logger, teeing into a rotating file when Options.File is set. The
// returned closer releases the file and must be called on exit.
func New(opts Options) (*ZerologAdapter, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05.000"}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    valueOr(opts.MaxSizeMB, 50),
			MaxBackups: valueOr(opts.MaxBackups, 3),
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating
	}

	return NewZerolog(out, level), closer, nil
}

func valueOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
