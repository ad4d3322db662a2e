// Package logger builds the root zerolog logger, optionally teeing output
// into a size-rotated log file.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults when the config leaves them unset.
const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 5
	defaultMaxAgeDays = 30
)

// Config selects the log level, output format, and file rotation policy.
type Config struct {
	Level      string
	Format     string // "console" or "json"
	Path       string // log file directory; empty disables the file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger is the root logger plus the handle needed to close its file sink.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// New builds the root logger. Console output goes to stdout, human-readable
// unless the json format is selected; with a path configured, a rotated file
// receives the same stream. Dev builds floor the level at debug.
func New(cfg Config) *Logger {
	var console io.Writer = os.Stdout
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	level := parseLevel(cfg.Level)
	if devBuild() && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	output := console
	var rotator *lumberjack.Logger
	if cfg.Path != "" {
		if err := os.MkdirAll(cfg.Path, 0755); err == nil {
			rotator = &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Path, "helmarr.log"),
				MaxSize:    orDefault(cfg.MaxSizeMB, defaultMaxSizeMB),
				MaxBackups: orDefault(cfg.MaxBackups, defaultMaxBackups),
				MaxAge:     orDefault(cfg.MaxAgeDays, defaultMaxAgeDays),
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			output = io.MultiWriter(console, rotator)
		}
	}

	root := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &Logger{Logger: root, rotator: rotator}
}

// Close flushes and closes the file sink if one is open.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// devBuild reports whether the binary runs under "go run", whose temporary
// binaries live in a go-build cache directory.
func devBuild() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	return strings.Contains(exe, "go-build")
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
