package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure logger construction.
type Options struct {
	// Level is the minimum level ("trace" … "error"). Empty means info.
	Level string

	// Console enables human-readable console output on stderr.
	Console bool

	// FilePath, when non-empty, additionally writes JSON logs to a rotating
	// file at this path.
	FilePath string

	// MaxFileSizeMB bounds each rotated log file. Zero means 50.
	MaxFileSizeMB int

	// MaxBackups bounds how many rotated files are kept. Zero means 5.
	MaxBackups int
}

// New builds the root zerolog.Logger for the process. File output rotates
// via lumberjack and passes through the sensitive-data filter.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	writers := make([]io.Writer, 0, 2)
	if opts.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if opts.FilePath != "" {
		maxSize := opts.MaxFileSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 5
		}
		_ = os.MkdirAll(filepath.Dir(opts.FilePath), 0o750)
		rotating := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		}
		writers = append(writers, NewFilteringWriter(rotating))
	}
	if len(writers) == 0 {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger().
		Hook(SensitiveDataHook{})
	return logger
}

// Nop returns a disabled logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
