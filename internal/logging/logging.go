package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects how log lines are written to Output.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// FileConfig enables a rotated log file next to the stream output.
type FileConfig struct {
	Filename   string `yaml:"filename"`
	MaxSize    int    `yaml:"max_size_mb"`
	MaxAge     int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// Config describes the process logger.
type Config struct {
	Level     string      `yaml:"level"`
	Format    Format      `yaml:"format"`
	File      *FileConfig `yaml:"file"`
	Component string      `yaml:"-"`

	// Output defaults to stderr.
	Output io.Writer `yaml:"-"`
}

// New builds the process logger. The returned closer flushes and closes the
// log file, if any; it is never nil.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var writers []io.Writer
	switch cfg.Format {
	case "", FormatJSON:
		writers = append(writers, out)
	case FormatConsole:
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				"component",
				zerolog.MessageFieldName,
			},
		})
	default:
		return zerolog.Nop(), nopCloser{}, errors.New("log format must be json or console")
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != nil && cfg.File.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Filename), 0o755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
			LocalTime:  true,
		}
		writers = append(writers, file)
		closer = file
	}

	var w io.Writer = writers[0]
	if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger(), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
