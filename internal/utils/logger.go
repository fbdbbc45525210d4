package utils

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the root logger from the logging section of the config.
// Output always goes to stdout; a log file, when configured, is rotated by lumberjack.
func NewLogger(config *Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(config.Logging.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", config.Logging.Level, err)
	}

	var stdout io.Writer = os.Stdout
	if config.Logging.Format == "console" {
		stdout = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	out := stdout
	if config.Logging.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   config.Logging.File,
			MaxSize:    config.Logging.MaxSizeMB,
			MaxBackups: config.Logging.MaxBackups,
			MaxAge:     config.Logging.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(stdout, rotator)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Str("component", "nfo-agent").Logger(), nil
}
