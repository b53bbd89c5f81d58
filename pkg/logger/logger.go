// Package logger builds the zerolog logger used across the runner.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config 日志配置
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json 或 console
	Output string // stdout, stderr 或文件路径
}

// New 创建 zerolog 日志
// The returned closer releases the log file when Output is a path and is a
// no-op otherwise.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level: %w", err)
		}
		level = l
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("could not open log file: %w", err)
		}
		out, closer = f, f
	}

	return NewWithWriter(out, cfg.Format, level), closer, nil
}

// NewWithWriter 在给定 writer 上创建日志，format 为 console 时输出可读格式
func NewWithWriter(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
