package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// SlogLogger is the slog backed Logger. It owns the writers it opened.
type SlogLogger struct {
	entry
	writers []io.WriteCloser
}

// entry does the actual logging; child loggers share the sanitizer but not the writers
type entry struct {
	logger    *slog.Logger
	sanitizer *Sanitizer
}

// NewSlogLogger builds a logger from config
func NewSlogLogger(config Config) (*SlogLogger, error) {
	sanitizer := NewSanitizer()
	if config.MaskHome {
		sanitizer.MaskHomeDirs()
	}

	var writers []io.Writer
	var closeable []io.WriteCloser

	for _, output := range config.Outputs {
		switch output.Type {
		case OutputStdout, OutputStderr:
			w := output.Writer
			if w == nil {
				if output.Type == OutputStdout {
					w = os.Stdout
				} else {
					w = os.Stderr
				}
			}
			writers = append(writers, w)
			if wc, ok := w.(io.WriteCloser); ok && !isStdStream(wc) {
				closeable = append(closeable, wc)
			}
		case OutputFile:
			if !config.File.Enabled {
				continue
			}
			fileWriter, err := createFileWriter(config.File)
			if err != nil {
				return nil, fmt.Errorf("failed to create file writer: %w", err)
			}
			writers = append(writers, fileWriter)
			closeable = append(closeable, fileWriter)
		}
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	out := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{
		Level: convertLevel(config.Level),
	}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	return &SlogLogger{
		entry: entry{
			logger:    slog.New(handler),
			sanitizer: sanitizer,
		},
		writers: closeable,
	}, nil
}

func isStdStream(w io.Writer) bool {
	return w == os.Stdout || w == os.Stderr || w == os.Stdin
}

// createFileWriter opens a rotating file writer
func createFileWriter(config FileConfig) (io.WriteCloser, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("log file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &lumberjack.Logger{
		Filename:   config.Path,
		MaxSize:    config.MaxSizeMB,
		MaxAge:     config.MaxAgeDays,
		MaxBackups: config.MaxBackups,
		Compress:   config.Compress,
	}, nil
}

func convertLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (e entry) Debug(msg string, args ...any) {
	e.logger.Debug(e.sanitizer.Sanitize(msg), e.sanitizer.SanitizeArgs(args)...)
}

func (e entry) Info(msg string, args ...any) {
	e.logger.Info(e.sanitizer.Sanitize(msg), e.sanitizer.SanitizeArgs(args)...)
}

func (e entry) Warn(msg string, args ...any) {
	e.logger.Warn(e.sanitizer.Sanitize(msg), e.sanitizer.SanitizeArgs(args)...)
}

func (e entry) Error(msg string, args ...any) {
	e.logger.Error(e.sanitizer.Sanitize(msg), e.sanitizer.SanitizeArgs(args)...)
}

// With returns a child logger carrying args. The child does not own any writers.
func (e entry) With(args ...any) Logger {
	return &childLogger{entry{
		logger:    e.logger.With(e.sanitizer.SanitizeArgs(args)...),
		sanitizer: e.sanitizer,
	}}
}

// Sync is a no-op; lumberjack writes through
func (e entry) Sync() error {
	return nil
}

// Shutdown closes every writer opened by NewSlogLogger
func (l *SlogLogger) Shutdown() error {
	var lastErr error
	for _, w := range l.writers {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	l.writers = nil
	return lastErr
}

type childLogger struct {
	entry
}

func (c *childLogger) Shutdown() error {
	return nil
}
