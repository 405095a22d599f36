// Package logging sets up slog for the console and a rotating JSON file,
// and exposes package-level helpers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/giygas/prescriptions-web/config"
)

// Options configures Init
type Options struct {
	Dir            string
	Env            config.Environment
	Level          string
	Verbose        bool
	RetentionWeeks int
	MaxFileSize    int64
}

// LoggingService owns the global logger and its file
type LoggingService struct {
	Logger *slog.Logger
	file   *RotatingFile
}

var (
	mu                    sync.RWMutex
	DefaultLoggingService *LoggingService
)

// Init installs the global logger. Without a usable log directory it logs
// to the console only.
func Init(opts Options) *LoggingService {
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose),
	})

	svc := &LoggingService{}
	handler := slog.Handler(console)

	if opts.Dir != "" {
		file, err := OpenRotatingFile(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if err != nil {
			slog.New(console).Error("File logging disabled", "error", err)
		} else {
			svc.file = file
			handler = &multiHandler{handlers: []slog.Handler{
				console,
				slog.NewJSONHandler(file, &slog.HandlerOptions{Level: GetFileLogLevel()}),
			}}
		}
	}

	svc.Logger = slog.New(handler)

	mu.Lock()
	DefaultLoggingService = svc
	mu.Unlock()
	slog.SetDefault(svc.Logger)
	return svc
}

// Close flushes and closes the log file, if any
func (s *LoggingService) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.Close()
}

// NewDiscardLogger is used by tests that do not care about log output
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel picks the console level. Tests stay quiet unless verbose;
// staging and prod default to warn; an explicit level wins elsewhere.
func GetConsoleLogLevel(env config.Environment, level string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}
	if strings.TrimSpace(level) != "" {
		return parseLogLevel(level)
	}
	if env == config.EnvProduction || env == config.EnvStaging {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// GetFileLogLevel is always debug; the file keeps everything
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		return slog.Default()
	}
	return DefaultLoggingService.Logger
}

// Logger returns the global logger
func Logger() *slog.Logger {
	return current()
}

func Info(msg string, args ...any)  { current().Info(msg, args...) }
func Warn(msg string, args ...any)  { current().Warn(msg, args...) }
func Error(msg string, args ...any) { current().Error(msg, args...) }
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// multiHandler fans records out to several handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}
