package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmcdole/tagflow/internal/config"
	"github.com/mmcdole/tagflow/internal/domain"
)

// Session identifies one client run. Its fields go on every record so logs
// from several installs pointed at different backends can be told apart.
type Session struct {
	Version string
	Server  string
}

func (s Session) attrs() []any {
	attrs := []any{"app", "tagflow"}
	if s.Version != "" {
		attrs = append(attrs, "version", s.Version)
	}
	if s.Server != "" {
		attrs = append(attrs, "server", s.Server)
	}
	return attrs
}

// SetupLogger opens the configured log file and returns a JSON logger tagged with s
func SetupLogger(cfg *config.LoggingConfig, s Session) (*slog.Logger, error) {
	logPath := cfg.File
	if strings.HasPrefix(logPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		logPath = filepath.Join(home, logPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return NewLogger(logFile, cfg.Level).With(s.attrs()...), nil
}

// NewLogger returns a JSON logger writing to w at the given level
func NewLogger(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: replaceAttr,
	})
	return slog.New(handler)
}

// replaceAttr flattens cache identifiers to their string form and writes
// durations the way the config file spells them
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch v := a.Value.Any().(type) {
	case domain.SegmentKey:
		return slog.String(a.Key, v.String())
	case domain.Scope:
		return slog.String(a.Key, v.String())
	case time.Duration:
		return slog.String(a.Key, v.String())
	}
	return a
}

// Component tags logger with the subsystem name
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NullLogger returns a logger that discards all output
func NullLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
