// Package gwlog provides the gateway's process-wide structured logger.
package gwlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var singleton atomic.Value // *slog.Logger

func init() {
	singleton.Store(newDefault())
}

func newDefault() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if unstructured() {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func unstructured() bool {
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	return format == "console" || format == "text"
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// SetLogger replaces the process-wide logger. Intended for tests and for
// wiring an alternate handler (e.g. during cmd/gatewayd startup).
func SetLogger(l *slog.Logger) {
	singleton.Store(l)
}

// Init rebuilds the process-wide logger from the resolved configuration's
// log level and format.
func Init(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if format == "console" || format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	SetLogger(slog.New(handler))
}

// Logger returns the current process-wide logger.
func Logger() *slog.Logger {
	return singleton.Load().(*slog.Logger)
}

// HashUsername returns a truncated SHA-256 digest of a username, suitable for
// correlating log lines without persisting the raw identity (see spec §7
// propagation policy: logs carry username_hash, never the username).
func HashUsername(username string) string {
	if username == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(username))
	return hex.EncodeToString(sum[:])[:16]
}

func Debug(msg string)                        { Logger().Debug(msg) }
func Debugf(format string, args ...any)        { Logger().Debug(fmt.Sprintf(format, args...)) }
func Debugw(msg string, kv ...any)             { Logger().Debug(msg, kv...) }
func Info(msg string)                          { Logger().Info(msg) }
func Infof(format string, args ...any)         { Logger().Info(fmt.Sprintf(format, args...)) }
func Infow(msg string, kv ...any)              { Logger().Info(msg, kv...) }
func Warn(msg string)                          { Logger().Warn(msg) }
func Warnf(format string, args ...any)         { Logger().Warn(fmt.Sprintf(format, args...)) }
func Warnw(msg string, kv ...any)              { Logger().Warn(msg, kv...) }
func Error(msg string)                         { Logger().Error(msg) }
func Errorf(format string, args ...any)        { Logger().Error(fmt.Sprintf(format, args...)) }
func Errorw(msg string, kv ...any)             { Logger().Error(msg, kv...) }

// DPanic logs at error level in production; callers that want a hard panic in
// development builds should set GATEWAY_DEV=1.
func DPanic(msg string) {
	Logger().Error(msg)
	if os.Getenv("GATEWAY_DEV") == "1" {
		panic(msg)
	}
}

func DPanicf(format string, args ...any) {
	DPanic(fmt.Sprintf(format, args...))
}

// WithContext returns a logger decorated with a correlation identifier, used
// to tie together a single request's log lines without exposing the
// identifier to the client.
func WithContext(ctx context.Context, correlationID string) *slog.Logger {
	if correlationID == "" {
		return Logger()
	}
	return Logger().With("correlation_id", correlationID)
}
