// Package log configures the process-wide structured logger. Every package
// asks for a module logger; all of them share one tint handler and one level.
package log

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/lmittmann/tint"
)

var (
	level       = &slog.LevelVar{}
	rootHandler slog.Handler
	once        sync.Once
)

func init() {
	level.Set(slog.LevelInfo)
}

// SetLevel changes the level of every logger handed out by GetLogger.
func SetLevel(logLevel string) {
	level.Set(GetLogLevel(logLevel))
}

// Logger is a module-scoped slog.Logger.
type Logger struct {
	*slog.Logger
}

// Error logs msg at error level with err attached under the "err" key.
func (l *Logger) Error(msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{"err", err}, args...)
	}
	l.Logger.Error(msg, args...)
}

// With returns a Logger that includes args in every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{l.Logger.With(args...)}
}

// autoErrHandler renames bare error attributes to "err".
type autoErrHandler struct {
	slog.Handler
}

func (h *autoErrHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		if err, ok := a.Value.Any().(error); ok && (a.Key == "!BADKEY" || a.Key == "") {
			a = slog.String("err", err.Error())
		}
		out.AddAttrs(a)
		return true
	})
	return h.Handler.Handle(ctx, out)
}

func (h *autoErrHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &autoErrHandler{h.Handler.WithAttrs(attrs)}
}

func (h *autoErrHandler) WithGroup(name string) slog.Handler {
	return &autoErrHandler{h.Handler.WithGroup(name)}
}

func getHandler() slog.Handler {
	once.Do(func() {
		rootHandler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02 15:04:05.000",
		})
	})
	return &autoErrHandler{Handler: rootHandler}
}

// GetLogger returns a logger tagged with mod=module.
func GetLogger(module string) *Logger {
	return &Logger{slog.New(getHandler()).With("mod", module)}
}

// GetLogLevel maps a level name to a slog.Level. Unknown names map to info.
func GetLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
