package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Level is the numeric log level accepted at the flat boundary.
type Level int32

const (
	LevelDebug   Level = 0
	LevelInfo    Level = 1
	LevelWarning Level = 2
	LevelError   Level = 3
)

// ParseLevel converts a boundary level into a Level.
func ParseLevel(v int32) (Level, error) {
	l := Level(v)
	if l < LevelDebug || l > LevelError {
		return LevelInfo, fmt.Errorf("log level %d out of range [0, 3]", v)
	}
	return l, nil
}

// Slog maps the level onto slog's scale.
func (l Level) Slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// NewLeveledLogger writes text lines to w, filtered by lv. Changing lv later
// takes effect on every logger derived from the returned one.
func NewLeveledLogger(w io.Writer, lv *slog.LevelVar) ServiceLogger {
	if w == nil {
		w = os.Stderr
	}
	if lv == nil {
		lv = new(slog.LevelVar)
	}
	return NewSlogServiceLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})))
}

// NewStderrLogger is NewLeveledLogger on os.Stderr.
func NewStderrLogger(lv *slog.LevelVar) ServiceLogger {
	return NewLeveledLogger(os.Stderr, lv)
}

// Filter drops lines from base below lv. Trace counts as debug.
func Filter(base ServiceLogger, lv *slog.LevelVar) ServiceLogger {
	if base == nil {
		panic("livebridge: logger cannot be nil")
	}
	if lv == nil {
		return base
	}
	return &filteredLogger{base: base, lv: lv}
}

type filteredLogger struct {
	base ServiceLogger
	lv   *slog.LevelVar
}

func (f *filteredLogger) enabled(l slog.Level) bool { return l >= f.lv.Level() }

func (f *filteredLogger) With(fields LogFields) ServiceLogger {
	return &filteredLogger{base: f.base.With(fields), lv: f.lv}
}

func (f *filteredLogger) Debug(msg string, fields LogFields) {
	if f.enabled(slog.LevelDebug) {
		f.base.Debug(msg, fields)
	}
}

func (f *filteredLogger) Info(msg string, fields LogFields) {
	if f.enabled(slog.LevelInfo) {
		f.base.Info(msg, fields)
	}
}

func (f *filteredLogger) Error(msg string, err error, fields LogFields) {
	if f.enabled(slog.LevelError) {
		f.base.Error(msg, err, fields)
	}
}

func (f *filteredLogger) Trace(msg string, fields LogFields) {
	if f.enabled(slog.LevelDebug) {
		f.base.Trace(msg, fields)
	}
}
