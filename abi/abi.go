// Package abi is the flat boundary: plain integers, handles, byte buffers and
// callbacks in; integer statuses and NUL-terminated messages out.
//
// Every function validates its handle before touching the object behind it
// and recovers panics, so no failure crosses the boundary as anything other
// than a status.
package abi

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drblury/livebridge/internal/runtime/config"
	"github.com/drblury/livebridge/internal/runtime/dbn"
	lberrors "github.com/drblury/livebridge/internal/runtime/errors"
	"github.com/drblury/livebridge/internal/runtime/handle"
	"github.com/drblury/livebridge/internal/runtime/logging"
	"github.com/drblury/livebridge/internal/runtime/session"
)

// Status values returned across the boundary.
const (
	StatusOK        int32 = 0
	StatusTimeout   int32 = 1
	StatusEndOfData int32 = 2
	StatusError     int32 = -1
	StatusNotFound  int32 = -2
	StatusInvalid   int32 = -3

	// StatusAlreadyStarted is returned to every Start call but the one that
	// started the session.
	StatusAlreadyStarted int32 = -4
)

const (
	// MaxErrorBuffer clamps the usable capacity of an error buffer.
	MaxErrorBuffer = 64 << 10
	// MinErrorBuffer is the smallest buffer reported as usable.
	MinErrorBuffer = 16
)

type (
	RecordCallback   = session.RecordCallback
	ErrorCallback    = session.ErrorCallback
	MetadataCallback = session.MetadataCallback
)

// Env holds what boundary functions need to build sessions.
type Env struct {
	Registry  *handle.Registry
	NewClient session.ClientFactory
	Logger    logging.ServiceLogger
	Metrics   *session.Metrics

	StopTimeout    time.Duration
	DestroyTimeout time.Duration
	DispatchBuffer int
}

var (
	current     atomic.Pointer[Env]
	defaultOnce sync.Once
)

// Configure replaces the environment and returns a func restoring the
// previous one.
func Configure(env Env) (restore func()) {
	if env.Registry == nil {
		env.Registry = handle.Default
	}
	if env.Logger == nil {
		env.Logger = logging.Nop()
	}
	prev := current.Swap(&env)
	return func() { current.Store(prev) }
}

// FromConfig builds the environment for cfg. Sessions dial the configured
// transport and log to stderr; each session filters by its own level, the
// transports by the configured one.
func FromConfig(cfg *config.Config) Env {
	level, err := cfg.Level()
	if err != nil {
		level = logging.LevelInfo
	}
	all := new(slog.LevelVar)
	all.Set(slog.LevelDebug)
	base := logging.NewStderrLogger(all)

	configured := new(slog.LevelVar)
	configured.Set(level.Slog())
	return Env{
		Registry:       handle.Default,
		NewClient:      session.TransportClientFactory(cfg, logging.Filter(base, configured)),
		Logger:         base,
		StopTimeout:    cfg.StopTimeout,
		DestroyTimeout: cfg.DestroyTimeout,
		DispatchBuffer: cfg.DispatchBuffer,
	}
}

func env() *Env {
	if e := current.Load(); e != nil {
		return e
	}
	defaultOnce.Do(func() {
		cfg, err := config.FromEnv(os.Getenv)
		if err != nil {
			fallback := config.Config{}.WithDefaults()
			cfg = &fallback
		}
		e := FromConfig(cfg)
		current.CompareAndSwap(nil, &e)
	})
	return current.Load()
}

func (e *Env) sessionOptions(credential, dataset string, sendTsOut bool, upgradePolicy, heartbeatSecs int32) (session.Options, error) {
	if upgradePolicy < 0 || upgradePolicy > 1 {
		return session.Options{}, lberrors.InvalidArgument("upgrade_policy", "must be 0 or 1, got %d", upgradePolicy)
	}
	if heartbeatSecs < 0 {
		return session.Options{}, lberrors.InvalidArgument("heartbeat_interval_secs", "cannot be negative")
	}
	return session.Options{
		Credential:        credential,
		Dataset:           dataset,
		SendTsOut:         sendTsOut,
		UpgradePolicy:     dbn.UpgradePolicy(upgradePolicy),
		HeartbeatInterval: time.Duration(heartbeatSecs) * time.Second,
		StopTimeout:       e.StopTimeout,
		DestroyTimeout:    e.DestroyTimeout,
		DispatchBuffer:    e.DispatchBuffer,
		NewClient:         e.NewClient,
		Logger:            e.Logger,
		Metrics:           e.Metrics,
	}, nil
}

// HandleCount reports the number of live handles.
func HandleCount() int {
	return env().Registry.Count()
}

// WriteError copies msg into buf, truncated and NUL-terminated. A nil or
// empty buffer is left alone. It reports false when nothing was written or
// buf is shorter than MinErrorBuffer.
func WriteError(buf []byte, msg string) bool {
	if len(buf) == 0 {
		return false
	}
	if len(buf) > MaxErrorBuffer {
		buf = buf[:MaxErrorBuffer]
	}
	writeCString(buf, msg)
	return len(buf) >= MinErrorBuffer
}

// writeCString copies s into buf with a trailing NUL and reports whether s
// fit without truncation.
func writeCString(buf []byte, s string) bool {
	if len(buf) == 0 {
		return false
	}
	n := copy(buf[:len(buf)-1], s)
	buf[n] = 0
	return n == len(s)
}

// statusOf maps an error onto a boundary status.
func statusOf(err error) int32 {
	var code handle.Code
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &code):
		return StatusError
	case errors.Is(err, lberrors.ErrTimeout):
		return StatusTimeout
	case errors.Is(err, lberrors.ErrFeedClosed):
		return StatusEndOfData
	case errors.Is(err, lberrors.ErrAlreadyStarted):
		return StatusAlreadyStarted
	case errors.Is(err, lberrors.ErrInvalidArgument),
		errors.Is(err, lberrors.ErrBufferTooSmall),
		errors.Is(err, lberrors.ErrRecordCallbackRequired),
		errors.Is(err, lberrors.ErrCredentialRequired):
		return StatusInvalid
	case errors.Is(err, lberrors.ErrClientNotInitialized):
		return StatusNotFound
	default:
		return StatusError
	}
}

// call runs fn, converting its error or panic into a status and a message
// in errBuf.
func call(errBuf []byte, fn func() error) (status int32) {
	defer func() {
		if r := recover(); r != nil {
			WriteError(errBuf, "panic: "+lberrors.FromPanic(r).Error())
			status = StatusError
		}
	}()
	if err := fn(); err != nil {
		WriteError(errBuf, err.Error())
		return statusOf(err)
	}
	return StatusOK
}

// create runs fn and registers its result, returning 0 on any failure.
func create(errBuf []byte, kind handle.Kind, fn func() (any, error)) (h uint64) {
	defer func() {
		if r := recover(); r != nil {
			WriteError(errBuf, "panic: "+lberrors.FromPanic(r).Error())
			h = 0
		}
	}()
	obj, err := fn()
	if err != nil {
		WriteError(errBuf, err.Error())
		return 0
	}
	hd, err := env().Registry.Create(kind, obj)
	if err != nil {
		WriteError(errBuf, err.Error())
		return 0
	}
	return uint64(hd)
}

// quiet runs fn and swallows panics, for functions without a status.
func quiet(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func resolve[T any](h uint64, kind handle.Kind) (T, error) {
	return handle.Cast[T](env().Registry, handle.Handle(h), kind)
}

func take[T any](h uint64, kind handle.Kind) (T, error) {
	return handle.TakeAs[T](env().Registry, handle.Handle(h), kind)
}
