package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired         = sterrors.New("livebridge: configuration is required")
	ErrCredentialRequired     = sterrors.New("livebridge: credential is required")
	ErrDriverRequired         = sterrors.New("livebridge: transport driver is required")
	ErrRecordCallbackRequired = sterrors.New("livebridge: record callback is required")
	ErrAlreadyStarted         = sterrors.New("livebridge: session already started")
	ErrNotStarted             = sterrors.New("livebridge: session not started")
	ErrNoSubscriptions        = sterrors.New("livebridge: session has no subscriptions")
	ErrSessionDestroyed       = sterrors.New("livebridge: session is destroyed")
	ErrClientNotInitialized   = sterrors.New("livebridge: client not initialized")
	ErrBufferTooSmall         = sterrors.New("livebridge: buffer too small")
	ErrInvalidArgument        = sterrors.New("livebridge: invalid argument")
	ErrFeedClosed             = sterrors.New("livebridge: feed closed")
	ErrTimeout                = sterrors.New("livebridge: timed out")
)

// Sentinel codes reported to the error callback by the dispatcher.
const (
	CodeClientError              int32 = -1
	CodeMetadataCallbackPanicked int32 = -996
	CodeMetadataCallbackFailed   int32 = -997
	CodeRecordCallbackPanicked   int32 = -998
	CodeRecordCallbackFailed     int32 = -999
)

// InvalidArgumentError reports a rejected input value.
type InvalidArgumentError struct {
	Param  string
	Reason string
}

// InvalidArgument builds an InvalidArgumentError with a formatted reason.
func InvalidArgument(param, format string, args ...any) error {
	return &InvalidArgumentError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

func (e *InvalidArgumentError) Error() string {
	return e.Param + " " + e.Reason
}

// Is matches ErrInvalidArgument.
func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// CallbackError wraps a failure raised by caller-supplied callback code.
type CallbackError struct {
	Code int32
	Err  error
}

func (e *CallbackError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("callback failed (code %d)", e.Code)
	}
	return e.Err.Error()
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// FromPanic converts a recovered value into an error.
func FromPanic(recovered any) error {
	switch v := recovered.(type) {
	case nil:
		return nil
	case error:
		return v
	case string:
		return sterrors.New(v)
	default:
		return fmt.Errorf("%v", v)
	}
}
