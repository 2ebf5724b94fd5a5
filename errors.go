package videoengine

import (
	"errors"
	"fmt"
)

// Error categories for errors.Is.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrDevice         = errors.New("device error")
	ErrEngineCall     = errors.New("engine call failed")
	ErrPartialFailure = errors.New("partial failure")
)

var (
	ErrNoMatchingCodec = fmt.Errorf("%w: codec not in catalog", ErrConfiguration)
	ErrNoUsableCodec   = fmt.Errorf("%w: no usable codec", ErrConfiguration)
	ErrInvalidSSRC     = fmt.Errorf("%w: only ssrc 0 is supported", ErrConfiguration)

	ErrNoDevice          = fmt.Errorf("%w: no capture device", ErrDevice)
	ErrUnsupportedFormat = fmt.Errorf("%w: no supported capture format", ErrDevice)
	ErrCaptureFailed     = fmt.Errorf("%w: capturer failed to start", ErrDevice)

	ErrChannelNotReady    = errors.New("channel not ready")
	ErrNoCaptureEndpoint  = errors.New("channel has no capture endpoint")
	ErrNoNetworkInterface = errors.New("channel has no network interface")
	ErrAlreadySending     = errors.New("channel already in send state")
	ErrInvalidFrame       = errors.New("invalid video frame")
	ErrAlreadyInitialized = errors.New("engine already initialized")
	ErrNotInitialized     = errors.New("engine not initialized")

	// ErrNotSupported is returned when an optional operation is not supported.
	ErrNotSupported = errors.New("operation not supported")
)

// EngineError records a failed call into the external engine.
type EngineError struct {
	Op      string    // engine API call, e.g. "SetSendCodec"
	Channel ChannelID // -1 when the call is not channel scoped
	Code    int       // engine last-error code, 0 if unknown
	Err     error     // underlying cause, if any
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Channel >= 0 {
		msg += fmt.Sprintf(" on channel %d", e.Channel)
	}
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return target == ErrEngineCall }
