package capture

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-depthcam/pkg/device"
)

// Open stage errors. Every error returned by Open is an *OpenError that
// matches exactly one of these with errors.Is.
var (
	// ErrDeviceUnavailable means no device was found or the backend could
	// not enumerate devices.
	ErrDeviceUnavailable = errors.New("capture: device unavailable")

	// ErrInitializationFailed means the device was found but could not be
	// opened or initialized.
	ErrInitializationFailed = errors.New("capture: device initialization failed")

	// ErrStreamOpenFailed means the device is open but the requested stream
	// could not be created or started.
	ErrStreamOpenFailed = errors.New("capture: stream open failed")
)

var (
	// ErrNoFrame means no frame arrived within the pull timeout. It is
	// transient and never ends a capture loop.
	ErrNoFrame = errors.New("capture: no frame available")

	// ErrLoopBusy is returned by Loop.Start while a previous run is active.
	ErrLoopBusy = errors.New("capture: loop already running")

	// ErrSessionClosed is returned when pulling from a closed session.
	ErrSessionClosed = errors.New("capture: session closed")
)

// OpenError describes a failure while opening a stream session.
type OpenError struct {
	Kind    error // ErrDeviceUnavailable, ErrInitializationFailed or ErrStreamOpenFailed
	Backend string
	Stream  device.StreamKind
	Err     error
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("%v (%s %s): %v", e.Kind, e.Backend, e.Stream, e.Err)
}

// Unwrap exposes both the stage and the cause to errors.Is and errors.As.
func (e *OpenError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Stage returns a short machine-readable name for the failed stage.
func (e *OpenError) Stage() string {
	switch e.Kind {
	case ErrDeviceUnavailable:
		return "device_unavailable"
	case ErrInitializationFailed:
		return "initialization_failed"
	case ErrStreamOpenFailed:
		return "stream_open_failed"
	default:
		return "unknown"
	}
}
