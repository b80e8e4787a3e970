// Package capture owns stream sessions and the loop that drains them.
//
// A Session holds one device handle and one open stream. A Loop pulls
// frames from a Session on its own goroutine, converts them into the
// session buffer and publishes the result to a display.Sink.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-depthcam/pkg/device"
	"github.com/teslashibe/go-depthcam/pkg/frame"
)

const (
	// DefaultPullTimeout is the per-frame wait passed to the driver.
	DefaultPullTimeout = 100 * time.Millisecond

	// pullGrace is added to the pull timeout before the session gives up
	// on a driver call that ignores its own timeout.
	pullGrace = 250 * time.Millisecond
)

// closeWait bounds how long Close waits for an in-flight pull.
var closeWait = 2 * time.Second

// Options configures Open.
type Options struct {
	// DeviceIndex selects the device among those discovered.
	DeviceIndex int

	// PullTimeout bounds each PullFrame. Default: 100ms
	PullTimeout time.Duration

	// Settings, when set, are applied to a device.Configurable driver
	// before the device is opened.
	Settings *device.Settings

	Logger *slog.Logger
}

type pullResult struct {
	raw *frame.RawFrame
	err error
}

// Session is an open device stream plus the buffer its frames are
// converted into. It is not safe for concurrent use: one goroutine pulls,
// releases and finally closes it.
type Session struct {
	id      uuid.UUID
	backend string
	kind    device.StreamKind
	res     device.Resolution
	timeout time.Duration
	logger  *slog.Logger

	handle device.Handle
	stream device.Stream
	buf    *frame.Buffer

	// pending is set while a driver pull is in flight.
	pending chan pullResult
	stalls  int

	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Open discovers devices on drv, opens the device at opts.DeviceIndex and
// starts a stream of the given kind. Depth and infrared streams may
// negotiate a resolution other than res; the buffer follows the stream.
//
// On failure nothing is left open and the error is an *OpenError.
func Open(drv device.Driver, kind device.StreamKind, res device.Resolution, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.PullTimeout
	if timeout <= 0 {
		timeout = DefaultPullTimeout
	}
	backend := drv.Name()

	fail := func(stage, err error) (*Session, error) {
		oe := &OpenError{Kind: stage, Backend: backend, Stream: kind, Err: err}
		logger.Error("stream open failed",
			"backend", backend,
			"kind", kind,
			"stage", oe.Stage(),
			"error", err,
		)
		return nil, oe
	}

	if opts.Settings != nil {
		if c, ok := drv.(device.Configurable); ok {
			c.Configure(*opts.Settings)
		}
	}

	n, err := drv.Discover()
	if errors.Is(err, device.ErrRuntimeInit) {
		return fail(ErrInitializationFailed, err)
	}
	if err != nil {
		return fail(ErrDeviceUnavailable, err)
	}
	if n == 0 {
		return fail(ErrDeviceUnavailable, errors.New("no devices found"))
	}
	if opts.DeviceIndex < 0 || opts.DeviceIndex >= n {
		return fail(ErrDeviceUnavailable, fmt.Errorf("device index %d out of range (%d found)", opts.DeviceIndex, n))
	}

	handle, err := drv.OpenDevice(opts.DeviceIndex)
	if err != nil {
		return fail(ErrInitializationFailed, err)
	}

	stream, err := handle.OpenStream(kind, res)
	if err != nil {
		handle.Close()
		return fail(ErrStreamOpenFailed, err)
	}

	negotiated := stream.Resolution()
	if negotiated.Width <= 0 || negotiated.Height <= 0 {
		stream.Close()
		handle.Close()
		return fail(ErrStreamOpenFailed, fmt.Errorf("invalid negotiated resolution %s", negotiated))
	}

	id := uuid.New()
	s := &Session{
		id:      id,
		backend: backend,
		kind:    kind,
		res:     negotiated,
		timeout: timeout,
		logger:  logger.With("session", id.String()),
		handle:  handle,
		stream:  stream,
		buf:     frame.NewBuffer(negotiated.Width, negotiated.Height),
	}

	s.logger.Info("stream started",
		"backend", backend,
		"kind", kind,
		"requested", res.String(),
		"resolution", negotiated.String(),
		"devices", n,
	)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Backend returns the driver name.
func (s *Session) Backend() string { return s.backend }

// Kind returns the stream kind.
func (s *Session) Kind() device.StreamKind { return s.kind }

// Resolution returns the negotiated frame size.
func (s *Session) Resolution() device.Resolution { return s.res }

// Buffer returns the session's RGB24 buffer.
func (s *Session) Buffer() *frame.Buffer { return s.buf }

// PullFrame waits for the next raw frame. It returns ErrNoFrame when the
// driver has nothing within the pull timeout, and never blocks longer than
// the timeout plus a short grace period: a driver call that overruns is
// left in flight and collected by the next pull.
func (s *Session) PullFrame() (*frame.RawFrame, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	if s.pending == nil {
		ch := make(chan pullResult, 1)
		s.pending = ch
		stream, timeout := s.stream, s.timeout
		go func() {
			raw, err := stream.PullRawFrame(timeout)
			ch <- pullResult{raw: raw, err: err}
		}()
	}

	timer := time.NewTimer(s.timeout + pullGrace)
	defer timer.Stop()

	select {
	case r := <-s.pending:
		s.pending = nil
		s.stalls = 0
		return s.result(r)
	case <-timer.C:
		s.stalls++
		if s.stalls == 1 {
			s.logger.Warn("driver pull overran timeout", "timeout", s.timeout)
		}
		return nil, ErrNoFrame
	}
}

func (s *Session) result(r pullResult) (*frame.RawFrame, error) {
	if r.err != nil {
		if errors.Is(r.err, device.ErrEmpty) {
			return nil, ErrNoFrame
		}
		return nil, fmt.Errorf("capture: pull %s frame: %w", s.kind, r.err)
	}
	if r.raw == nil {
		return nil, ErrNoFrame
	}
	return r.raw, nil
}

// Release returns a frame obtained from PullFrame to the device.
func (s *Session) Release(raw *frame.RawFrame) {
	if raw == nil || s.closed {
		return
	}
	s.stream.ReleaseFrame(raw)
}

// Close releases any in-flight frame, stops the stream and closes the
// device handle. It is safe to call more than once.
//
// If a driver pull is still running after closeWait, the stream and the
// handle are closed by that pull's goroutine once it returns, never while
// the driver is inside PullRawFrame.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true

		if s.pending != nil {
			pending := s.pending
			s.pending = nil
			select {
			case r := <-pending:
				s.release(r)
			case <-time.After(closeWait):
				s.logger.Warn("driver pull still in flight, deferring device close",
					"backend", s.backend,
					"kind", s.kind,
				)
				go func() {
					s.release(<-pending)
					if err := s.shutdown(); err != nil {
						s.logger.Warn("deferred close failed", "error", err)
					}
				}()
				return
			}
		}

		s.closeErr = s.shutdown()
	})
	return s.closeErr
}

func (s *Session) release(r pullResult) {
	if r.err == nil && r.raw != nil {
		s.stream.ReleaseFrame(r.raw)
	}
}

// shutdown closes the stream, then the device handle.
func (s *Session) shutdown() error {
	var errs []error
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if err := s.handle.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close device: %w", err))
	}
	s.logger.Info("stream stopped", "backend", s.backend, "kind", s.kind)
	return errors.Join(errs...)
}
