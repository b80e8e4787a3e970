package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/teslashibe/go-depthcam/pkg/camera"
	"github.com/teslashibe/go-depthcam/pkg/capture"
	"github.com/teslashibe/go-depthcam/pkg/device"
	"github.com/teslashibe/go-depthcam/pkg/display"
)

// ResolutionPolicy picks the requested resolution for a stream kind.
type ResolutionPolicy interface {
	ResolutionFor(kind device.StreamKind) device.Resolution
}

// CaptureMethod drives one device backend through a capture loop.
// It works with any device.Driver.
type CaptureMethod struct {
	name   string
	driver device.Driver
	camera *camera.Manager
	policy ResolutionPolicy
	loop   *capture.Loop
	logger *slog.Logger

	mu      sync.Mutex
	session *capture.Session
	lastErr error
}

// CaptureOption configures a CaptureMethod.
type CaptureOption func(*CaptureMethod)

// WithResolutionPolicy overrides the per-kind resolutions of the camera config.
func WithResolutionPolicy(p ResolutionPolicy) CaptureOption {
	return func(m *CaptureMethod) {
		m.policy = p
	}
}

// NewCaptureMethod creates a method named name that captures from drv
// into sink. Capture settings are read from cam each time a stream starts.
func NewCaptureMethod(name string, drv device.Driver, cam *camera.Manager, sink display.Sink, logger *slog.Logger, opts ...CaptureOption) *CaptureMethod {
	if logger == nil {
		logger = slog.Default()
	}
	if cam == nil {
		cam = camera.NewManager(camera.DefaultConfig())
	}
	logger = logger.With("method", name)

	m := &CaptureMethod{
		name:   name,
		driver: drv,
		camera: cam,
		policy: cam,
		loop:   capture.NewLoop(sink, logger),
		logger: logger,
	}
	m.loop.OnStateChange = func(st capture.State) {
		m.logger.Debug("capture state", "state", st)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the method name.
func (m *CaptureMethod) Name() string {
	return m.name
}

// AvailableActions returns the stream actions.
func (m *CaptureMethod) AvailableActions() []Action {
	return slices.Clone(StreamActions)
}

// Invoke starts or stops a stream. A start first stops and joins any
// running stream, then opens a fresh session; open failures are returned
// as *capture.OpenError. Stop only signals the loop.
func (m *CaptureMethod) Invoke(ctx context.Context, action Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if action == ActionStop {
		m.logger.Info("stop requested", "state", m.loop.State())
		m.loop.Stop()
		return nil
	}

	kind, ok := action.StreamKind()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.stopAndJoin()

	cfg := m.camera.GetConfig()
	res := m.policy.ResolutionFor(kind)
	settings := cfg.Settings()

	s, err := capture.Open(m.driver, kind, res, capture.Options{
		DeviceIndex: cfg.DeviceIndex,
		PullTimeout: cfg.PullTimeout(),
		Settings:    &settings,
		Logger:      m.logger,
	})
	if err != nil {
		m.lastErr = err
		return err
	}

	// The loop outlives the request that started it.
	if err := m.loop.Start(context.WithoutCancel(ctx), s); err != nil {
		s.Close()
		m.lastErr = err
		return fmt.Errorf("tracking: start %s: %w", kind, err)
	}

	m.session = s
	m.lastErr = nil
	return nil
}

// stopAndJoin ends the running loop, if any. Callers hold m.mu.
func (m *CaptureMethod) stopAndJoin() {
	m.loop.Stop()
	if err := m.loop.Wait(); err != nil {
		m.lastErr = err
	}
}

// Status reports the loop state and the last session.
func (m *CaptureMethod) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		Method:  m.name,
		Backend: m.driver.Name(),
		State:   m.loop.State(),
		Stats:   m.loop.Stats(),
	}

	if st.State == capture.StateStopped {
		if err := m.loop.Wait(); err != nil {
			m.lastErr = err
		}
	}

	if m.session != nil {
		st.Session = m.session.ID().String()
		st.Kind = m.session.Kind()
		st.Resolution = m.session.Resolution()
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Close stops any running stream and waits for the device to be released.
// The method can be invoked again afterwards.
func (m *CaptureMethod) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loop.State() == capture.StateRunning {
		m.logger.Info("closing running stream")
	}
	m.stopAndJoin()
	return nil
}
