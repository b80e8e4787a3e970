package device

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/frame"
)

// mockRowPadding is added to every color row so consumers exercise pitch.
const mockRowPadding = 16

// MockDriver is a mock backend for testing.
// It generates moving test patterns for every stream kind.
type MockDriver struct {
	logger *slog.Logger

	devices      int
	empty        bool
	interval     time.Duration
	negotiated   Resolution
	discoverErr  error
	initErr      error
	streamErr    error
	depthRange   frame.DepthRange
	colorPadding int

	mu             sync.Mutex
	openHandles    int
	openStreams    int
	maxOpenStreams int

	streamsOpened atomic.Int64
	framesPulled  atomic.Int64
	framesFreed   atomic.Int64
}

// MockOption configures a MockDriver.
type MockOption func(*MockDriver)

// WithMockDevices sets the number of discovered devices.
func WithMockDevices(n int) MockOption {
	return func(m *MockDriver) {
		m.devices = n
	}
}

// WithEmptyFrames makes every pull time out with ErrEmpty.
func WithEmptyFrames() MockOption {
	return func(m *MockDriver) {
		m.empty = true
	}
}

// WithFrameInterval paces frames like a real sensor (e.g. 33ms for 30 FPS).
func WithFrameInterval(d time.Duration) MockOption {
	return func(m *MockDriver) {
		m.interval = d
	}
}

// WithNegotiatedResolution makes depth and infrared streams ignore the
// requested resolution, like devices that report their mode after open.
func WithNegotiatedResolution(res Resolution) MockOption {
	return func(m *MockDriver) {
		m.negotiated = res
	}
}

// WithDiscoverError makes Discover fail.
func WithDiscoverError(err error) MockOption {
	return func(m *MockDriver) {
		m.discoverErr = err
	}
}

// WithInitError makes OpenDevice fail.
func WithInitError(err error) MockOption {
	return func(m *MockDriver) {
		m.initErr = err
	}
}

// WithStreamError makes OpenStream fail.
func WithStreamError(err error) MockOption {
	return func(m *MockDriver) {
		m.streamErr = err
	}
}

// NewMockDriver creates a mock driver with one device.
func NewMockDriver(logger *slog.Logger, opts ...MockOption) *MockDriver {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockDriver{
		logger:       logger,
		devices:      1,
		depthRange:   frame.DepthRange{Min: KinectDepthMin, Max: KinectDepthMax},
		colorPadding: mockRowPadding,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Configure switches between the Kinect default and near depth ranges.
func (m *MockDriver) Configure(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depthRange = kinectDepthRange(s.NearMode)
}

// Name returns "mock".
func (m *MockDriver) Name() string {
	return string(BackendMock)
}

// Discover returns the configured device count.
func (m *MockDriver) Discover() (int, error) {
	if m.discoverErr != nil {
		return 0, m.discoverErr
	}
	return m.devices, nil
}

// OpenDevice opens a mock device.
func (m *MockDriver) OpenDevice(index int) (Handle, error) {
	if m.initErr != nil {
		return nil, m.initErr
	}
	if index < 0 || index >= m.devices {
		return nil, fmt.Errorf("mock: no device at index %d", index)
	}

	m.mu.Lock()
	m.openHandles++
	m.mu.Unlock()

	m.logger.Debug("mock device opened", "index", index)
	return &mockHandle{driver: m}, nil
}

// OpenStreams returns the number of streams currently open.
func (m *MockDriver) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openStreams
}

// OpenHandles returns the number of device handles currently open.
func (m *MockDriver) OpenHandles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openHandles
}

// MaxOpenStreams returns the highest number of simultaneously open streams.
func (m *MockDriver) MaxOpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxOpenStreams
}

// StreamsOpened returns the total number of streams opened.
func (m *MockDriver) StreamsOpened() int64 {
	return m.streamsOpened.Load()
}

// FramesOutstanding returns frames pulled but not yet released.
func (m *MockDriver) FramesOutstanding() int64 {
	return m.framesPulled.Load() - m.framesFreed.Load()
}

type mockHandle struct {
	driver *MockDriver
	closed bool
}

func (h *mockHandle) OpenStream(kind StreamKind, res Resolution) (Stream, error) {
	m := h.driver
	if h.closed {
		return nil, ErrClosed
	}
	if m.streamErr != nil {
		return nil, m.streamErr
	}

	if res.IsZero() {
		res = Resolution{Width: 640, Height: 480}
	}
	if kind != StreamColor && !m.negotiated.IsZero() {
		res = m.negotiated
	}

	var format frame.PixelFormat
	pitch := 0
	switch kind {
	case StreamColor:
		format = frame.FormatRGBX32
		pitch = res.Width*4 + m.colorPadding
	case StreamDepth:
		format = frame.FormatDepth16
		pitch = res.Width * 2
	case StreamInfrared:
		format = frame.FormatInfrared16
		pitch = res.Width * 2
	default:
		return nil, ErrUnsupportedStream
	}

	m.mu.Lock()
	depthRange := m.depthRange
	m.openStreams++
	if m.openStreams > m.maxOpenStreams {
		m.maxOpenStreams = m.openStreams
	}
	m.mu.Unlock()
	m.streamsOpened.Add(1)

	m.logger.Debug("mock stream opened", "kind", kind, "resolution", res.String())

	return &mockStream{
		driver: m,
		kind:   kind,
		res:    res,
		raw: frame.RawFrame{
			Data:       make([]byte, pitch*res.Height),
			Width:      res.Width,
			Height:     res.Height,
			Pitch:      pitch,
			Format:     format,
			DepthRange: depthRange,
		},
		next: time.Now(),
	}, nil
}

func (h *mockHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true

	h.driver.mu.Lock()
	h.driver.openHandles--
	h.driver.mu.Unlock()
	return nil
}

type mockStream struct {
	driver *MockDriver
	kind   StreamKind
	res    Resolution

	raw    frame.RawFrame
	seq    uint64
	inUse  bool
	closed bool
	next   time.Time
}

func (s *mockStream) Resolution() Resolution {
	return s.res
}

func (s *mockStream) PullRawFrame(timeout time.Duration) (*frame.RawFrame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.driver.empty {
		time.Sleep(timeout)
		return nil, ErrEmpty
	}

	if s.driver.interval > 0 {
		wait := time.Until(s.next)
		if wait > timeout {
			time.Sleep(timeout)
			return nil, ErrEmpty
		}
		if wait > 0 {
			time.Sleep(wait)
		}
		s.next = time.Now().Add(s.driver.interval)
	}

	s.seq++
	s.fill()
	s.raw.Sequence = s.seq
	s.raw.Timestamp = time.Now()
	s.inUse = true
	s.driver.framesPulled.Add(1)
	return &s.raw, nil
}

// fill writes a pattern that moves one step per frame.
func (s *mockStream) fill() {
	w, h, pitch := s.raw.Width, s.raw.Height, s.raw.Pitch
	data := s.raw.Data
	shift := int(s.seq)

	switch s.kind {
	case StreamColor:
		for y := 0; y < h; y++ {
			r := data[y*pitch:]
			for x := 0; x < w; x++ {
				r[x*4] = byte(x + shift) // B
				r[x*4+1] = byte(y)       // G
				r[x*4+2] = byte(shift)   // R
				r[x*4+3] = 0xFF
			}
		}
	case StreamDepth:
		span := int(s.raw.DepthRange.Max) + 500
		for y := 0; y < h; y++ {
			r := data[y*pitch:]
			for x := 0; x < w; x++ {
				d := ((x + shift) % w) * span / w
				binary.LittleEndian.PutUint16(r[x*2:], uint16(d))
			}
		}
	case StreamInfrared:
		for y := 0; y < h; y++ {
			r := data[y*pitch:]
			for x := 0; x < w; x++ {
				binary.LittleEndian.PutUint16(r[x*2:], uint16((x+y+shift)*257))
			}
		}
	}
}

func (s *mockStream) ReleaseFrame(f *frame.RawFrame) {
	if f != &s.raw || !s.inUse {
		return
	}
	s.inUse = false
	s.driver.framesFreed.Add(1)
}

func (s *mockStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.driver.mu.Lock()
	s.driver.openStreams--
	s.driver.mu.Unlock()

	s.driver.logger.Debug("mock stream closed", "kind", s.kind)
	return nil
}
