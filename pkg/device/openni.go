package device

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/frame"
)

// ONISensorType mirrors openni::SensorType.
type ONISensorType int

const (
	ONISensorIR    ONISensorType = 1
	ONISensorColor ONISensorType = 2
	ONISensorDepth ONISensorType = 3
)

// ONIPixelFormat mirrors openni::PixelFormat.
type ONIPixelFormat int

const (
	ONIPixelFormatDepth1MM   ONIPixelFormat = 100
	ONIPixelFormatDepth100UM ONIPixelFormat = 101
	ONIPixelFormatRGB888     ONIPixelFormat = 200
	ONIPixelFormatYUV422     ONIPixelFormat = 201
	ONIPixelFormatGray8      ONIPixelFormat = 202
	ONIPixelFormatGray16     ONIPixelFormat = 203
)

// ONIVideoMode is a stream's video mode.
type ONIVideoMode struct {
	Width       int
	Height      int
	FPS         int
	PixelFormat ONIPixelFormat
}

// OpenNI is the subset of the OpenNI2 runtime used by the openni backend.
type OpenNI interface {
	Initialize() error
	Shutdown()
	DeviceCount() int
	// OpenDevice opens the device at uri; an empty uri opens any device.
	OpenDevice(uri string) (ONIDevice, error)
	// ExtendedError returns the runtime's description of the last failure.
	ExtendedError() string
}

// ONIDevice is an openni::Device.
type ONIDevice interface {
	CreateStream(sensor ONISensorType) (ONIStream, error)
	Close()
}

// ONIStream is an openni::VideoStream.
type ONIStream interface {
	Start() error
	Stop()
	Destroy()
	IsValid() bool
	VideoMode() ONIVideoMode
	// ReadFrame waits for the next frame, or returns ErrEmpty.
	ReadFrame(timeout time.Duration) (*ONIFrame, error)
	ReleaseFrame(f *ONIFrame)
}

// ONIFrame is an openni::VideoFrameRef.
type ONIFrame struct {
	Data   []byte
	Width  int
	Height int
	Stride int
	Index  uint64
	Valid  bool
}

// OpenNIDriver talks to OpenNI2 devices through a binding. The runtime is
// initialized on first use and shut down when the last handle closes.
type OpenNIDriver struct {
	api    OpenNI
	logger *slog.Logger

	mu          sync.Mutex
	depthLevel  uint16
	initialized bool
	handles     int
}

// NewOpenNIDriver creates an openni driver. A nil api falls back to the
// binding registered with RegisterOpenNI at discovery time.
func NewOpenNIDriver(api OpenNI, cfg Config, logger *slog.Logger) *OpenNIDriver {
	if logger == nil {
		logger = slog.Default()
	}
	level := cfg.DepthLevel
	if level == 0 {
		level = OpenNIDepthLevel
	}
	return &OpenNIDriver{
		api:        api,
		depthLevel: level,
		logger:     logger.With("backend", BackendOpenNI),
	}
}

// Name returns "openni".
func (d *OpenNIDriver) Name() string {
	return string(BackendOpenNI)
}

// Configure sets the depth level for streams opened afterwards.
func (d *OpenNIDriver) Configure(s Settings) {
	if s.DepthLevel == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.depthLevel != s.DepthLevel {
		d.logger.Info("depth level changed", "depth_level", s.DepthLevel)
	}
	d.depthLevel = s.DepthLevel
}

func (d *OpenNIDriver) currentDepthLevel() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depthLevel
}

func (d *OpenNIDriver) binding() (OpenNI, error) {
	if d.api != nil {
		return d.api, nil
	}
	if api := registeredOpenNI(); api != nil {
		d.api = api
		return api, nil
	}
	return nil, fmt.Errorf("openni: %w", ErrNoBinding)
}

// ensureInit initializes the runtime once. Callers hold d.mu.
func (d *OpenNIDriver) ensureInit(api OpenNI) error {
	if d.initialized {
		return nil
	}
	if err := api.Initialize(); err != nil {
		return fmt.Errorf("openni: %w: %w (%s)", ErrRuntimeInit, err, api.ExtendedError())
	}
	d.initialized = true
	d.logger.Info("OpenNI initialized")
	return nil
}

// releaseInit shuts the runtime down once no handle uses it. Callers hold d.mu.
func (d *OpenNIDriver) releaseInit(api OpenNI) {
	if d.initialized && d.handles == 0 {
		api.Shutdown()
		d.initialized = false
		d.logger.Info("OpenNI shutdown")
	}
}

// Discover initializes the runtime and returns the device count.
func (d *OpenNIDriver) Discover() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	api, err := d.binding()
	if err != nil {
		return 0, err
	}
	if err := d.ensureInit(api); err != nil {
		return 0, err
	}

	n := api.DeviceCount()
	if n == 0 {
		d.releaseInit(api)
	}
	return n, nil
}

// OpenDevice opens any attached device; OpenNI does not address devices
// by index, so index only has to be within the discovered count.
func (d *OpenNIDriver) OpenDevice(index int) (Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	api, err := d.binding()
	if err != nil {
		return nil, err
	}
	if err := d.ensureInit(api); err != nil {
		return nil, err
	}

	dev, err := api.OpenDevice("")
	if err != nil {
		d.releaseInit(api)
		return nil, fmt.Errorf("openni: device open failed: %w (%s)", err, api.ExtendedError())
	}

	d.handles++
	return &openNIHandle{driver: d, api: api, dev: dev}, nil
}

type openNIHandle struct {
	driver *OpenNIDriver
	api    OpenNI
	dev    ONIDevice
	closed bool
}

func (h *openNIHandle) OpenStream(kind StreamKind, _ Resolution) (Stream, error) {
	if h.closed {
		return nil, ErrClosed
	}

	var sensor ONISensorType
	switch kind {
	case StreamColor:
		sensor = ONISensorColor
	case StreamDepth:
		sensor = ONISensorDepth
	case StreamInfrared:
		sensor = ONISensorIR
	default:
		return nil, fmt.Errorf("openni: %w: %s", ErrUnsupportedStream, kind)
	}

	vs, err := h.dev.CreateStream(sensor)
	if err != nil {
		return nil, fmt.Errorf("openni: couldn't find %s stream: %w (%s)", kind, err, h.api.ExtendedError())
	}
	if err := vs.Start(); err != nil {
		vs.Destroy()
		return nil, fmt.Errorf("openni: couldn't start %s stream: %w (%s)", kind, err, h.api.ExtendedError())
	}
	if !vs.IsValid() {
		vs.Stop()
		vs.Destroy()
		return nil, fmt.Errorf("openni: %s stream is invalid (%s)", kind, h.api.ExtendedError())
	}

	mode := vs.VideoMode()
	format, err := openNIFormat(mode.PixelFormat)
	if err != nil {
		vs.Stop()
		vs.Destroy()
		return nil, err
	}

	h.driver.logger.Info("OpenNI stream initialized",
		"kind", kind,
		"resolution", fmt.Sprintf("%dx%d", mode.Width, mode.Height),
		"fps", mode.FPS,
	)

	return &openNIStream{
		vs:         vs,
		format:     format,
		res:        Resolution{Width: mode.Width, Height: mode.Height},
		depthLevel: h.driver.currentDepthLevel(),
	}, nil
}

func (h *openNIHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.dev.Close()

	d := h.driver
	d.mu.Lock()
	d.handles--
	d.releaseInit(h.api)
	d.mu.Unlock()
	return nil
}

func openNIFormat(pf ONIPixelFormat) (frame.PixelFormat, error) {
	switch pf {
	case ONIPixelFormatRGB888:
		return frame.FormatRGB24, nil
	case ONIPixelFormatDepth1MM:
		return frame.FormatDepth16, nil
	case ONIPixelFormatGray8:
		return frame.FormatInfrared8, nil
	case ONIPixelFormatGray16:
		return frame.FormatInfrared16, nil
	default:
		return "", fmt.Errorf("openni: unsupported pixel format %d", pf)
	}
}

type openNIStream struct {
	vs         ONIStream
	format     frame.PixelFormat
	res        Resolution
	depthLevel uint16

	current *ONIFrame
	raw     frame.RawFrame
	closed  bool
}

func (s *openNIStream) Resolution() Resolution {
	return s.res
}

func (s *openNIStream) PullRawFrame(timeout time.Duration) (*frame.RawFrame, error) {
	if s.closed {
		return nil, ErrClosed
	}

	f, err := s.vs.ReadFrame(timeout)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrEmpty
	}
	if !f.Valid {
		s.vs.ReleaseFrame(f)
		return nil, ErrEmpty
	}

	s.current = f
	s.raw = frame.RawFrame{
		Data:      f.Data,
		Width:     f.Width,
		Height:    f.Height,
		Pitch:     f.Stride,
		Format:    s.format,
		Sequence:  f.Index,
		Timestamp: time.Now(),
	}
	if s.format == frame.FormatDepth16 {
		s.raw.DepthRange = frame.DepthRange{Min: 0, Max: s.depthLevel}
	}
	return &s.raw, nil
}

func (s *openNIStream) ReleaseFrame(f *frame.RawFrame) {
	if f != &s.raw || s.current == nil {
		return
	}
	s.vs.ReleaseFrame(s.current)
	s.current = nil
}

func (s *openNIStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.current != nil {
		s.vs.ReleaseFrame(s.current)
		s.current = nil
	}
	s.vs.Stop()
	s.vs.Destroy()
	return nil
}
