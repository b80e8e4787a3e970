package device

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/frame"
)

// NUIImageType mirrors NUI_IMAGE_TYPE.
type NUIImageType int

const (
	NUIImageTypeDepthAndPlayerIndex NUIImageType = 0
	NUIImageTypeColor               NUIImageType = 1
	NUIImageTypeDepth               NUIImageType = 4
	NUIImageTypeColorInfrared       NUIImageType = 5
)

// NUIResolution mirrors NUI_IMAGE_RESOLUTION.
type NUIResolution int

const (
	NUIResolution80x60    NUIResolution = 0
	NUIResolution320x240  NUIResolution = 1
	NUIResolution640x480  NUIResolution = 2
	NUIResolution1280x960 NUIResolution = 3
)

// NUI initialization flags.
const (
	NUIInitUsesDepthAndPlayerIndex uint32 = 0x00000001
	NUIInitUsesColor               uint32 = 0x00000002
	NUIInitUsesDepth               uint32 = 0x00000020
)

// nuiFrameLimit is the number of frames the runtime buffers per stream.
const nuiFrameLimit = 2

// NUI is the subset of the Kinect for Windows runtime used by the
// kinectsdk backend.
type NUI interface {
	SensorCount() (int, error)
	CreateSensor(index int) (NUISensor, error)
}

// NUISensor is an INuiSensor.
type NUISensor interface {
	Initialize(flags uint32) error
	OpenImageStream(imageType NUIImageType, res NUIResolution, frameLimit int) (NUIImageStream, error)
	Shutdown()
}

// NUIImageStream is an open image stream on a sensor.
type NUIImageStream interface {
	// NextFrame returns the next frame with its texture locked, or ErrEmpty.
	NextFrame(timeout time.Duration) (*NUIFrame, error)
	// ReleaseFrame unlocks the texture and releases the frame.
	ReleaseFrame(f *NUIFrame) error
}

// NUIFrame is a locked frame texture.
//
// For depth streams Bits holds NUI_DEPTH_IMAGE_PIXEL values: a little-endian
// uint16 player index followed by a little-endian uint16 depth in mm.
type NUIFrame struct {
	Bits     []byte
	Pitch    int
	NearMode bool
}

// nuiResolution maps a pixel size to the runtime enum.
func nuiResolution(res Resolution) (NUIResolution, error) {
	switch res {
	case Resolution{Width: 80, Height: 60}:
		return NUIResolution80x60, nil
	case Resolution{Width: 320, Height: 240}:
		return NUIResolution320x240, nil
	case Resolution{Width: 640, Height: 480}, Resolution{}:
		return NUIResolution640x480, nil
	case Resolution{Width: 1280, Height: 960}:
		return NUIResolution1280x960, nil
	default:
		return 0, fmt.Errorf("kinectsdk: unsupported resolution %s", res)
	}
}

// KinectDriver talks to a Kinect v1 sensor through a NUI binding.
type KinectDriver struct {
	api    NUI
	logger *slog.Logger

	mu       sync.Mutex
	nearMode bool
}

// NewKinectDriver creates a kinectsdk driver. A nil api falls back to the
// binding registered with RegisterNUI at discovery time.
func NewKinectDriver(api NUI, cfg Config, logger *slog.Logger) *KinectDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &KinectDriver{
		api:      api,
		nearMode: cfg.NearMode,
		logger:   logger.With("backend", BackendKinectSDK),
	}
}

// Configure switches near mode for streams opened afterwards.
func (d *KinectDriver) Configure(s Settings) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.nearMode != s.NearMode {
		d.logger.Info("near mode changed", "near_mode", s.NearMode)
	}
	d.nearMode = s.NearMode
}

func (d *KinectDriver) nearModeEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nearMode
}

// Name returns "kinectsdk".
func (d *KinectDriver) Name() string {
	return string(BackendKinectSDK)
}

func (d *KinectDriver) binding() (NUI, error) {
	if d.api != nil {
		return d.api, nil
	}
	if api := registeredNUI(); api != nil {
		return api, nil
	}
	return nil, fmt.Errorf("kinectsdk: %w", ErrNoBinding)
}

// Discover returns the number of attached sensors.
func (d *KinectDriver) Discover() (int, error) {
	api, err := d.binding()
	if err != nil {
		return 0, err
	}
	d.logger.Info("KinectSDK initializing")
	n, err := api.SensorCount()
	if err != nil {
		return 0, fmt.Errorf("kinectsdk: sensor count: %w", err)
	}
	return n, nil
}

// OpenDevice creates and initializes the sensor at index.
func (d *KinectDriver) OpenDevice(index int) (Handle, error) {
	api, err := d.binding()
	if err != nil {
		return nil, err
	}

	sensor, err := api.CreateSensor(index)
	if err != nil {
		return nil, fmt.Errorf("kinectsdk: create sensor %d: %w", index, err)
	}

	flags := NUIInitUsesDepth | NUIInitUsesColor
	if err := sensor.Initialize(flags); err != nil {
		sensor.Shutdown()
		return nil, fmt.Errorf("kinectsdk: initialize: %w", err)
	}

	return &kinectHandle{driver: d, sensor: sensor}, nil
}

type kinectHandle struct {
	driver *KinectDriver
	sensor NUISensor
	closed bool
}

func (h *kinectHandle) OpenStream(kind StreamKind, res Resolution) (Stream, error) {
	if h.closed {
		return nil, ErrClosed
	}

	var imageType NUIImageType
	switch kind {
	case StreamColor:
		imageType = NUIImageTypeColor
	case StreamDepth:
		imageType = NUIImageTypeDepth
	case StreamInfrared:
		imageType = NUIImageTypeColorInfrared
	default:
		return nil, fmt.Errorf("kinectsdk: %w: %s", ErrUnsupportedStream, kind)
	}

	nuiRes, err := nuiResolution(res)
	if err != nil {
		return nil, err
	}
	if res.IsZero() {
		res = Resolution{Width: 640, Height: 480}
	}

	stream, err := h.sensor.OpenImageStream(imageType, nuiRes, nuiFrameLimit)
	if err != nil {
		return nil, fmt.Errorf("kinectsdk: open %s stream: %w", kind, err)
	}

	s := &kinectStream{
		stream:   stream,
		kind:     kind,
		res:      res,
		nearMode: h.driver.nearModeEnabled(),
	}
	if kind == StreamDepth {
		s.depth = make([]byte, res.Width*res.Height*2)
	}
	return s, nil
}

func (h *kinectHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.sensor.Shutdown()
	return nil
}

type kinectStream struct {
	stream   NUIImageStream
	kind     StreamKind
	res      Resolution
	nearMode bool

	// depth holds repacked 16-bit depth values for the current frame.
	depth []byte

	current *NUIFrame
	raw     frame.RawFrame
	seq     uint64
}

func (s *kinectStream) Resolution() Resolution {
	return s.res
}

func (s *kinectStream) PullRawFrame(timeout time.Duration) (*frame.RawFrame, error) {
	f, err := s.stream.NextFrame(timeout)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, ErrEmpty
	}

	s.seq++
	s.current = f
	s.raw = frame.RawFrame{
		Data:      f.Bits,
		Width:     s.res.Width,
		Height:    s.res.Height,
		Pitch:     f.Pitch,
		Sequence:  s.seq,
		Timestamp: time.Now(),
	}

	switch s.kind {
	case StreamColor:
		s.raw.Format = frame.FormatRGBX32
	case StreamInfrared:
		s.raw.Format = frame.FormatInfrared16
	case StreamDepth:
		s.raw.Format = frame.FormatDepth16
		s.raw.DepthRange = kinectDepthRange(s.nearMode || f.NearMode)
		s.repackDepth(f)
	}
	return &s.raw, nil
}

// repackDepth extracts the depth half of each NUI_DEPTH_IMAGE_PIXEL.
// A frame with no pitch or short data is passed on with Pitch 0.
func (s *kinectStream) repackDepth(f *NUIFrame) {
	w, h := s.res.Width, s.res.Height
	if f.Pitch < w*4 || len(f.Bits) < f.Pitch*(h-1)+w*4 {
		s.raw.Pitch = 0
		return
	}

	j := 0
	for y := 0; y < h; y++ {
		row := f.Bits[y*f.Pitch : y*f.Pitch+w*4]
		for i := 0; i < len(row); i += 4 {
			depth := binary.LittleEndian.Uint16(row[i+2:])
			binary.LittleEndian.PutUint16(s.depth[j:], depth)
			j += 2
		}
	}
	s.raw.Data = s.depth
	s.raw.Pitch = w * 2
}

func (s *kinectStream) ReleaseFrame(f *frame.RawFrame) {
	if f != &s.raw || s.current == nil {
		return
	}
	_ = s.stream.ReleaseFrame(s.current)
	s.current = nil
}

// Close is a no-op: NUI streams end with the sensor shutdown.
func (s *kinectStream) Close() error {
	if s.current != nil {
		_ = s.stream.ReleaseFrame(s.current)
		s.current = nil
	}
	return nil
}

func kinectDepthRange(nearMode bool) frame.DepthRange {
	if nearMode {
		return frame.DepthRange{Min: KinectNearDepthMin, Max: KinectNearDepthMax}
	}
	return frame.DepthRange{Min: KinectDepthMin, Max: KinectDepthMax}
}
