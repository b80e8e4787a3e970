package device

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/frame"
	"gocv.io/x/gocv"
)

// WebcamDriver exposes OpenCV capture devices as color-only cameras.
// It is useful for exercising the pipeline without a depth sensor.
type WebcamDriver struct {
	maxProbe int
	logger   *slog.Logger
}

// NewWebcamDriver creates a webcam driver.
func NewWebcamDriver(cfg Config, logger *slog.Logger) *WebcamDriver {
	if logger == nil {
		logger = slog.Default()
	}
	probe := cfg.MaxProbe
	if probe <= 0 {
		probe = 4
	}
	return &WebcamDriver{
		maxProbe: probe,
		logger:   logger.With("backend", BackendWebcam),
	}
}

// Name returns "webcam".
func (d *WebcamDriver) Name() string {
	return string(BackendWebcam)
}

// Discover probes consecutive device indices until one fails to open.
func (d *WebcamDriver) Discover() (int, error) {
	n := 0
	for i := 0; i < d.maxProbe; i++ {
		vc, err := gocv.VideoCaptureDevice(i)
		if err != nil {
			break
		}
		opened := vc.IsOpened()
		vc.Close()
		if !opened {
			break
		}
		n++
	}
	return n, nil
}

// OpenDevice records the index; the capture device is opened with the stream.
func (d *WebcamDriver) OpenDevice(index int) (Handle, error) {
	if index < 0 {
		return nil, fmt.Errorf("webcam: invalid device index %d", index)
	}
	return &webcamHandle{driver: d, index: index}, nil
}

type webcamHandle struct {
	driver *WebcamDriver
	index  int
	closed bool
}

func (h *webcamHandle) OpenStream(kind StreamKind, res Resolution) (Stream, error) {
	if h.closed {
		return nil, ErrClosed
	}
	if kind != StreamColor {
		return nil, fmt.Errorf("webcam: %w: %s", ErrUnsupportedStream, kind)
	}

	vc, err := gocv.VideoCaptureDevice(h.index)
	if err != nil {
		return nil, fmt.Errorf("webcam: open device %d: %w", h.index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("webcam: device %d not opened", h.index)
	}

	if !res.IsZero() {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(res.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(res.Height))
	}
	negotiated := Resolution{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}

	h.driver.logger.Info("webcam stream opened",
		"index", h.index,
		"requested", res.String(),
		"negotiated", negotiated.String(),
	)

	return &webcamStream{
		vc:  vc,
		mat: gocv.NewMat(),
		res: negotiated,
	}, nil
}

func (h *webcamHandle) Close() error {
	h.closed = true
	return nil
}

type webcamStream struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
	res Resolution

	raw    frame.RawFrame
	seq    uint64
	closed bool
}

func (s *webcamStream) Resolution() Resolution {
	return s.res
}

// PullRawFrame reads into a reused Mat. OpenCV has no read timeout; the
// capture session bounds the wait instead.
func (s *webcamStream) PullRawFrame(_ time.Duration) (*frame.RawFrame, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if ok := s.vc.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, ErrEmpty
	}
	if s.mat.Type() != gocv.MatTypeCV8UC3 {
		return nil, ErrEmpty
	}

	data, err := s.mat.DataPtrUint8()
	if err != nil {
		return nil, ErrEmpty
	}

	s.seq++
	s.raw = frame.RawFrame{
		Data:      data,
		Width:     s.mat.Cols(),
		Height:    s.mat.Rows(),
		Pitch:     s.mat.Step(),
		Format:    frame.FormatBGR24,
		Sequence:  s.seq,
		Timestamp: time.Now(),
	}
	return &s.raw, nil
}

// ReleaseFrame is a no-op; the Mat is overwritten by the next read.
func (s *webcamStream) ReleaseFrame(*frame.RawFrame) {}

func (s *webcamStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.vc.Close()
}
