package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/frame"
)

// Sentinel errors shared by all backends.
var (
	// ErrEmpty is returned by Stream.PullRawFrame when no frame arrived
	// within the timeout. It is not fatal.
	ErrEmpty = errors.New("device: no frame available")

	// ErrNoBinding is returned when a vendor backend is used without a
	// registered SDK binding.
	ErrNoBinding = errors.New("device: no SDK binding registered")

	// ErrUnsupportedStream is returned when a backend cannot provide the
	// requested stream kind.
	ErrUnsupportedStream = errors.New("device: stream kind not supported")

	// ErrClosed is returned when using a closed handle or stream.
	ErrClosed = errors.New("device: closed")

	// ErrRuntimeInit is returned when the vendor runtime rejects
	// initialization, as opposed to finding no device.
	ErrRuntimeInit = errors.New("device: runtime initialization failed")
)

// StreamKind selects the sensor modality of a stream.
type StreamKind string

const (
	StreamColor    StreamKind = "color"
	StreamDepth    StreamKind = "depth"
	StreamInfrared StreamKind = "infrared"
)

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// String returns e.g. "640x480".
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// IsZero reports whether the resolution is unset.
func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// Settings are device options that may change between streams.
type Settings struct {
	// NearMode selects the Kinect near depth range.
	NearMode bool

	// DepthLevel is the OpenNI depth (mm) rendered as white.
	// Zero keeps the driver's current level.
	DepthLevel uint16
}

// Configurable is implemented by drivers whose settings can change at
// runtime. New settings apply to streams opened afterwards.
type Configurable interface {
	Configure(s Settings)
}

// Driver is the entry point of a backend. It discovers devices and opens
// handles on them.
type Driver interface {
	// Name returns the backend name (e.g. "openni", "kinectsdk", "mock").
	Name() string

	// Discover returns the number of attached devices.
	Discover() (int, error)

	// OpenDevice opens and initializes the device at index.
	// The returned handle is owned by the caller and never shared.
	OpenDevice(index int) (Handle, error)
}

// Handle is an open device.
type Handle interface {
	// OpenStream creates and starts a stream. For depth and infrared the
	// device may negotiate a resolution different from res; the stream
	// reports the effective one.
	OpenStream(kind StreamKind, res Resolution) (Stream, error)

	// Close ends the device session.
	Close() error
}

// Stream is one open sensor channel.
type Stream interface {
	// Resolution returns the negotiated frame size.
	Resolution() Resolution

	// PullRawFrame blocks for at most timeout. It returns ErrEmpty when no
	// frame is available. The frame stays valid until ReleaseFrame.
	PullRawFrame(timeout time.Duration) (*frame.RawFrame, error)

	// ReleaseFrame hands the frame back to the device.
	ReleaseFrame(f *frame.RawFrame)

	// Close stops the stream.
	Close() error
}
