// Package device provides depth-camera backends behind a common device
// handle contract.
//
// This package supports multiple backends:
//   - OpenNI (PrimeSense, Xtion, Kinect via OpenNI2 drivers)
//   - KinectSDK (Kinect for Windows runtime)
//   - Webcam (any OpenCV VideoCapture device, color only)
//   - Mock (synthetic frames for CI and development)
//
// Vendor SDKs are reached through binding interfaces (NUI, OpenNI) that a
// cgo binding package registers at init time with RegisterNUI or
// RegisterOpenNI.
package device

import "fmt"

// Backend represents the device backend type.
type Backend string

const (
	// BackendOpenNI uses an OpenNI2 binding.
	BackendOpenNI Backend = "openni"
	// BackendKinectSDK uses a Kinect for Windows SDK binding.
	BackendKinectSDK Backend = "kinectsdk"
	// BackendWebcam uses OpenCV VideoCapture.
	BackendWebcam Backend = "webcam"
	// BackendMock generates synthetic frames.
	BackendMock Backend = "mock"
)

// Default depth ranges in millimetres.
const (
	// KinectDepthMin and KinectDepthMax bound the default range.
	KinectDepthMin = 800
	KinectDepthMax = 4000
	// KinectNearDepthMin and KinectNearDepthMax bound the near mode range.
	KinectNearDepthMin = 400
	KinectNearDepthMax = 3000
	// OpenNIDepthLevel is the depth mapped to full white for OpenNI streams.
	OpenNIDepthLevel = 10000
)

// Config holds backend construction settings.
type Config struct {
	// Backend selects the driver implementation.
	Backend Backend `yaml:"backend" json:"backend"`

	// NearMode shifts the Kinect depth range closer to the sensor.
	NearMode bool `yaml:"near_mode" json:"near_mode"`

	// DepthLevel is the OpenNI depth (mm) rendered as white.
	// Default: 10000
	DepthLevel uint16 `yaml:"depth_level" json:"depth_level"`

	// MaxProbe bounds webcam discovery.
	// Default: 4
	MaxProbe int `yaml:"max_probe" json:"max_probe"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendOpenNI,
		NearMode:   false,
		DepthLevel: OpenNIDepthLevel,
		MaxProbe:   4,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOpenNI, BackendKinectSDK, BackendWebcam, BackendMock:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.DepthLevel == 0 {
		return fmt.Errorf("depth_level must be positive")
	}
	if c.MaxProbe <= 0 {
		return fmt.Errorf("max_probe must be positive, got %d", c.MaxProbe)
	}
	return nil
}
