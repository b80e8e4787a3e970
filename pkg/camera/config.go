// Package camera provides runtime-configurable capture settings.
// Changes take effect the next time a stream is started.
package camera

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/device"
)

// Config holds all capture parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// DeviceIndex selects among discovered devices.
	DeviceIndex int `json:"device_index" yaml:"device_index"`

	// === Requested resolutions ===
	// Depth and infrared streams may be negotiated down by the device.
	Color    device.Resolution `json:"color" yaml:"color"`
	Depth    device.Resolution `json:"depth" yaml:"depth"`
	Infrared device.Resolution `json:"infrared" yaml:"infrared"`

	// NearMode selects the Kinect near range (400-3000mm).
	NearMode bool `json:"near_mode" yaml:"near_mode"`

	// DepthLevel is the OpenNI depth in mm rendered as white.
	DepthLevel uint16 `json:"depth_level" yaml:"depth_level"`

	// PullTimeoutMS bounds each frame wait (1 to 5000).
	PullTimeoutMS int `json:"pull_timeout_ms" yaml:"pull_timeout_ms"`
}

// Limits
const (
	MinWidth       = 80
	MinHeight      = 60
	MaxWidth       = 4096
	MaxHeight      = 4096
	MaxPullTimeout = 5000 // milliseconds
	MaxDeviceIndex = 15
)

var (
	VGA   = device.Resolution{Width: 640, Height: 480}
	QVGA  = device.Resolution{Width: 320, Height: 240}
	QQVGA = device.Resolution{Width: 80, Height: 60}
	SXGA  = device.Resolution{Width: 1280, Height: 960}
)

// DefaultConfig returns 640x480 on every stream with the default depth range.
func DefaultConfig() Config {
	return Config{
		DeviceIndex:   0,
		Color:         VGA,
		Depth:         VGA,
		Infrared:      VGA,
		NearMode:      false,
		DepthLevel:    device.OpenNIDepthLevel,
		PullTimeoutMS: 100,
	}
}

// ResolutionFor returns the requested resolution for a stream kind.
func (c Config) ResolutionFor(kind device.StreamKind) device.Resolution {
	switch kind {
	case device.StreamColor:
		return c.Color
	case device.StreamDepth:
		return c.Depth
	case device.StreamInfrared:
		return c.Infrared
	default:
		return VGA
	}
}

// PullTimeout returns PullTimeoutMS as a duration.
func (c Config) PullTimeout() time.Duration {
	return time.Duration(c.PullTimeoutMS) * time.Millisecond
}

// DeviceConfig applies the device-level settings to a backend config.
func (c Config) DeviceConfig(base device.Config) device.Config {
	base.NearMode = c.NearMode
	if c.DepthLevel != 0 {
		base.DepthLevel = c.DepthLevel
	}
	return base
}

// Settings returns the device options applied each time a stream opens.
func (c Config) Settings() device.Settings {
	return device.Settings{NearMode: c.NearMode, DepthLevel: c.DepthLevel}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.DeviceIndex < 0 || c.DeviceIndex > MaxDeviceIndex {
		errors = append(errors, fmt.Sprintf("device_index must be between 0 and %d", MaxDeviceIndex))
	}

	for _, r := range []struct {
		name string
		res  device.Resolution
	}{
		{"color", c.Color},
		{"depth", c.Depth},
		{"infrared", c.Infrared},
	} {
		if r.res.Width < MinWidth || r.res.Width > MaxWidth {
			errors = append(errors, fmt.Sprintf("%s width must be between %d and %d", r.name, MinWidth, MaxWidth))
		}
		if r.res.Height < MinHeight || r.res.Height > MaxHeight {
			errors = append(errors, fmt.Sprintf("%s height must be between %d and %d", r.name, MinHeight, MaxHeight))
		}
	}

	if c.DepthLevel == 0 {
		errors = append(errors, "depth_level must be positive")
	}

	if c.PullTimeoutMS < 1 || c.PullTimeoutMS > MaxPullTimeout {
		errors = append(errors, fmt.Sprintf("pull_timeout_ms must be between 1 and %d", MaxPullTimeout))
	}

	return errors
}

// ParseResolution parses "WIDTHxHEIGHT", e.g. "640x480".
func ParseResolution(s string) (device.Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return device.Resolution{}, fmt.Errorf("invalid resolution %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return device.Resolution{}, fmt.Errorf("invalid resolution width %q", w)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return device.Resolution{}, fmt.Errorf("invalid resolution height %q", h)
	}
	return device.Resolution{Width: width, Height: height}, nil
}

// Capabilities returns the per-backend stream capabilities.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"backends": device.AvailableBackends(),
		"kinectsdk": map[string]interface{}{
			"resolutions": []string{QQVGA.String(), QVGA.String(), VGA.String(), SXGA.String()},
			"depth_range": map[string]int{"min": device.KinectDepthMin, "max": device.KinectDepthMax},
			"near_range":  map[string]int{"min": device.KinectNearDepthMin, "max": device.KinectNearDepthMax},
		},
		"openni": map[string]interface{}{
			"resolutions": "negotiated by device",
			"depth_level": device.OpenNIDepthLevel,
		},
		"webcam": map[string]interface{}{
			"streams": []device.StreamKind{device.StreamColor},
		},
		"max_pull_timeout_ms": MaxPullTimeout,
	}
}
