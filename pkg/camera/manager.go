package camera

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/teslashibe/go-depthcam/pkg/device"
)

// Manager holds the current capture configuration and handles updates.
type Manager struct {
	config Config
	mu     sync.RWMutex

	// Callback when config changes (for logging or persisting)
	OnConfigChange func(cfg Config) error
}

// NewManager creates a new camera manager with cfg, or the default config
// when cfg is invalid.
func NewManager(cfg Config) *Manager {
	if len(cfg.Validate()) > 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		config: cfg,
	}
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// ResolutionFor returns the requested resolution for kind.
func (m *Manager) ResolutionFor(kind device.StreamKind) device.Resolution {
	return m.GetConfig().ResolutionFor(kind)
}

// SetConfig updates the camera configuration.
func (m *Manager) SetConfig(cfg Config) error {
	if errors := cfg.Validate(); len(errors) > 0 {
		return fmt.Errorf("validation failed: %v", errors)
	}

	m.mu.Lock()
	m.config = cfg
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		if err := callback(cfg); err != nil {
			return fmt.Errorf("failed to apply config: %w", err)
		}
	}

	return nil
}

// UpdateConfig updates specific fields of the configuration.
// Accepts a map of field names to values; resolutions are either
// "WIDTHxHEIGHT" strings or {"width", "height"} objects.
func (m *Manager) UpdateConfig(params map[string]interface{}) error {
	cfg := m.GetConfig()

	// Check for preset first
	if presetName, ok := params["preset"].(string); ok {
		preset := GetPreset(presetName)
		if preset == nil {
			return fmt.Errorf("unknown preset: %s", presetName)
		}
		cfg = *preset
		delete(params, "preset")
	}

	for key, value := range params {
		switch key {
		case "device_index":
			if v, ok := toInt(value); ok {
				cfg.DeviceIndex = v
			}
		case "color", "depth", "infrared":
			res, err := toResolution(value)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			switch key {
			case "color":
				cfg.Color = res
			case "depth":
				cfg.Depth = res
			case "infrared":
				cfg.Infrared = res
			}
		case "near_mode":
			if v, ok := value.(bool); ok {
				cfg.NearMode = v
			}
		case "depth_level":
			if v, ok := toInt(value); ok && v >= 0 && v <= 0xFFFF {
				cfg.DepthLevel = uint16(v)
			}
		case "pull_timeout_ms":
			if v, ok := toInt(value); ok {
				cfg.PullTimeoutMS = v
			}
		default:
			return fmt.Errorf("unknown field: %s", key)
		}
	}

	return m.SetConfig(cfg)
}

// GetConfigJSON returns the current config as a map for JSON serialization.
func (m *Manager) GetConfigJSON() map[string]interface{} {
	cfg := m.GetConfig()

	data, _ := json.Marshal(cfg)
	var result map[string]interface{}
	json.Unmarshal(data, &result)

	return result
}

// Helper functions for type conversion

func toResolution(v interface{}) (device.Resolution, error) {
	switch val := v.(type) {
	case string:
		return ParseResolution(val)
	case map[string]interface{}:
		w, okW := toInt(val["width"])
		h, okH := toInt(val["height"])
		if !okW || !okH {
			return device.Resolution{}, fmt.Errorf("resolution needs width and height")
		}
		return device.Resolution{Width: w, Height: h}, nil
	case device.Resolution:
		return val, nil
	}
	return device.Resolution{}, fmt.Errorf("unsupported resolution value %v", v)
}

func toInt(v interface{}) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case float64:
		return int(val), true
	case json.Number:
		i, err := val.Int64()
		if err == nil {
			return int(i), true
		}
	}
	return 0, false
}
