package camera

import (
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/device"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("Default config invalid: %v", errs)
	}
	for _, kind := range []device.StreamKind{device.StreamColor, device.StreamDepth, device.StreamInfrared} {
		if cfg.ResolutionFor(kind) != VGA {
			t.Errorf("Expected %s at 640x480, got %s", kind, cfg.ResolutionFor(kind))
		}
	}
	if cfg.PullTimeout() != 100*time.Millisecond {
		t.Errorf("Expected 100ms pull timeout, got %v", cfg.PullTimeout())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errors int
	}{
		{"valid", func(c *Config) {}, 0},
		{"negative device", func(c *Config) { c.DeviceIndex = -1 }, 1},
		{"tiny color", func(c *Config) { c.Color = device.Resolution{Width: 10, Height: 10} }, 2},
		{"huge depth width", func(c *Config) { c.Depth.Width = 10000 }, 1},
		{"zero depth level", func(c *Config) { c.DepthLevel = 0 }, 1},
		{"zero timeout", func(c *Config) { c.PullTimeoutMS = 0 }, 1},
		{"long timeout", func(c *Config) { c.PullTimeoutMS = 60000 }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if errs := cfg.Validate(); len(errs) != tt.errors {
				t.Errorf("Expected %d errors, got %v", tt.errors, errs)
			}
		})
	}
}

func TestConfig_DeviceConfig(t *testing.T) {
	cfg := NearConfig()
	cfg.DepthLevel = 8000

	dc := cfg.DeviceConfig(device.DefaultConfig())
	if !dc.NearMode || dc.DepthLevel != 8000 {
		t.Errorf("Expected near mode and depth level applied, got %+v", dc)
	}
	if dc.Backend != device.BackendOpenNI {
		t.Errorf("Expected backend preserved, got %s", dc.Backend)
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		in      string
		want    device.Resolution
		wantErr bool
	}{
		{"640x480", VGA, false},
		{" 320X240 ", QVGA, false},
		{"640", device.Resolution{}, true},
		{"axb", device.Resolution{}, true},
		{"640xb", device.Resolution{}, true},
	}

	for _, tt := range tests {
		got, err := ParseResolution(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseResolution(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseResolution(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPresets(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Errorf("Preset %s missing", name)
			continue
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("Preset %s invalid: %v", name, errs)
		}
	}

	if GetPreset("4k") != nil {
		t.Error("Expected nil for unknown preset")
	}
	if GetPreset(PresetQQVGA).Depth != QQVGA {
		t.Error("Expected qqvga depth at 80x60")
	}
}

func TestManager_UpdateConfig(t *testing.T) {
	m := NewManager(DefaultConfig())

	var applied Config
	m.OnConfigChange = func(cfg Config) error {
		applied = cfg
		return nil
	}

	err := m.UpdateConfig(map[string]interface{}{
		"preset":          PresetNear,
		"depth":           "320x240",
		"color":           map[string]interface{}{"width": float64(1280), "height": float64(960)},
		"pull_timeout_ms": float64(250),
	})
	if err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	cfg := m.GetConfig()
	if !cfg.NearMode || cfg.Depth != QVGA || cfg.Color != SXGA || cfg.PullTimeoutMS != 250 {
		t.Errorf("Unexpected config: %+v", cfg)
	}
	if applied != cfg {
		t.Error("Expected OnConfigChange to receive the new config")
	}
	if m.ResolutionFor(device.StreamDepth) != QVGA {
		t.Errorf("Expected depth 320x240, got %s", m.ResolutionFor(device.StreamDepth))
	}
}

func TestManager_UpdateConfigRejects(t *testing.T) {
	m := NewManager(DefaultConfig())

	if err := m.UpdateConfig(map[string]interface{}{"preset": "cinema"}); err == nil {
		t.Error("Expected error for unknown preset")
	}
	if err := m.UpdateConfig(map[string]interface{}{"zoom": 2.0}); err == nil {
		t.Error("Expected error for unknown field")
	}
	if err := m.UpdateConfig(map[string]interface{}{"depth": "big"}); err == nil {
		t.Error("Expected error for bad resolution")
	}
	if err := m.UpdateConfig(map[string]interface{}{"pull_timeout_ms": float64(0)}); err == nil {
		t.Error("Expected validation error")
	}

	if m.GetConfig() != DefaultConfig() {
		t.Error("Expected config unchanged after rejected updates")
	}
}

func TestManager_CallbackError(t *testing.T) {
	m := NewManager(DefaultConfig())
	boom := errors.New("boom")
	m.OnConfigChange = func(Config) error { return boom }

	if err := m.SetConfig(QVGAConfig()); !errors.Is(err, boom) {
		t.Errorf("Expected callback error, got %v", err)
	}
}

func TestNewManager_InvalidFallsBack(t *testing.T) {
	m := NewManager(Config{})
	if m.GetConfig() != DefaultConfig() {
		t.Error("Expected default config for invalid input")
	}
}

func TestManager_GetConfigJSON(t *testing.T) {
	m := NewManager(DefaultConfig())
	j := m.GetConfigJSON()

	color, ok := j["color"].(map[string]interface{})
	if !ok || color["width"] != float64(640) {
		t.Errorf("Unexpected JSON: %v", j)
	}
}
