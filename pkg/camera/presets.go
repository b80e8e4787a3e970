package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetVGA     = "vga"
	PresetQVGA    = "qvga"
	PresetQQVGA   = "qqvga"
	PresetSXGA    = "sxga"
	PresetNear    = "near"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetVGA:     VGAConfig(),
		PresetQVGA:    QVGAConfig(),
		PresetQQVGA:   QQVGAConfig(),
		PresetSXGA:    SXGAConfig(),
		PresetNear:    NearConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetVGA,
		PresetQVGA,
		PresetQQVGA,
		PresetSXGA,
		PresetNear,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// VGAConfig returns 640x480 on every stream.
func VGAConfig() Config {
	return DefaultConfig()
}

// QVGAConfig returns 320x240 on every stream.
// Kinect color has no 320x240 mode, so color stays at 640x480.
func QVGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Depth = QVGA
	cfg.Infrared = QVGA
	return cfg
}

// QQVGAConfig returns the smallest depth mode.
func QQVGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Depth = QQVGA
	cfg.Infrared = QQVGA
	return cfg
}

// SXGAConfig returns 1280x960 color with VGA depth.
func SXGAConfig() Config {
	cfg := DefaultConfig()
	cfg.Color = SXGA
	return cfg
}

// NearConfig returns VGA with the Kinect near range.
func NearConfig() Config {
	cfg := DefaultConfig()
	cfg.NearMode = true
	return cfg
}
