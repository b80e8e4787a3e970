// Package config loads depthcam settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/teslashibe/go-depthcam/pkg/camera"
	"github.com/teslashibe/go-depthcam/pkg/device"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultPort         = 8181
	DefaultLogLevel     = "info"
	DefaultWindowTitle  = "depthcam"
	DefaultShutdownSecs = 5
)

// Environment variables.
const (
	EnvConfig   = "DEPTHCAM_CONFIG"
	EnvPort     = "DEPTHCAM_PORT"
	EnvBackend  = "DEPTHCAM_BACKEND"
	EnvLogLevel = "LOG_LEVEL"
)

// Config is the application configuration.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Log     LogConfig      `yaml:"log"`
	Device  device.Config  `yaml:"device"`
	Camera  camera.Config  `yaml:"camera"`
	Display DisplayConfig  `yaml:"display"`
	Methods []MethodConfig `yaml:"methods"`

	ShutdownTimeoutS int `yaml:"shutdown_timeout_s"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	CORSOrigins string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

type DisplayConfig struct {
	// Window opens an OpenCV window in addition to the web status.
	Window bool   `yaml:"window"`
	Title  string `yaml:"title"`
}

// MethodConfig registers one selectable method backed by a device backend.
type MethodConfig struct {
	Name    string         `yaml:"name"`
	Backend device.Backend `yaml:"backend"`
}

// Default returns the built-in configuration: OpenNI, KinectSDK and Mock
// methods, with OpenNI as the default backend.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        DefaultPort,
			CORSOrigins: "*",
		},
		Log:     LogConfig{Level: DefaultLogLevel},
		Device:  device.DefaultConfig(),
		Camera:  camera.DefaultConfig(),
		Display: DisplayConfig{Title: DefaultWindowTitle},
		Methods: []MethodConfig{
			{Name: "OpenNI", Backend: device.BackendOpenNI},
			{Name: "KinectSDK", Backend: device.BackendKinectSDK},
			{Name: "Mock", Backend: device.BackendMock},
		},
		ShutdownTimeoutS: DefaultShutdownSecs,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses DEPTHCAM_CONFIG, and if that is
// unset only defaults and environment are used.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Device.Backend = device.Backend(strings.ToLower(v))
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	return nil
}

// Validate checks the configuration and fills derived defaults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}

	if errs := c.Camera.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: %s", strings.Join(errs, "; "))
	}

	if len(c.Methods) == 0 {
		return errors.New("at least one method is required")
	}
	seen := make(map[string]bool, len(c.Methods))
	for i, m := range c.Methods {
		if m.Name == "" {
			return fmt.Errorf("methods[%d].name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate method %q", m.Name)
		}
		seen[m.Name] = true

		dc := c.Device
		dc.Backend = m.Backend
		if err := dc.Validate(); err != nil {
			return fmt.Errorf("methods[%d]: %w", i, err)
		}
	}

	if c.Display.Title == "" {
		c.Display.Title = DefaultWindowTitle
	}
	if c.ShutdownTimeoutS <= 0 {
		c.ShutdownTimeoutS = DefaultShutdownSecs
	}
	return nil
}

// DeviceConfig returns the backend config for a method, with the camera's
// near mode and depth level applied.
func (c *Config) DeviceConfig(m MethodConfig) device.Config {
	dc := c.Camera.DeviceConfig(c.Device)
	dc.Backend = m.Backend
	return dc
}

// Addr returns the listen address, e.g. ":8181".
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
