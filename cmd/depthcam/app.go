package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-depthcam/internal/config"
	"github.com/teslashibe/go-depthcam/internal/log"
	"github.com/teslashibe/go-depthcam/pkg/camera"
	"github.com/teslashibe/go-depthcam/pkg/device"
	"github.com/teslashibe/go-depthcam/pkg/display"
	"github.com/teslashibe/go-depthcam/pkg/tracking"
	"github.com/teslashibe/go-depthcam/pkg/web"
)

// app wires configuration, methods, display and the console together.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	camera  *camera.Manager
	methods *tracking.Manager
	frames  *display.Latest
	window  *display.Window
	server  *web.Server
}

func newApp(cfg *config.Config) (*app, error) {
	// Log lines reach the console once the server exists.
	var console atomic.Pointer[web.Server]
	log.Init(cfg.Log.Level, func(level slog.Level, line string) {
		if s := console.Load(); s != nil {
			s.AddLog(level, line)
		}
	})
	logger := log.L()

	a := &app{
		cfg:    cfg,
		logger: logger,
		camera: camera.NewManager(cfg.Camera),
		frames: display.NewLatest(),
	}

	a.camera.OnConfigChange = func(c camera.Config) error {
		logger.Info("camera config changed, applies on next start",
			"color", c.Color.String(),
			"depth", c.Depth.String(),
			"infrared", c.Infrared.String(),
			"near_mode", c.NearMode,
		)
		return nil
	}

	var sink display.Sink = a.frames
	if cfg.Display.Window {
		a.window = display.NewWindow(cfg.Display.Title, logger)
		sink = display.NewTee(a.frames, a.window)
	}

	a.methods = tracking.NewManager(logger)
	for _, mc := range a.orderedMethods() {
		drv, err := device.New(cfg.DeviceConfig(mc), logger)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", mc.Name, err)
		}
		m := tracking.NewCaptureMethod(mc.Name, drv, a.camera, sink, logger)
		if err := a.methods.Register(m); err != nil {
			return nil, err
		}
	}

	a.server = web.NewServer(web.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, a.methods, a.camera, a.frames, logger)
	a.methods.OnChange = a.server.PublishStatus
	console.Store(a.server)

	logger.Info("depthcam initialized",
		"methods", len(cfg.Methods),
		"backends", device.AvailableBackends(),
		"window", cfg.Display.Window,
	)
	return a, nil
}

// orderedMethods puts the method for the configured default backend first,
// so it is selected at startup.
func (a *app) orderedMethods() []config.MethodConfig {
	ordered := make([]config.MethodConfig, 0, len(a.cfg.Methods))
	for _, m := range a.cfg.Methods {
		if m.Backend == a.cfg.Device.Backend {
			ordered = append(ordered, m)
		}
	}
	for _, m := range a.cfg.Methods {
		if m.Backend != a.cfg.Device.Backend {
			ordered = append(ordered, m)
		}
	}
	return ordered
}

// Run serves the console until ctx is cancelled. A non-empty start action
// is invoked on the selected method first.
func (a *app) Run(ctx context.Context, start string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	if start != "" {
		action, err := tracking.ParseAction(start)
		if err != nil {
			return err
		}
		if err := a.methods.Invoke(ctx, action); err != nil {
			a.logger.Error("startup action failed", "action", action, "error", err)
		}
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	}
}

// Shutdown stops capture and the console.
func (a *app) Shutdown() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.methods.Close(); err != nil {
			a.logger.Warn("method close failed", "error", err)
		}
		if err := a.server.Shutdown(); err != nil {
			a.logger.Warn("web shutdown failed", "error", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Duration(a.cfg.ShutdownTimeoutS) * time.Second):
		a.logger.Warn("shutdown timed out")
	}

	if a.window != nil {
		a.window.Close()
	}
}
