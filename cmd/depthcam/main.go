// depthcam - depth camera viewer with a web control console
//
// Registers one method per configured backend, shows frames in an OpenCV
// window (optional) and serves the control API.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-depthcam/internal/config"
	"github.com/teslashibe/go-depthcam/pkg/device"
)

func main() {
	cfg, start := parseFlags()

	a, err := newApp(cfg)
	if err != nil {
		stdlog.Fatalf("initialization failed: %v", err)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx, start); err != nil {
		stdlog.Fatalf("runtime error: %v", err)
	}
}

// parseFlags loads the config file and applies command line overrides.
// It also returns the action to invoke at startup, if any.
func parseFlags() (*config.Config, string) {
	path := flag.String("config", "", "YAML config file (overrides "+config.EnvConfig+")")
	port := flag.Int("port", 0, "HTTP port for the control console")
	backend := flag.String("backend", "", "Default backend: openni, kinectsdk, webcam, mock")
	window := flag.Bool("window", false, "Show frames in an OpenCV window")
	near := flag.Bool("near", false, "Enable Kinect near mode")
	start := flag.String("start", "", "Action to invoke at startup, e.g. start_depth")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		stdlog.Fatalf("configuration error: %v", err)
	}

	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *backend != "" {
		cfg.Device.Backend = device.Backend(*backend)
	}
	if *window {
		cfg.Display.Window = true
	}
	if *near {
		cfg.Camera.NearMode = true
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		stdlog.Fatalf("configuration error: %v", err)
	}
	return cfg, *start
}
