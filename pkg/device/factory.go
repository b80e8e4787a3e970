package device

import (
	"fmt"
	"log/slog"
	"sync"
)

var (
	bindingsMu sync.RWMutex
	nuiBinding NUI
	oniBinding OpenNI
)

// RegisterNUI makes a Kinect SDK binding available to the kinectsdk backend.
// It is meant to be called from the init function of a binding package.
func RegisterNUI(b NUI) {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	nuiBinding = b
}

// RegisterOpenNI makes an OpenNI binding available to the openni backend.
func RegisterOpenNI(b OpenNI) {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	oniBinding = b
}

func registeredNUI() NUI {
	bindingsMu.RLock()
	defer bindingsMu.RUnlock()
	return nuiBinding
}

func registeredOpenNI() OpenNI {
	bindingsMu.RLock()
	defer bindingsMu.RUnlock()
	return oniBinding
}

// New creates a driver for cfg.Backend.
// Vendor backends without a registered binding are still created; their
// Discover reports ErrNoBinding so the failure surfaces when a stream is
// started, not at startup.
func New(cfg Config, logger *slog.Logger) (Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("creating device driver",
		"backend", cfg.Backend,
		"near_mode", cfg.NearMode,
		"depth_level", cfg.DepthLevel,
	)

	switch cfg.Backend {
	case BackendMock:
		return NewMockDriver(logger), nil
	case BackendKinectSDK:
		return NewKinectDriver(registeredNUI(), cfg, logger), nil
	case BackendOpenNI:
		return NewOpenNIDriver(registeredOpenNI(), cfg, logger), nil
	case BackendWebcam:
		return NewWebcamDriver(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// AvailableBackends returns the backends that can produce frames in this
// process: mock and webcam always, vendor backends once a binding is registered.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendWebcam}
	if registeredOpenNI() != nil {
		backends = append(backends, BackendOpenNI)
	}
	if registeredNUI() != nil {
		backends = append(backends, BackendKinectSDK)
	}
	return backends
}
