package tracking

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/camera"
	"github.com/teslashibe/go-depthcam/pkg/capture"
	"github.com/teslashibe/go-depthcam/pkg/device"
	"github.com/teslashibe/go-depthcam/pkg/display"
)

func waitForState(t *testing.T, m Method, want capture.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Status().State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for state %s, have %s", want, m.Status().State)
}

func TestParseAction(t *testing.T) {
	for _, a := range StreamActions {
		got, err := ParseAction(string(a))
		if err != nil || got != a {
			t.Errorf("ParseAction(%s) = %s, %v", a, got, err)
		}
	}
	if _, err := ParseAction("reset"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("Expected ErrUnknownAction, got %v", err)
	}

	if kind, ok := ActionStartInfrared.StreamKind(); !ok || kind != device.StreamInfrared {
		t.Errorf("Expected infrared, got %s", kind)
	}
	if _, ok := ActionStop.StreamKind(); ok {
		t.Error("Expected stop to have no stream kind")
	}
}

func TestCaptureMethod_StartStop(t *testing.T) {
	drv := device.NewMockDriver(nil)
	m := NewCaptureMethod("Mock", drv, nil, nil, nil)
	ctx := context.Background()

	if err := m.Invoke(ctx, ActionStartDepth); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	st := m.Status()
	if st.State != capture.StateRunning || st.Kind != device.StreamDepth || st.Backend != "mock" {
		t.Errorf("Unexpected status: %+v", st)
	}
	if st.Session == "" {
		t.Error("Expected session ID in status")
	}

	if err := m.Invoke(ctx, ActionStop); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	waitForState(t, m, capture.StateStopped)

	if drv.OpenStreams() != 0 || drv.OpenHandles() != 0 {
		t.Errorf("Expected device released, got streams=%d handles=%d", drv.OpenStreams(), drv.OpenHandles())
	}
	m.Close()
}

func TestCaptureMethod_RestartJoinsPrevious(t *testing.T) {
	drv := device.NewMockDriver(nil)
	m := NewCaptureMethod("Mock", drv, nil, nil, nil)
	defer m.Close()
	ctx := context.Background()

	for _, a := range []Action{ActionStartColor, ActionStartDepth, ActionStartInfrared, ActionStartColor} {
		if err := m.Invoke(ctx, a); err != nil {
			t.Fatalf("Invoke(%s) failed: %v", a, err)
		}
	}

	if drv.MaxOpenStreams() != 1 {
		t.Errorf("Expected one stream at a time, max was %d", drv.MaxOpenStreams())
	}
	if drv.StreamsOpened() != 4 {
		t.Errorf("Expected 4 streams opened, got %d", drv.StreamsOpened())
	}
	if m.Status().Kind != device.StreamColor {
		t.Errorf("Expected color stream, got %s", m.Status().Kind)
	}
}

func TestCaptureMethod_OpenErrorSurfaced(t *testing.T) {
	drv := device.NewMockDriver(nil, device.WithMockDevices(0))
	m := NewCaptureMethod("Mock", drv, nil, nil, nil)
	defer m.Close()

	err := m.Invoke(context.Background(), ActionStartColor)
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}

	st := m.Status()
	if st.State != capture.StateIdle {
		t.Errorf("Expected idle after failed open, got %s", st.State)
	}
	if st.LastError == "" {
		t.Error("Expected last error in status")
	}
}

func TestCaptureMethod_UsesCameraConfig(t *testing.T) {
	cam := camera.NewManager(camera.QVGAConfig())
	m := NewCaptureMethod("Mock", device.NewMockDriver(nil), cam, nil, nil)
	defer m.Close()

	if err := m.Invoke(context.Background(), ActionStartDepth); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res := m.Status().Resolution; res != camera.QVGA {
		t.Errorf("Expected 320x240, got %s", res)
	}

	// Config changes apply on the next start.
	if err := cam.SetConfig(camera.QQVGAConfig()); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	if res := m.Status().Resolution; res != camera.QVGA {
		t.Errorf("Expected running stream to keep 320x240, got %s", res)
	}
	if err := m.Invoke(context.Background(), ActionStartDepth); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res := m.Status().Resolution; res != camera.QQVGA {
		t.Errorf("Expected 80x60 after restart, got %s", res)
	}
}

type fixedPolicy device.Resolution

func (p fixedPolicy) ResolutionFor(device.StreamKind) device.Resolution {
	return device.Resolution(p)
}

func TestCaptureMethod_ResolutionPolicy(t *testing.T) {
	m := NewCaptureMethod("Mock", device.NewMockDriver(nil), nil, nil, nil,
		WithResolutionPolicy(fixedPolicy{Width: 160, Height: 120}))
	defer m.Close()

	if err := m.Invoke(context.Background(), ActionStartColor); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if res := m.Status().Resolution; res != (device.Resolution{Width: 160, Height: 120}) {
		t.Errorf("Expected 160x120, got %s", res)
	}
}

func TestCaptureMethod_StartWithCancelledContext(t *testing.T) {
	drv := device.NewMockDriver(nil)
	m := NewCaptureMethod("Mock", drv, nil, nil, nil)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Invoke(ctx, ActionStartColor); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if drv.StreamsOpened() != 0 {
		t.Error("Expected no stream opened")
	}
}

func TestCaptureMethod_LoopOutlivesRequest(t *testing.T) {
	m := NewCaptureMethod("Mock", device.NewMockDriver(nil), nil, nil, nil)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Invoke(ctx, ActionStartColor); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	cancel()

	time.Sleep(20 * time.Millisecond)
	if st := m.Status().State; st != capture.StateRunning {
		t.Errorf("Expected loop to keep running after request ends, got %s", st)
	}
}

// nuiDepth is a Kinect runtime serving one sensor whose depth frames hold
// the same depth in every pixel.
type nuiDepth struct {
	frame *device.NUIFrame
}

func newNUIDepth(w, h int, depth uint16) *nuiDepth {
	pitch := w * 4
	bits := make([]byte, pitch*h)
	for i := 0; i < len(bits); i += 4 {
		binary.LittleEndian.PutUint16(bits[i+2:], depth)
	}
	return &nuiDepth{frame: &device.NUIFrame{Bits: bits, Pitch: pitch}}
}

func (n *nuiDepth) SensorCount() (int, error)                  { return 1, nil }
func (n *nuiDepth) CreateSensor(int) (device.NUISensor, error) { return n, nil }
func (n *nuiDepth) Initialize(uint32) error                    { return nil }
func (n *nuiDepth) Shutdown()                                  {}
func (n *nuiDepth) ReleaseFrame(*device.NUIFrame) error        { return nil }

func (n *nuiDepth) OpenImageStream(device.NUIImageType, device.NUIResolution, int) (device.NUIImageStream, error) {
	return n, nil
}

func (n *nuiDepth) NextFrame(time.Duration) (*device.NUIFrame, error) {
	time.Sleep(time.Millisecond)
	return n.frame, nil
}

func waitForPixel(t *testing.T, frames *display.Latest, want byte) {
	t.Helper()
	var got byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, pix := frames.Snapshot(); len(pix) > 0 {
			got = pix[0]
			if got == want {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Expected pixel %d, last saw %d", want, got)
}

func TestCaptureMethod_NearModeAppliesOnNextStart(t *testing.T) {
	cam := camera.NewManager(camera.DefaultConfig())
	if err := cam.UpdateConfig(map[string]interface{}{"depth": "80x60"}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	frames := display.NewLatest()
	drv := device.NewKinectDriver(newNUIDepth(80, 60, 3500), device.DefaultConfig(), nil)
	m := NewCaptureMethod("KinectSDK", drv, cam, frames, nil)
	defer m.Close()
	ctx := context.Background()

	// 3500mm in the default 800-4000 range.
	if err := m.Invoke(ctx, ActionStartDepth); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	waitForPixel(t, frames, 3500*256/4000)

	if err := cam.UpdateConfig(map[string]interface{}{"near_mode": true}); err != nil {
		t.Fatalf("UpdateConfig failed: %v", err)
	}

	// Beyond the 400-3000 near range, so white.
	if err := m.Invoke(ctx, ActionStartDepth); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	waitForPixel(t, frames, 255)
}
