package device

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-depthcam/pkg/frame"
)

type fakeNUI struct {
	count     int
	countErr  error
	createErr error
	sensor    *fakeSensor
}

func (f *fakeNUI) SensorCount() (int, error) {
	return f.count, f.countErr
}

func (f *fakeNUI) CreateSensor(index int) (NUISensor, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.sensor, nil
}

type fakeSensor struct {
	initErr   error
	openErr   error
	flags     uint32
	opened    NUIImageType
	res       NUIResolution
	shutdowns int
	stream    *fakeNUIStream
}

func (s *fakeSensor) Initialize(flags uint32) error {
	s.flags = flags
	return s.initErr
}

func (s *fakeSensor) OpenImageStream(t NUIImageType, r NUIResolution, _ int) (NUIImageStream, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opened = t
	s.res = r
	return s.stream, nil
}

func (s *fakeSensor) Shutdown() {
	s.shutdowns++
}

type fakeNUIStream struct {
	frame    *NUIFrame
	released int
}

func (s *fakeNUIStream) NextFrame(time.Duration) (*NUIFrame, error) {
	if s.frame == nil {
		return nil, ErrEmpty
	}
	return s.frame, nil
}

func (s *fakeNUIStream) ReleaseFrame(*NUIFrame) error {
	s.released++
	return nil
}

func TestKinectDriver_NoBinding(t *testing.T) {
	d := NewKinectDriver(nil, DefaultConfig(), nil)
	if registeredNUI() != nil {
		t.Skip("a NUI binding is registered in this process")
	}
	if _, err := d.Discover(); !errors.Is(err, ErrNoBinding) {
		t.Errorf("Expected ErrNoBinding, got %v", err)
	}
}

func TestKinectDriver_InitFailureShutsDownSensor(t *testing.T) {
	sensor := &fakeSensor{initErr: errors.New("E_NUI_DEVICE_IN_USE")}
	d := NewKinectDriver(&fakeNUI{count: 1, sensor: sensor}, DefaultConfig(), nil)

	if _, err := d.OpenDevice(0); err == nil {
		t.Fatal("Expected initialize error")
	}
	if sensor.shutdowns != 1 {
		t.Errorf("Expected sensor shutdown after failed init, got %d", sensor.shutdowns)
	}
}

func TestKinectDriver_ColorStream(t *testing.T) {
	bits := make([]byte, 80*4*60)
	stream := &fakeNUIStream{frame: &NUIFrame{Bits: bits, Pitch: 80 * 4}}
	sensor := &fakeSensor{stream: stream}
	d := NewKinectDriver(&fakeNUI{count: 1, sensor: sensor}, DefaultConfig(), nil)

	h, err := d.OpenDevice(0)
	if err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}
	defer h.Close()

	if sensor.flags&NUIInitUsesColor == 0 || sensor.flags&NUIInitUsesDepth == 0 {
		t.Errorf("Expected color and depth init flags, got %#x", sensor.flags)
	}

	s, err := h.OpenStream(StreamColor, Resolution{Width: 80, Height: 60})
	if err != nil {
		t.Fatalf("OpenStream failed: %v", err)
	}
	if sensor.opened != NUIImageTypeColor || sensor.res != NUIResolution80x60 {
		t.Errorf("Unexpected stream params: type=%d res=%d", sensor.opened, sensor.res)
	}

	raw, err := s.PullRawFrame(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("PullRawFrame failed: %v", err)
	}
	if raw.Format != frame.FormatRGBX32 || raw.Width != 80 || raw.Height != 60 || raw.Pitch != 320 {
		t.Errorf("Unexpected raw frame: %+v", raw)
	}

	s.ReleaseFrame(raw)
	if stream.released != 1 {
		t.Errorf("Expected 1 release, got %d", stream.released)
	}

	h.Close()
	h.Close()
	if sensor.shutdowns != 1 {
		t.Errorf("Expected exactly one shutdown, got %d", sensor.shutdowns)
	}
}

func TestKinectDriver_UnsupportedResolution(t *testing.T) {
	sensor := &fakeSensor{stream: &fakeNUIStream{}}
	d := NewKinectDriver(&fakeNUI{count: 1, sensor: sensor}, DefaultConfig(), nil)

	h, err := d.OpenDevice(0)
	if err != nil {
		t.Fatalf("OpenDevice failed: %v", err)
	}
	defer h.Close()

	if _, err := h.OpenStream(StreamColor, Resolution{Width: 1920, Height: 1080}); err == nil {
		t.Error("Expected error for 1920x1080")
	}
}

func TestKinectDriver_DepthRepackAndNearMode(t *testing.T) {
	const w, h = 2, 2
	pitch := w*4 + 8
	bits := make([]byte, pitch*h)
	depths := []uint16{500, 1000, 2000, 3500}
	for i, d := range depths {
		y, x := i/w, i%w
		off := y*pitch + x*4
		binary.LittleEndian.PutUint16(bits[off:], 7) // player index
		binary.LittleEndian.PutUint16(bits[off+2:], d)
	}

	stream := &fakeNUIStream{frame: &NUIFrame{Bits: bits, Pitch: pitch}}
	ks := &kinectStream{
		stream:   stream,
		kind:     StreamDepth,
		res:      Resolution{Width: w, Height: h},
		nearMode: true,
		depth:    make([]byte, w*h*2),
	}

	raw, err := ks.PullRawFrame(time.Millisecond)
	if err != nil {
		t.Fatalf("PullRawFrame failed: %v", err)
	}
	if raw.Format != frame.FormatDepth16 || raw.Pitch != w*2 {
		t.Fatalf("Unexpected raw frame: format=%s pitch=%d", raw.Format, raw.Pitch)
	}
	if raw.DepthRange != (frame.DepthRange{Min: KinectNearDepthMin, Max: KinectNearDepthMax}) {
		t.Errorf("Expected near range, got %+v", raw.DepthRange)
	}
	for i, d := range depths {
		if got := binary.LittleEndian.Uint16(raw.Data[i*2:]); got != d {
			t.Errorf("Pixel %d: expected depth %d, got %d", i, d, got)
		}
	}
}

func TestKinectDriver_DepthZeroPitchPassedThrough(t *testing.T) {
	stream := &fakeNUIStream{frame: &NUIFrame{Bits: make([]byte, 64), Pitch: 0}}
	ks := &kinectStream{
		stream: stream,
		kind:   StreamDepth,
		res:    Resolution{Width: 2, Height: 2},
		depth:  make([]byte, 8),
	}

	raw, err := ks.PullRawFrame(time.Millisecond)
	if err != nil {
		t.Fatalf("PullRawFrame failed: %v", err)
	}
	if raw.Pitch != 0 {
		t.Errorf("Expected pitch 0 for unready frame, got %d", raw.Pitch)
	}
	if raw.DepthRange.Max != KinectDepthMax {
		t.Errorf("Expected default range, got %+v", raw.DepthRange)
	}
}

func TestKinectDriver_EmptyFrame(t *testing.T) {
	ks := &kinectStream{stream: &fakeNUIStream{}, kind: StreamInfrared, res: Resolution{Width: 2, Height: 2}}
	if _, err := ks.PullRawFrame(time.Millisecond); !errors.Is(err, ErrEmpty) {
		t.Errorf("Expected ErrEmpty, got %v", err)
	}
}

func TestKinectDriver_ConfigureNearMode(t *testing.T) {
	const w, h = 80, 60
	bits := make([]byte, w*4*h)
	stream := &fakeNUIStream{frame: &NUIFrame{Bits: bits, Pitch: w * 4}}
	sensor := &fakeSensor{stream: stream}
	d := NewKinectDriver(&fakeNUI{count: 1, sensor: sensor}, DefaultConfig(), nil)

	for _, tt := range []struct {
		nearMode bool
		want     frame.DepthRange
	}{
		{true, frame.DepthRange{Min: KinectNearDepthMin, Max: KinectNearDepthMax}},
		{false, frame.DepthRange{Min: KinectDepthMin, Max: KinectDepthMax}},
	} {
		d.Configure(Settings{NearMode: tt.nearMode})

		hd, err := d.OpenDevice(0)
		if err != nil {
			t.Fatalf("OpenDevice failed: %v", err)
		}
		s, err := hd.OpenStream(StreamDepth, Resolution{Width: w, Height: h})
		if err != nil {
			t.Fatalf("OpenStream failed: %v", err)
		}

		raw, err := s.PullRawFrame(time.Millisecond)
		if err != nil {
			t.Fatalf("PullRawFrame failed: %v", err)
		}
		if raw.DepthRange != tt.want {
			t.Errorf("near_mode=%v: expected %+v, got %+v", tt.nearMode, tt.want, raw.DepthRange)
		}
		s.ReleaseFrame(raw)
		s.Close()
		hd.Close()
	}
}
