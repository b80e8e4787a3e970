package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teslashibe/go-depthcam/pkg/camera"
	"github.com/teslashibe/go-depthcam/pkg/device"
	"github.com/teslashibe/go-depthcam/pkg/display"
	"github.com/teslashibe/go-depthcam/pkg/tracking"
)

func newTestServer(t *testing.T) (*Server, *tracking.Manager, *device.MockDriver) {
	t.Helper()

	drv := device.NewMockDriver(nil)
	cam := camera.NewManager(camera.DefaultConfig())
	frames := display.NewLatest()

	mg := tracking.NewManager(nil)
	mg.Register(tracking.NewCaptureMethod("Mock", drv, cam, frames, nil))
	mg.Register(tracking.NewCaptureMethod("Offline", device.NewMockDriver(nil, device.WithMockDevices(0)), cam, frames, nil))
	t.Cleanup(func() { mg.Close() })

	return NewServer(Config{Port: 0}, mg, cam, frames, nil), mg, drv
}

func doRequest(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, 5000)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	var out map[string]any
	json.Unmarshal(data, &out)
	return resp.StatusCode, out
}

func TestServer_ListMethods(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/methods", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var methods []tracking.MethodInfo
	if err := json.NewDecoder(resp.Body).Decode(&methods); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(methods) != 2 || methods[0].Name != "Mock" || !methods[0].Selected {
		t.Errorf("Unexpected methods: %+v", methods)
	}
	if len(methods[0].Actions) != 4 {
		t.Errorf("Expected 4 actions, got %v", methods[0].Actions)
	}
}

func TestServer_ActionLifecycle(t *testing.T) {
	s, _, drv := newTestServer(t)

	code, body := doRequest(t, s, http.MethodPost, "/api/actions/start_depth", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, body)
	}
	if body["state"] != "running" || body["kind"] != "depth" {
		t.Errorf("Unexpected status: %v", body)
	}

	code, body = doRequest(t, s, http.MethodPost, "/api/actions/stop", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, body)
	}

	code, _ = doRequest(t, s, http.MethodPost, "/api/methods/Offline/select", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 on select, got %d", code)
	}
	if drv.OpenStreams() != 0 {
		t.Errorf("Expected previous method's stream closed, %d open", drv.OpenStreams())
	}
}

func TestServer_Errors(t *testing.T) {
	s, _, _ := newTestServer(t)

	code, _ := doRequest(t, s, http.MethodPost, "/api/actions/dance", "")
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown action, got %d", code)
	}

	code, _ = doRequest(t, s, http.MethodPost, "/api/methods/NiTE/select", "")
	if code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown method, got %d", code)
	}

	doRequest(t, s, http.MethodPost, "/api/methods/Offline/select", "")
	code, body := doRequest(t, s, http.MethodPost, "/api/actions/start_color", "")
	if code != http.StatusBadGateway {
		t.Fatalf("Expected 502 for open failure, got %d", code)
	}
	if body["stage"] != "device_unavailable" {
		t.Errorf("Expected device_unavailable stage, got %v", body)
	}

	code, body = doRequest(t, s, http.MethodGet, "/api/status", "")
	if code != http.StatusOK || body["last_error"] == nil {
		t.Errorf("Expected last error in status, got %d %v", code, body)
	}
}

func TestServer_Camera(t *testing.T) {
	s, _, _ := newTestServer(t)

	code, body := doRequest(t, s, http.MethodPut, "/api/camera", `{"depth":"320x240","near_mode":true}`)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", code, body)
	}
	depth, _ := body["depth"].(map[string]any)
	if depth["width"] != float64(320) || body["near_mode"] != true {
		t.Errorf("Unexpected camera config: %v", body)
	}

	code, _ = doRequest(t, s, http.MethodPut, "/api/camera", `{"pull_timeout_ms":0}`)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid config, got %d", code)
	}
	code, _ = doRequest(t, s, http.MethodPut, "/api/camera", `not json`)
	if code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad JSON, got %d", code)
	}

	// Depth stream picks up the new resolution on start.
	code, body = doRequest(t, s, http.MethodPost, "/api/actions/start_depth", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	res, _ := body["resolution"].(map[string]any)
	if res["width"] != float64(320) {
		t.Errorf("Expected 320 wide stream, got %v", body["resolution"])
	}
}

func TestServer_Logs(t *testing.T) {
	s, _, _ := newTestServer(t)

	for i := 0; i < maxLogs+10; i++ {
		s.AddLog(slog.LevelInfo, "line")
	}
	s.AddLog(slog.LevelError, "last")

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	resp, err := s.App().Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var logs []LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&logs); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(logs) != maxLogs {
		t.Errorf("Expected %d entries, got %d", maxLogs, len(logs))
	}
	if last := logs[len(logs)-1]; last.Message != "last" || last.Level != "ERROR" {
		t.Errorf("Unexpected last entry: %+v", last)
	}
}

func TestServer_WebsocketRequiresUpgrade(t *testing.T) {
	s, _, _ := newTestServer(t)

	code, _ := doRequest(t, s, http.MethodGet, "/ws/logs", "")
	if code != http.StatusUpgradeRequired {
		t.Errorf("Expected 426, got %d", code)
	}
}
