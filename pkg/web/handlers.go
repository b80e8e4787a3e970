package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-depthcam/pkg/camera"
	"github.com/teslashibe/go-depthcam/pkg/capture"
	"github.com/teslashibe/go-depthcam/pkg/display"
	"github.com/teslashibe/go-depthcam/pkg/hub"
	"github.com/teslashibe/go-depthcam/pkg/tracking"
)

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	tracking.Status
	Display *display.Info `json:"display,omitempty"`
	Clients int           `json:"clients"`
}

// errorResponse maps an error to a status code and JSON body.
func errorResponse(c *fiber.Ctx, err error) error {
	var oe *capture.OpenError
	switch {
	case errors.As(err, &oe):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
			"stage": oe.Stage(),
		})
	case errors.Is(err, tracking.ErrUnknownMethod):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, tracking.ErrUnknownAction):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, tracking.ErrNoMethodSelected), errors.Is(err, capture.ErrLoopBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// handleListMethods returns the registered methods
func (s *Server) handleListMethods(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Methods())
}

// handleSelectMethod switches the current method
func (s *Server) handleSelectMethod(c *fiber.Ctx) error {
	name := c.Params("name")
	if err := s.ctrl.Select(name); err != nil {
		return errorResponse(c, err)
	}
	return s.handleStatus(c)
}

// handleAction invokes an action on the selected method
func (s *Server) handleAction(c *fiber.Ctx) error {
	action, err := tracking.ParseAction(c.Params("action"))
	if err != nil {
		return errorResponse(c, err)
	}

	if err := s.ctrl.Invoke(c.UserContext(), action); err != nil {
		return errorResponse(c, err)
	}
	return s.handleStatus(c)
}

// handleStatus returns the selected method's status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	st, err := s.ctrl.Status()
	if err != nil {
		return errorResponse(c, err)
	}

	resp := StatusResponse{
		Status:  st,
		Clients: s.statusHub.ClientCount() + s.logHub.ClientCount(),
	}
	if s.frames != nil {
		info := s.frames.Info()
		resp.Display = &info
	}
	return c.JSON(resp)
}

// handleGetCamera returns the capture configuration
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.camera.GetConfigJSON())
}

// handleUpdateCamera applies a partial update; it takes effect on the next start
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := json.Unmarshal(c.Body(), &params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
	}

	if err := s.camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.logger.Info("camera config updated", "params", params)
	return c.JSON(s.camera.GetConfigJSON())
}

// handleCameraPresets lists preset names
func (s *Server) handleCameraPresets(c *fiber.Ctx) error {
	return c.JSON(camera.PresetNames())
}

// handleCameraCapabilities describes what each backend supports
func (s *Server) handleCameraCapabilities(c *fiber.Ctx) error {
	return c.JSON(camera.Capabilities())
}

// handleGetLogs returns recent console lines
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleLogsWS streams console lines, starting with the backlog
func (s *Server) handleLogsWS(c *websocket.Conn) {
	s.logsMu.RLock()
	backlog := make([]hub.Message, 0, len(s.logs))
	for _, entry := range s.logs {
		if data, err := json.Marshal(entry); err == nil {
			backlog = append(backlog, hub.NewJSONMessage(data))
		}
	}
	s.logsMu.RUnlock()

	hub.NewClient(s.logHub, c, backlog...).Run()
}

// handleStatusWS streams status updates, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	var backlog []hub.Message
	if st, err := s.ctrl.Status(); err == nil {
		if data, err := json.Marshal(st); err == nil {
			backlog = append(backlog, hub.NewJSONMessage(data))
		}
	} else {
		s.logger.Debug("no status for new client", "error", err)
	}

	hub.NewClient(s.statusHub, c, backlog...).Run()
}
