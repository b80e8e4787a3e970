// Package web provides the control console: a REST API to select methods
// and invoke actions, plus websocket streams of log lines and status.
// No pixel data is served.
package web

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/teslashibe/go-depthcam/pkg/camera"
	"github.com/teslashibe/go-depthcam/pkg/display"
	"github.com/teslashibe/go-depthcam/pkg/hub"
	"github.com/teslashibe/go-depthcam/pkg/tracking"
)

// maxLogs is the size of the console backlog.
const maxLogs = 500

// Controller is the method registry driven by the API.
type Controller interface {
	Methods() []tracking.MethodInfo
	Select(name string) error
	Invoke(ctx context.Context, action tracking.Action) error
	Status() (tracking.Status, error)
}

// LogEntry represents a console line
type LogEntry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Config configures the server.
type Config struct {
	Port        int
	CORSOrigins string
}

// Server is the control console server
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	ctrl   Controller
	camera *camera.Manager
	frames *display.Latest

	// Log buffer (last 500 entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	logHub    *hub.Hub

	hubCtx context.Context
	cancel context.CancelFunc
}

// NewServer creates the console server. frames may be nil.
func NewServer(cfg Config, ctrl Controller, cam *camera.Manager, frames *display.Latest, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:      ":" + strconv.Itoa(cfg.Port),
		logger:    logger,
		ctrl:      ctrl,
		camera:    cam,
		frames:    frames,
		logs:      make([]LogEntry, 0, maxLogs),
		statusHub: hub.New("status", logger),
		logHub:    hub.New("logs", logger),
	}
	s.hubCtx, s.cancel = context.WithCancel(context.Background())

	app := fiber.New(fiber.Config{
		AppName:               "depthcam",
		DisableStartupMessage: true,
	})

	corsCfg := cors.ConfigDefault
	if cfg.CORSOrigins != "" {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	app.Use(cors.New(corsCfg))

	// API routes
	api := app.Group("/api")
	api.Get("/methods", s.handleListMethods)
	api.Post("/methods/:name/select", s.handleSelectMethod)
	api.Post("/actions/:action", s.handleAction)
	api.Get("/status", s.handleStatus)
	api.Get("/camera", s.handleGetCamera)
	api.Put("/camera", s.handleUpdateCamera)
	api.Get("/camera/presets", s.handleCameraPresets)
	api.Get("/camera/capabilities", s.handleCameraCapabilities)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/logs", websocket.New(s.handleLogsWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the hubs and serves until Shutdown.
func (s *Server) Start() error {
	go s.statusHub.Run(s.hubCtx)
	go s.logHub.Run(s.hubCtx)

	s.logger.Info("control console listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// AddLog adds a console line and broadcasts it to clients.
func (s *Server) AddLog(level slog.Level, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Level:   level.String(),
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// PublishStatus broadcasts a status snapshot to status clients.
func (s *Server) PublishStatus(st tracking.Status) {
	s.statusHub.BroadcastJSON(st)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
