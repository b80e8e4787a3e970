package display

import (
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// Window shows frames in an OpenCV highgui window.
type Window struct {
	title  string
	logger *slog.Logger

	mu     sync.Mutex
	win    *gocv.Window
	bgr    gocv.Mat
	closed bool
}

// NewWindow opens a window with the given title.
func NewWindow(title string, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	return &Window{
		title:  title,
		logger: logger.With("component", "display", "window", title),
		win:    gocv.NewWindow(title),
		bgr:    gocv.NewMat(),
	}
}

// Publish draws the frame and pumps the window event loop once.
func (w *Window) Publish(width, height int, rgb24 []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || width == 0 || height == 0 {
		return
	}

	rgb, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, rgb24)
	if err != nil {
		w.logger.Warn("frame rejected", "width", width, "height", height, "error", err)
		return
	}
	defer rgb.Close()

	gocv.CvtColor(rgb, &w.bgr, gocv.ColorRGBToBGR)
	w.win.IMShow(w.bgr)
	w.win.WaitKey(1)
}

// Close destroys the window.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.bgr.Close()
	return w.win.Close()
}
