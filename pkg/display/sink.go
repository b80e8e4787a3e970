// Package display provides destinations for converted RGB24 frames.
//
// A Sink is called synchronously from the capture goroutine once per frame.
// Implementations must copy or consume the pixels before returning; the
// slice is reused for the next frame.
package display

import (
	"sync"
	"time"
)

// Sink receives converted frames.
type Sink interface {
	Publish(width, height int, rgb24 []byte)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(width, height int, rgb24 []byte)

// Publish calls f.
func (f SinkFunc) Publish(width, height int, rgb24 []byte) {
	f(width, height, rgb24)
}

// Discard drops every frame.
var Discard Sink = SinkFunc(func(int, int, []byte) {})

// Info describes the most recent frame held by a Latest sink.
type Info struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Frames    uint64    `json:"frames"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Latest keeps a copy of the most recently published frame.
// Older frames are overwritten; readers never block the capture loop for
// longer than one copy.
type Latest struct {
	mu      sync.RWMutex
	width   int
	height  int
	pix     []byte
	frames  uint64
	updated time.Time
}

// NewLatest creates an empty Latest sink.
func NewLatest() *Latest {
	return &Latest{}
}

// Publish copies the frame.
func (l *Latest) Publish(width, height int, rgb24 []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cap(l.pix) < len(rgb24) {
		l.pix = make([]byte, len(rgb24))
	}
	l.pix = l.pix[:len(rgb24)]
	copy(l.pix, rgb24)

	l.width = width
	l.height = height
	l.frames++
	l.updated = time.Now()
}

// Snapshot returns a copy of the latest frame. pix is nil before the
// first publish.
func (l *Latest) Snapshot() (width, height int, pix []byte) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.pix == nil {
		return 0, 0, nil
	}
	out := make([]byte, len(l.pix))
	copy(out, l.pix)
	return l.width, l.height, out
}

// Info returns metadata about the latest frame.
func (l *Latest) Info() Info {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Info{
		Width:     l.width,
		Height:    l.height,
		Frames:    l.frames,
		UpdatedAt: l.updated,
	}
}

// Tee publishes every frame to each sink in order.
type Tee []Sink

// NewTee creates a fan-out sink. Nil sinks are skipped.
func NewTee(sinks ...Sink) Tee {
	t := make(Tee, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			t = append(t, s)
		}
	}
	return t
}

// Publish forwards the frame.
func (t Tee) Publish(width, height int, rgb24 []byte) {
	for _, s := range t {
		s.Publish(width, height, rgb24)
	}
}
