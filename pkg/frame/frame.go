// Package frame converts raw sensor frames into RGB24 display buffers.
//
// Everything in this package is pure: no I/O, no goroutines, no logging.
// Converters read raw frames through bounds-checked slices with an explicit
// row pitch and write into a caller-owned Buffer.
package frame

import (
	"fmt"
	"time"
)

// PixelFormat identifies the native encoding of a raw frame.
type PixelFormat string

const (
	// FormatRGBX32 is 4 bytes per pixel in B,G,R,X order (Kinect color).
	FormatRGBX32 PixelFormat = "rgbx32"
	// FormatDepth16 is one little-endian uint16 depth value per pixel.
	FormatDepth16 PixelFormat = "depth16"
	// FormatInfrared16 is one little-endian uint16 intensity per pixel.
	FormatInfrared16 PixelFormat = "ir16"
	// FormatRGB24 is 3 bytes per pixel in R,G,B order (OpenNI RGB888).
	FormatRGB24 PixelFormat = "rgb24"
	// FormatBGR24 is 3 bytes per pixel in B,G,R order (OpenCV native).
	FormatBGR24 PixelFormat = "bgr24"
	// FormatInfrared8 is one byte per pixel (OpenNI GRAY8).
	FormatInfrared8 PixelFormat = "ir8"
)

// BytesPerPixel returns the source pixel size, or 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGBX32:
		return 4
	case FormatRGB24, FormatBGR24:
		return 3
	case FormatDepth16, FormatInfrared16:
		return 2
	case FormatInfrared8:
		return 1
	default:
		return 0
	}
}

// DepthRange is the valid depth interval reported by the device, in
// millimetres. It depends on near mode for Kinect sensors.
type DepthRange struct {
	Min uint16 `json:"min"`
	Max uint16 `json:"max"`
}

// RawFrame is one undecoded frame as delivered by a device stream.
// Data is borrowed from the stream and must not be retained after the
// frame has been released.
type RawFrame struct {
	Data   []byte
	Width  int
	Height int
	// Pitch is the number of bytes between the start of consecutive rows.
	// Zero means the frame is not ready.
	Pitch  int
	Format PixelFormat

	// DepthRange is only meaningful for FormatDepth16.
	DepthRange DepthRange

	Sequence  uint64
	Timestamp time.Time
}

// Buffer is a fixed-size RGB24 buffer. len(Pix) is always Width*Height*3.
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewBuffer allocates a zeroed buffer for the given resolution.
func NewBuffer(width, height int) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*3),
	}
}

// Matches reports whether the buffer is allocated for width x height.
func (b *Buffer) Matches(width, height int) bool {
	return b.Width == width && b.Height == height && len(b.Pix) == width*height*3
}

// Zero clears every byte of the buffer in place.
func (b *Buffer) Zero() {
	clear(b.Pix)
}

// String returns the buffer resolution, e.g. "640x480".
func (b *Buffer) String() string {
	return fmt.Sprintf("%dx%d", b.Width, b.Height)
}
