package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrSizeMismatch is returned when a raw frame does not match the
	// resolution of the target buffer. The buffer must be reallocated.
	ErrSizeMismatch = errors.New("frame: size mismatch")

	// ErrUnsupportedFormat is returned for pixel formats without a converter.
	ErrUnsupportedFormat = errors.New("frame: unsupported pixel format")
)

// SizeMismatchError describes a raw frame whose dimensions differ from the
// buffer it was converted into.
type SizeMismatchError struct {
	FrameWidth, FrameHeight   int
	BufferWidth, BufferHeight int
}

// Error implements the error interface.
func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("frame: size mismatch: frame is %dx%d, buffer is %dx%d",
		e.FrameWidth, e.FrameHeight, e.BufferWidth, e.BufferHeight)
}

// Is makes errors.Is(err, ErrSizeMismatch) match.
func (e *SizeMismatchError) Is(target error) bool {
	return target == ErrSizeMismatch
}
