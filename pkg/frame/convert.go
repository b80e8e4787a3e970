package frame

import "encoding/binary"

// Convert decodes raw into dst.
//
// It returns updated=false with a nil error when the frame carries no usable
// data (zero or short pitch, truncated data); dst is left untouched so the
// previous image stays on screen. A frame whose dimensions differ from dst
// returns a *SizeMismatchError and nothing is written.
func Convert(raw *RawFrame, dst *Buffer) (bool, error) {
	if raw.Width != dst.Width || raw.Height != dst.Height || len(dst.Pix) != dst.Width*dst.Height*3 {
		return false, &SizeMismatchError{
			FrameWidth:   raw.Width,
			FrameHeight:  raw.Height,
			BufferWidth:  dst.Width,
			BufferHeight: dst.Height,
		}
	}

	bpp := raw.Format.BytesPerPixel()
	if bpp == 0 {
		return false, ErrUnsupportedFormat
	}
	if !rowsAvailable(raw, bpp) {
		return false, nil
	}

	switch raw.Format {
	case FormatRGBX32:
		convertRGBX32(raw, dst)
	case FormatRGB24:
		convertRGB24(raw, dst)
	case FormatBGR24:
		convertBGR24(raw, dst)
	case FormatDepth16:
		if raw.DepthRange.Max == 0 {
			return false, nil
		}
		convertDepth16(raw, dst)
	case FormatInfrared16:
		convertInfrared16(raw, dst)
	case FormatInfrared8:
		convertInfrared8(raw, dst)
	}
	return true, nil
}

// rowsAvailable checks that every row up to Width*bpp can be read at Pitch.
func rowsAvailable(raw *RawFrame, bpp int) bool {
	if raw.Width == 0 || raw.Height == 0 {
		return false
	}
	rowBytes := raw.Width * bpp
	if raw.Pitch < rowBytes {
		return false
	}
	return len(raw.Data) >= raw.Pitch*(raw.Height-1)+rowBytes
}

// row returns the y-th source row, trimmed to exactly rowBytes.
func row(raw *RawFrame, y, rowBytes int) []byte {
	start := y * raw.Pitch
	return raw.Data[start : start+rowBytes]
}

func convertRGBX32(raw *RawFrame, dst *Buffer) {
	rowBytes := raw.Width * 4
	out := dst.Pix
	j := 0
	for y := 0; y < raw.Height; y++ {
		src := row(raw, y, rowBytes)
		for i := 0; i < rowBytes; i += 4 {
			out[j] = src[i+2]
			out[j+1] = src[i+1]
			out[j+2] = src[i]
			j += 3
		}
	}
}

func convertRGB24(raw *RawFrame, dst *Buffer) {
	rowBytes := raw.Width * 3
	for y := 0; y < raw.Height; y++ {
		copy(dst.Pix[y*rowBytes:(y+1)*rowBytes], row(raw, y, rowBytes))
	}
}

func convertBGR24(raw *RawFrame, dst *Buffer) {
	rowBytes := raw.Width * 3
	out := dst.Pix
	j := 0
	for y := 0; y < raw.Height; y++ {
		src := row(raw, y, rowBytes)
		for i := 0; i < rowBytes; i += 3 {
			out[j] = src[i+2]
			out[j+1] = src[i+1]
			out[j+2] = src[i]
			j += 3
		}
	}
}

func convertDepth16(raw *RawFrame, dst *Buffer) {
	rowBytes := raw.Width * 2
	out := dst.Pix
	j := 0
	for y := 0; y < raw.Height; y++ {
		src := row(raw, y, rowBytes)
		for i := 0; i < rowBytes; i += 2 {
			v := DepthIntensity(binary.LittleEndian.Uint16(src[i:]), raw.DepthRange)
			out[j], out[j+1], out[j+2] = v, v, v
			j += 3
		}
	}
}

func convertInfrared16(raw *RawFrame, dst *Buffer) {
	rowBytes := raw.Width * 2
	out := dst.Pix
	j := 0
	for y := 0; y < raw.Height; y++ {
		src := row(raw, y, rowBytes)
		for i := 0; i < rowBytes; i += 2 {
			v := InfraredIntensity(binary.LittleEndian.Uint16(src[i:]))
			out[j], out[j+1], out[j+2] = v, v, v
			j += 3
		}
	}
}

func convertInfrared8(raw *RawFrame, dst *Buffer) {
	out := dst.Pix
	j := 0
	for y := 0; y < raw.Height; y++ {
		for _, v := range row(raw, y, raw.Width) {
			out[j], out[j+1], out[j+2] = v, v, v
			j += 3
		}
	}
}

// DepthIntensity maps a depth sample to an 8-bit gray level.
//
// Depths at or below rng.Min are black, depths at or above rng.Max are white,
// and everything in between is depth*256/Max. The ramp is relative to zero,
// not to Min, so values just above Min do not start at black.
func DepthIntensity(depth uint16, rng DepthRange) byte {
	switch {
	case rng.Max == 0:
		return 0
	case depth <= rng.Min:
		return 0
	case depth >= rng.Max:
		return 255
	}
	// depth < Max here, so the quotient is at most 255.
	return byte(uint32(depth) * 256 / uint32(rng.Max))
}

// InfraredIntensity keeps the high byte of a 16-bit infrared sample.
func InfraredIntensity(v uint16) byte {
	return byte(v >> 8)
}
