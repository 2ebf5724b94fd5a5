// Raw frame type shared by capture, send and render paths.
package videoengine

import "fmt"

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatI420   PixelFormat = iota // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                      // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGBA32                    // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32                    // Packed BGRA, 4 bytes per pixel
	PixelFormatAny                       // Wildcard for format negotiation
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	case PixelFormatAny:
		return "ANY"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 1
	default:
		return 0
	}
}

// Black in limited-range BT.601.
const (
	blackLuma   = 16
	blackChroma = 128
)

// VideoFrame represents a raw video frame.
// The Data slices may point to memory owned by the producer (a capturer or
// the native engine). Callers must Clone frames they keep past the callback.
type VideoFrame struct {
	Data      [][]byte    // Plane data
	Stride    []int       // Stride for each plane in bytes
	Width     int         // Frame width in pixels
	Height    int         // Frame height in pixels
	Format    PixelFormat // Pixel format
	Timestamp int64       // Capture timestamp in nanoseconds
	Duration  int64       // Frame duration in nanoseconds (optional)
}

// NewI420Frame allocates a tightly packed I420 frame.
func NewI420Frame(width, height int) *VideoFrame {
	ySize := width * height
	uvWidth := (width + 1) / 2
	uvSize := uvWidth * ((height + 1) / 2)
	buf := make([]byte, ySize+2*uvSize)
	return &VideoFrame{
		Data:   [][]byte{buf[:ySize], buf[ySize : ySize+uvSize], buf[ySize+uvSize:]},
		Stride: []int{width, uvWidth, uvWidth},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}
}

// Clone creates a deep copy of the video frame.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:      make([][]byte, len(f.Data)),
		Stride:    make([]int, len(f.Stride)),
		Width:     f.Width,
		Height:    f.Height,
		Format:    f.Format,
		Timestamp: f.Timestamp,
		Duration:  f.Duration,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// TimestampMs returns the capture timestamp in milliseconds.
func (f *VideoFrame) TimestampMs() int64 {
	return f.Timestamp / 1_000_000
}

// Blacken overwrites an I420 frame with black.
func (f *VideoFrame) Blacken() {
	for i, plane := range f.Data {
		v := byte(blackChroma)
		if i == 0 {
			v = blackLuma
		}
		for j := range plane {
			plane[j] = v
		}
	}
}

// BlackCopy returns a black I420 frame with the same geometry and timing.
func (f *VideoFrame) BlackCopy() *VideoFrame {
	black := NewI420Frame(f.Width, f.Height)
	black.Timestamp = f.Timestamp
	black.Duration = f.Duration
	black.Blacken()
	return black
}

// planeLayout returns the bytes per row and the row count of each plane.
func (p PixelFormat) planeLayout(width, height int) [][2]int {
	uvw, uvh := (width+1)/2, (height+1)/2
	switch p {
	case PixelFormatI420:
		return [][2]int{{width, height}, {uvw, uvh}, {uvw, uvh}}
	case PixelFormatNV12:
		return [][2]int{{width, height}, {2 * uvw, uvh}}
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return [][2]int{{4 * width, height}}
	default:
		return nil
	}
}

// validate checks that every plane holds the rows its stride implies.
func (f *VideoFrame) validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: frame size %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	layout := f.Format.planeLayout(f.Width, f.Height)
	if layout == nil {
		return fmt.Errorf("%w: cannot convert %s to I420", ErrInvalidFrame, f.Format)
	}
	if len(f.Data) < len(layout) || len(f.Stride) < len(layout) {
		return fmt.Errorf("%w: frame has %d planes, %s needs %d", ErrInvalidFrame, len(f.Data), f.Format, len(layout))
	}
	for i, pl := range layout {
		rowBytes, rows := pl[0], pl[1]
		if f.Stride[i] < rowBytes {
			return fmt.Errorf("%w: plane %d stride %d below row size %d", ErrInvalidFrame, i, f.Stride[i], rowBytes)
		}
		if need := f.Stride[i]*(rows-1) + rowBytes; len(f.Data[i]) < need {
			return fmt.Errorf("%w: plane %d has %d bytes, needs %d", ErrInvalidFrame, i, len(f.Data[i]), need)
		}
	}
	return nil
}

// ToI420 converts the frame to a packed I420 frame keeping cropHeight rows,
// centered vertically. The frame is never scaled. A cropHeight of zero or
// larger than the frame keeps every row.
func (f *VideoFrame) ToI420(cropHeight int) (*VideoFrame, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if cropHeight <= 0 || cropHeight > f.Height {
		cropHeight = f.Height
	}
	// Keep chroma rows aligned.
	top := ((f.Height - cropHeight) / 2) &^ 1

	out := NewI420Frame(f.Width, cropHeight)
	out.Timestamp = f.Timestamp
	out.Duration = f.Duration

	switch f.Format {
	case PixelFormatI420:
		copyPlane(out.Data[0], out.Stride[0], f.Data[0], f.Stride[0], top, f.Width, cropHeight)
		uvw, uvh := (f.Width+1)/2, (cropHeight+1)/2
		copyPlane(out.Data[1], out.Stride[1], f.Data[1], f.Stride[1], top/2, uvw, uvh)
		copyPlane(out.Data[2], out.Stride[2], f.Data[2], f.Stride[2], top/2, uvw, uvh)
	case PixelFormatNV12:
		copyPlane(out.Data[0], out.Stride[0], f.Data[0], f.Stride[0], top, f.Width, cropHeight)
		uvw, uvh := (f.Width+1)/2, (cropHeight+1)/2
		for y := 0; y < uvh; y++ {
			src := f.Data[1][(top/2+y)*f.Stride[1]:]
			u := out.Data[1][y*out.Stride[1]:]
			v := out.Data[2][y*out.Stride[2]:]
			for x := 0; x < uvw; x++ {
				u[x] = src[2*x]
				v[x] = src[2*x+1]
			}
		}
	case PixelFormatRGBA32, PixelFormatBGRA32:
		f.packedToI420(out, top)
	default:
		return nil, fmt.Errorf("cannot convert %s to I420", f.Format)
	}
	return out, nil
}

func (f *VideoFrame) packedToI420(out *VideoFrame, top int) {
	ri, bi := 0, 2
	if f.Format == PixelFormatBGRA32 {
		ri, bi = 2, 0
	}
	for y := 0; y < out.Height; y++ {
		row := f.Data[0][(top+y)*f.Stride[0]:]
		for x := 0; x < out.Width; x++ {
			px := row[4*x:]
			yv, u, v := rgbToYUV(px[ri], px[1], px[bi])
			out.Data[0][y*out.Stride[0]+x] = yv
			if x%2 == 0 && y%2 == 0 {
				out.Data[1][(y/2)*out.Stride[1]+x/2] = u
				out.Data[2][(y/2)*out.Stride[2]+x/2] = v
			}
		}
	}
}

func copyPlane(dst []byte, dstStride int, src []byte, srcStride, top, width, height int) {
	for y := 0; y < height; y++ {
		copy(dst[y*dstStride:y*dstStride+width], src[(top+y)*srcStride:])
	}
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	uvSize := ((width + 1) / 2) * ((height + 1) / 2)
	return width*height + uvSize*2
}

// i420FromBuffer wraps a packed I420 buffer without copying.
func i420FromBuffer(buf []byte, width, height int) (*VideoFrame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(buf) < I420Size(width, height) {
		return nil, fmt.Errorf("buffer too small for %dx%d I420: %d bytes", width, height, len(buf))
	}
	ySize := width * height
	uvWidth := (width + 1) / 2
	uvSize := uvWidth * ((height + 1) / 2)
	return &VideoFrame{
		Data:   [][]byte{buf[:ySize], buf[ySize : ySize+uvSize], buf[ySize+uvSize : ySize+2*uvSize]},
		Stride: []int{width, uvWidth, uvWidth},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}, nil
}

// rgbToYUV converts RGB to YUV (BT.601)
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0

	y = uint8(clampf(yf, 16, 235))
	u = uint8(clampf(uf, 16, 240))
	v = uint8(clampf(vf, 16, 240))
	return
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
