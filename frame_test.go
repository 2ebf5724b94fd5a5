package videoengine

import (
	"errors"
	"testing"
)

func TestPixelFormat_String(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   string
	}{
		{PixelFormatI420, "I420"},
		{PixelFormatNV12, "NV12"},
		{PixelFormatRGBA32, "RGBA32"},
		{PixelFormatBGRA32, "BGRA32"},
		{PixelFormatAny, "ANY"},
		{PixelFormat(99), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.format.String(); got != tt.want {
				t.Errorf("PixelFormat.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPixelFormat_PlaneCount(t *testing.T) {
	tests := []struct {
		format PixelFormat
		want   int
	}{
		{PixelFormatI420, 3},
		{PixelFormatNV12, 2},
		{PixelFormatRGBA32, 1},
		{PixelFormatBGRA32, 1},
		{PixelFormatAny, 0},
		{PixelFormat(99), 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.PlaneCount(); got != tt.want {
				t.Errorf("PixelFormat.PlaneCount() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestI420Size(t *testing.T) {
	tests := []struct {
		width, height int
		want          int
	}{
		{1920, 1080, 1920*1080 + 2*(960*540)},
		{1280, 720, 1280*720 + 2*(640*360)},
		{640, 400, 640*400 + 2*(320*200)},
		{3, 3, 9 + 2*(2*2)},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			if got := I420Size(tt.width, tt.height); got != tt.want {
				t.Errorf("I420Size(%d, %d) = %v, want %v", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestNewI420Frame(t *testing.T) {
	f := NewI420Frame(5, 3)
	if f.Format != PixelFormatI420 {
		t.Fatalf("format = %v, want I420", f.Format)
	}
	if got := len(f.Data[0]); got != 15 {
		t.Errorf("Y plane = %d bytes, want 15", got)
	}
	if got := len(f.Data[1]); got != 6 {
		t.Errorf("U plane = %d bytes, want 6", got)
	}
	if f.Stride[0] != 5 || f.Stride[1] != 3 || f.Stride[2] != 3 {
		t.Errorf("strides = %v, want [5 3 3]", f.Stride)
	}
}

func TestVideoFrame_Clone(t *testing.T) {
	original := &VideoFrame{
		Data: [][]byte{
			{1, 2, 3, 4},
			{5},
			{7},
		},
		Stride:    []int{2, 1, 1},
		Width:     2,
		Height:    2,
		Format:    PixelFormatI420,
		Timestamp: 12345,
		Duration:  33333,
	}

	clone := original.Clone()

	if clone.Width != original.Width || clone.Height != original.Height {
		t.Error("Clone dimensions mismatch")
	}
	if clone.Timestamp != original.Timestamp || clone.Duration != original.Duration {
		t.Error("Clone timing mismatch")
	}
	for i := range original.Data {
		for j := range original.Data[i] {
			if clone.Data[i][j] != original.Data[i][j] {
				t.Errorf("Clone data mismatch at plane %d, index %d", i, j)
			}
		}
	}

	clone.Data[0][0] = 99
	if original.Data[0][0] == 99 {
		t.Error("Clone is not independent from original")
	}
}

func TestVideoFrame_BlackCopy(t *testing.T) {
	src := NewI420Frame(4, 2)
	for _, p := range src.Data {
		for i := range p {
			p[i] = 200
		}
	}
	src.Timestamp = 42_000_000

	black := src.BlackCopy()
	if black.Width != 4 || black.Height != 2 {
		t.Fatalf("size = %dx%d, want 4x2", black.Width, black.Height)
	}
	if black.TimestampMs() != 42 {
		t.Errorf("TimestampMs() = %d, want 42", black.TimestampMs())
	}
	for _, v := range black.Data[0] {
		if v != blackLuma {
			t.Fatalf("luma = %d, want %d", v, blackLuma)
		}
	}
	for _, plane := range black.Data[1:] {
		for _, v := range plane {
			if v != blackChroma {
				t.Fatalf("chroma = %d, want %d", v, blackChroma)
			}
		}
	}
	if src.Data[0][0] != 200 {
		t.Error("BlackCopy modified the source frame")
	}
}

func TestVideoFrame_ToI420Crop(t *testing.T) {
	src := NewI420Frame(4, 8)
	for y := 0; y < 8; y++ {
		for x := 0; x < 4; x++ {
			src.Data[0][y*4+x] = byte(y)
		}
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 2; x++ {
			src.Data[1][y*2+x] = byte(100 + y)
			src.Data[2][y*2+x] = byte(200 + y)
		}
	}

	out, err := src.ToI420(4)
	if err != nil {
		t.Fatalf("ToI420() error = %v", err)
	}
	if out.Width != 4 || out.Height != 4 {
		t.Fatalf("size = %dx%d, want 4x4", out.Width, out.Height)
	}
	// Rows 2..5 survive the centered crop.
	for y := 0; y < 4; y++ {
		if got := out.Data[0][y*4]; got != byte(y+2) {
			t.Errorf("luma row %d = %d, want %d", y, got, y+2)
		}
	}
	if out.Data[1][0] != 101 || out.Data[2][0] != 201 {
		t.Errorf("chroma row 0 = %d/%d, want 101/201", out.Data[1][0], out.Data[2][0])
	}
}

func TestVideoFrame_ToI420KeepsAllRows(t *testing.T) {
	src := NewI420Frame(4, 4)
	for _, crop := range []int{0, -1, 4, 10} {
		out, err := src.ToI420(crop)
		if err != nil {
			t.Fatalf("ToI420(%d) error = %v", crop, err)
		}
		if out.Height != 4 {
			t.Errorf("ToI420(%d) height = %d, want 4", crop, out.Height)
		}
	}
}

func TestVideoFrame_ToI420FromNV12(t *testing.T) {
	src := &VideoFrame{
		Data:   [][]byte{{1, 2, 3, 4}, {10, 20}},
		Stride: []int{2, 2},
		Width:  2,
		Height: 2,
		Format: PixelFormatNV12,
	}
	out, err := src.ToI420(0)
	if err != nil {
		t.Fatalf("ToI420() error = %v", err)
	}
	if out.Data[0][3] != 4 {
		t.Errorf("luma = %d, want 4", out.Data[0][3])
	}
	if out.Data[1][0] != 10 || out.Data[2][0] != 20 {
		t.Errorf("chroma = %d/%d, want 10/20", out.Data[1][0], out.Data[2][0])
	}
}

func TestVideoFrame_ToI420FromPacked(t *testing.T) {
	tests := []struct {
		format PixelFormat
		pixel  []byte
	}{
		{PixelFormatRGBA32, []byte{255, 0, 0, 255}},
		{PixelFormatBGRA32, []byte{0, 0, 255, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			var data []byte
			for i := 0; i < 4; i++ {
				data = append(data, tt.pixel...)
			}
			src := &VideoFrame{
				Data:   [][]byte{data},
				Stride: []int{8},
				Width:  2,
				Height: 2,
				Format: tt.format,
			}
			out, err := src.ToI420(0)
			if err != nil {
				t.Fatalf("ToI420() error = %v", err)
			}
			// Pure red is Y=81, U=90 in BT.601.
			if out.Data[0][0] != 81 || out.Data[1][0] != 90 {
				t.Errorf("Y/U = %d/%d, want 81/90", out.Data[0][0], out.Data[1][0])
			}
		})
	}
}

func TestVideoFrame_ToI420Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame *VideoFrame
	}{
		{"zero size", &VideoFrame{Format: PixelFormatI420}},
		{"missing planes", &VideoFrame{Width: 2, Height: 2, Format: PixelFormatI420, Data: [][]byte{{0}}, Stride: []int{2}}},
		{"unconvertible format", &VideoFrame{Width: 2, Height: 2, Format: PixelFormatAny}},
		{"nil frame", nil},
		{"short chroma", &VideoFrame{Width: 4, Height: 4, Format: PixelFormatI420,
			Data: [][]byte{make([]byte, 16), make([]byte, 4), make([]byte, 3)}, Stride: []int{4, 2, 2}}},
		{"stride below width", &VideoFrame{Width: 4, Height: 2, Format: PixelFormatI420,
			Data: [][]byte{make([]byte, 8), make([]byte, 2), make([]byte, 2)}, Stride: []int{2, 2, 2}}},
		{"short nv12 chroma", &VideoFrame{Width: 4, Height: 4, Format: PixelFormatNV12,
			Data: [][]byte{make([]byte, 16), make([]byte, 6)}, Stride: []int{4, 4}}},
		{"short rgba", &VideoFrame{Width: 2, Height: 2, Format: PixelFormatRGBA32,
			Data: [][]byte{make([]byte, 12)}, Stride: []int{8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.frame.ToI420(0)
			if !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("ToI420() error = %v, want ErrInvalidFrame", err)
			}
		})
	}
}

func TestI420FromBuffer(t *testing.T) {
	buf := make([]byte, I420Size(4, 2))
	f, err := i420FromBuffer(buf, 4, 2)
	if err != nil {
		t.Fatalf("i420FromBuffer() error = %v", err)
	}
	f.Data[0][0] = 7
	if buf[0] != 7 {
		t.Error("i420FromBuffer copied the buffer")
	}

	if _, err := i420FromBuffer(buf[:5], 4, 2); err == nil {
		t.Error("short buffer accepted")
	}
	if _, err := i420FromBuffer(buf, 0, 2); err == nil {
		t.Error("zero width accepted")
	}
}

func TestRGBToYUV_Black(t *testing.T) {
	y, u, v := rgbToYUV(0, 0, 0)
	if y != blackLuma || u != blackChroma || v != blackChroma {
		t.Errorf("rgbToYUV(0,0,0) = %d,%d,%d, want 16,128,128", y, u, v)
	}
}

func BenchmarkVideoFrame_ToI420(b *testing.B) {
	src := NewI420Frame(640, 480)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = src.ToI420(400)
	}
}
