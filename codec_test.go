package videoengine

import (
	"testing"
	"time"
)

func TestVideoCodecSpec_Matches(t *testing.T) {
	tests := []struct {
		name string
		a, b VideoCodecSpec
		want bool
	}{
		{"dynamic by name", VideoCodecSpec{ID: 100, Name: "VP8"}, VideoCodecSpec{ID: 120, Name: "vp8"}, true},
		{"dynamic different name", VideoCodecSpec{ID: 100, Name: "VP8"}, VideoCodecSpec{ID: 100, Name: "H264"}, false},
		{"static by id", VideoCodecSpec{ID: 34, Name: "H263"}, VideoCodecSpec{ID: 34, Name: "other"}, true},
		{"static different id", VideoCodecSpec{ID: 34, Name: "H263"}, VideoCodecSpec{ID: 31, Name: "H263"}, false},
		{"boundary is static", VideoCodecSpec{ID: 95, Name: "X"}, VideoCodecSpec{ID: 96, Name: "X"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Matches(tt.b); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideoCodecSpec_MimeType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"VP8", "video/VP8"},
		{"vp9", "video/VP9"},
		{"H264", "video/H264"},
		{"AV1", "video/AV1"},
		{"RED", MimeTypeRED},
		{"ulpfec", MimeTypeULPFEC},
		{"THEORA", "video/THEORA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (VideoCodecSpec{Name: tt.name}).MimeType(); got != tt.want {
				t.Errorf("MimeType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVideoCodecSpec_IsCompanion(t *testing.T) {
	for name, want := range map[string]bool{"VP8": false, "RED": true, "red": true, "ULPFEC": true} {
		if got := (VideoCodecSpec{Name: name}).IsCompanion(); got != want {
			t.Errorf("IsCompanion(%s) = %v, want %v", name, got, want)
		}
	}
}

func TestFPSToInterval(t *testing.T) {
	tests := []struct {
		fps  int
		want time.Duration
	}{
		{30, time.Second / 30},
		{1, time.Second},
		{0, 0},
		{-5, 0},
	}
	for _, tt := range tests {
		if got := FPSToInterval(tt.fps); got != tt.want {
			t.Errorf("FPSToInterval(%d) = %v, want %v", tt.fps, got, tt.want)
		}
	}
}

func TestVideoFormat_Framerate(t *testing.T) {
	for _, fps := range []int{1, 7, 15, 24, 25, 30, 60} {
		if got := NewVideoFormat(640, 400, fps, PixelFormatAny).Framerate(); got != fps {
			t.Errorf("Framerate() = %d, want %d", got, fps)
		}
	}
	if got := (VideoFormat{}).Framerate(); got != 0 {
		t.Errorf("zero format Framerate() = %d, want 0", got)
	}
}

func TestVideoFormat_String(t *testing.T) {
	if got := NewVideoFormat(640, 400, 30, PixelFormatI420).String(); got != "I420:640x400x30" {
		t.Errorf("String() = %q", got)
	}
}

func TestDefaultVideoCodec(t *testing.T) {
	c := DefaultVideoCodec()
	if c.ID != 100 || c.Name != "VP8" || c.Width != 640 || c.Height != 400 || c.Framerate != 30 {
		t.Errorf("DefaultVideoCodec() = %v", c)
	}
}
