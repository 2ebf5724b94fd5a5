package videoengine

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// Bitrate bounds and RTP defaults applied to every send codec.
const (
	MinVideoBitrateKbps   = 300
	MaxVideoBitrateKbps   = 2000
	DefaultTemporalLayers = 3
	VideoRTPBufferSize    = 65536
)

// Codec names known to the catalog.
const (
	CodecNameVP8    = "VP8"
	CodecNameRED    = "RED"
	CodecNameULPFEC = "ULPFEC"
)

// Payload types of the redundancy and error-correction companions.
const (
	REDPayloadType = 101
	FECPayloadType = 102
)

// MIME types for the companion payloads. pion only ships constants for
// the primary codecs.
const (
	MimeTypeRED    = "video/red"
	MimeTypeULPFEC = "video/ulpfec"
)

const videoClockRate = 90000

// RTP payload types at or below this value are statically assigned (RFC 3551)
// and matched by number; dynamic ones are matched by name.
const maxStaticPayloadType = 95

// VideoCodecSpec describes a codec as negotiated with the session layer.
// Zero Width/Height/Framerate mean "unspecified".
type VideoCodecSpec struct {
	ID         int    // RTP payload type
	Name       string // e.g. "VP8"
	Width      int
	Height     int
	Framerate  int
	Preference int // higher is preferred
}

// Matches reports whether other names the same codec.
func (c VideoCodecSpec) Matches(other VideoCodecSpec) bool {
	if c.ID <= maxStaticPayloadType {
		return c.ID == other.ID
	}
	return strings.EqualFold(c.Name, other.Name)
}

// MimeType returns the MIME type for this codec.
func (c VideoCodecSpec) MimeType() string {
	switch strings.ToUpper(c.Name) {
	case CodecNameVP8:
		return webrtc.MimeTypeVP8
	case "VP9":
		return webrtc.MimeTypeVP9
	case "H264":
		return webrtc.MimeTypeH264
	case "AV1":
		return webrtc.MimeTypeAV1
	case CodecNameRED:
		return MimeTypeRED
	case CodecNameULPFEC:
		return MimeTypeULPFEC
	default:
		return "video/" + c.Name
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c VideoCodecSpec) ClockRate() uint32 {
	return videoClockRate
}

// IsCompanion reports whether the codec is a redundancy or error-correction
// payload rather than a picture codec.
func (c VideoCodecSpec) IsCompanion() bool {
	return strings.EqualFold(c.Name, CodecNameRED) || strings.EqualFold(c.Name, CodecNameULPFEC)
}

func (c VideoCodecSpec) String() string {
	return fmt.Sprintf("%s/%d %dx%d@%d pref=%d", c.Name, c.ID, c.Width, c.Height, c.Framerate, c.Preference)
}

// CodecPreference is one ranked entry of the codec preference table.
// Rank 0 is the most preferred.
type CodecPreference struct {
	Name        string
	PayloadType int
	Rank        int
}

// DefaultCodecPreferences is the built-in preference table.
var DefaultCodecPreferences = []CodecPreference{
	{Name: CodecNameVP8, PayloadType: 100, Rank: 0},
	{Name: CodecNameRED, PayloadType: REDPayloadType, Rank: 1},
	{Name: CodecNameULPFEC, PayloadType: FECPayloadType, Rank: 2},
}

// VideoFormat is a capture or codec format. Interval is the frame interval.
type VideoFormat struct {
	Width    int
	Height   int
	Interval time.Duration
	Format   PixelFormat
}

// FPSToInterval converts frames per second to a frame interval.
func FPSToInterval(fps int) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Second / time.Duration(fps)
}

// NewVideoFormat returns a format at the given size and frame rate.
func NewVideoFormat(width, height, fps int, format PixelFormat) VideoFormat {
	return VideoFormat{Width: width, Height: height, Interval: FPSToInterval(fps), Format: format}
}

// Framerate returns the format's frame rate, rounded to the nearest integer.
func (f VideoFormat) Framerate() int {
	if f.Interval <= 0 {
		return 0
	}
	return int((time.Second + f.Interval/2) / f.Interval)
}

// IsZero reports whether the format is unset.
func (f VideoFormat) IsZero() bool {
	return f.Width == 0 && f.Height == 0
}

func (f VideoFormat) String() string {
	return fmt.Sprintf("%s:%dx%dx%d", f.Format, f.Width, f.Height, f.Framerate())
}

// DefaultVideoFormats is the ladder of supported resolutions, largest first.
var DefaultVideoFormats = []VideoFormat{
	NewVideoFormat(1280, 800, 30, PixelFormatAny),
	NewVideoFormat(960, 600, 30, PixelFormatAny),
	NewVideoFormat(640, 400, 30, PixelFormatAny),
	NewVideoFormat(480, 300, 30, PixelFormatAny),
	NewVideoFormat(320, 200, 30, PixelFormatAny),
	NewVideoFormat(240, 150, 30, PixelFormatAny),
	NewVideoFormat(160, 100, 30, PixelFormatAny),
}

// DefaultVideoFormat is the startup default codec format. Captured frames
// are cropped to its aspect ratio.
var DefaultVideoFormat = NewVideoFormat(640, 400, 30, PixelFormatAny)

// DefaultVideoCodec returns the codec the engine is configured with at startup.
func DefaultVideoCodec() VideoCodecSpec {
	return VideoCodecSpec{
		ID:        DefaultCodecPreferences[0].PayloadType,
		Name:      DefaultCodecPreferences[0].Name,
		Width:     DefaultVideoFormat.Width,
		Height:    DefaultVideoFormat.Height,
		Framerate: DefaultVideoFormat.Framerate(),
	}
}
