package videoengine

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecCatalog_RebuildCodecList(t *testing.T) {
	c := NewCodecCatalog()
	assert.Empty(t, c.Codecs())

	codecs, err := c.RebuildCodecList(VideoCodecSpec{ID: 100, Name: "VP8", Width: 640, Height: 400, Framerate: 30})
	require.NoError(t, err)

	want := []VideoCodecSpec{
		{ID: 100, Name: "VP8", Width: 640, Height: 400, Framerate: 30, Preference: 3},
		{ID: 101, Name: "RED", Width: 640, Height: 400, Framerate: 30, Preference: 2},
		{ID: 102, Name: "ULPFEC", Width: 640, Height: 400, Framerate: 30, Preference: 1},
	}
	assert.Equal(t, want, codecs)
	assert.Equal(t, want, c.Codecs())
}

func TestCodecCatalog_RebuildFromMiddleOfTable(t *testing.T) {
	c := NewCodecCatalog()
	codecs, err := c.RebuildCodecList(VideoCodecSpec{ID: 101, Name: "RED", Width: 320, Height: 200, Framerate: 15})
	require.NoError(t, err)
	require.Len(t, codecs, 2)
	assert.Equal(t, "RED", codecs[0].Name)
	assert.Equal(t, 2, codecs[0].Preference)
	assert.Equal(t, 320, codecs[1].Width)
	assert.Equal(t, 15, codecs[1].Framerate)
}

func TestCodecCatalog_RebuildUnknownKeepsList(t *testing.T) {
	c := NewCodecCatalog()
	before, err := c.RebuildCodecList(DefaultVideoCodec())
	require.NoError(t, err)

	tests := []struct {
		name  string
		codec VideoCodecSpec
	}{
		{"unknown name", VideoCodecSpec{ID: 120, Name: "H264", Width: 640, Height: 400}},
		{"unsupported resolution", VideoCodecSpec{ID: 100, Name: "VP8", Width: 1920, Height: 1080}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.RebuildCodecList(tt.codec)
			assert.ErrorIs(t, err, ErrNoMatchingCodec)
			assert.ErrorIs(t, err, ErrConfiguration)
			assert.Equal(t, before, c.Codecs())
		})
	}
}

func TestCodecCatalog_FindCodec(t *testing.T) {
	c := NewCodecCatalog()
	tests := []struct {
		name  string
		codec VideoCodecSpec
		want  bool
	}{
		{"name only", VideoCodecSpec{ID: 100, Name: "VP8"}, true},
		{"case insensitive", VideoCodecSpec{ID: 120, Name: "vp8"}, true},
		{"ladder resolution", VideoCodecSpec{ID: 100, Name: "VP8", Width: 160, Height: 100}, true},
		{"off ladder", VideoCodecSpec{ID: 100, Name: "VP8", Width: 640, Height: 480}, false},
		{"unknown codec", VideoCodecSpec{ID: 120, Name: "H264"}, false},
		{"companion", VideoCodecSpec{ID: 116, Name: "red"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.FindCodec(tt.codec))
		})
	}
}

func TestCodecCatalog_Negotiate(t *testing.T) {
	c := NewCodecCatalog()
	remote := []VideoCodecSpec{
		{ID: 96, Name: "H264"},
		{ID: 97, Name: "VP8"},
		{ID: 98, Name: "ulpfec"},
	}
	got := c.Negotiate(remote)
	require.Len(t, got, 2)
	assert.Equal(t, 97, got[0].ID)
	assert.Equal(t, 98, got[1].ID)
}

func TestCodecCatalog_RTPCodecParameters(t *testing.T) {
	c := NewCodecCatalog()
	_, err := c.RebuildCodecList(DefaultVideoCodec())
	require.NoError(t, err)

	params := c.RTPCodecParameters()
	require.Len(t, params, 3)
	assert.Equal(t, webrtc.MimeTypeVP8, params[0].MimeType)
	assert.Equal(t, webrtc.PayloadType(100), params[0].PayloadType)
	assert.Equal(t, uint32(90000), params[0].ClockRate)
	assert.Len(t, params[0].RTCPFeedback, 3)
	assert.Equal(t, MimeTypeRED, params[1].MimeType)
	assert.Empty(t, params[1].RTCPFeedback)

	m := &webrtc.MediaEngine{}
	require.NoError(t, c.RegisterCodecs(m))
}

func TestCodecCatalog_CodecFromMimeType(t *testing.T) {
	c := NewCodecCatalog()
	_, err := c.RebuildCodecList(DefaultVideoCodec())
	require.NoError(t, err)

	codec, ok := c.CodecFromMimeType("video/VP8")
	require.True(t, ok)
	assert.Equal(t, 100, codec.ID)

	_, ok = c.CodecFromMimeType(webrtc.MimeTypeH264)
	assert.False(t, ok)
}

func TestCodecCatalog_CopiesAreIndependent(t *testing.T) {
	c := NewCodecCatalog()
	_, err := c.RebuildCodecList(DefaultVideoCodec())
	require.NoError(t, err)

	codecs := c.Codecs()
	codecs[0].Name = "mutated"
	assert.Equal(t, "VP8", c.Codecs()[0].Name)

	prefs := c.Preferences()
	prefs[0].Name = "mutated"
	assert.Equal(t, "VP8", c.Preferences()[0].Name)

	formats := c.Formats()
	formats[0].Width = 1
	assert.Equal(t, 1280, c.Formats()[0].Width)
}
