package videoengine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"
)

// CodecCatalog holds the static codec preference table, the supported
// format ladder and the codec list derived from the current default codec.
type CodecCatalog struct {
	prefs   []CodecPreference
	formats []VideoFormat

	mu     sync.RWMutex
	codecs []VideoCodecSpec
}

// NewCodecCatalog creates a catalog over the built-in preference table and
// format ladder. The codec list is empty until RebuildCodecList succeeds.
func NewCodecCatalog() *CodecCatalog {
	return NewCodecCatalogWith(DefaultCodecPreferences, DefaultVideoFormats)
}

// NewCodecCatalogWith creates a catalog over a custom table and ladder.
func NewCodecCatalogWith(prefs []CodecPreference, formats []VideoFormat) *CodecCatalog {
	c := &CodecCatalog{
		prefs:   make([]CodecPreference, len(prefs)),
		formats: make([]VideoFormat, len(formats)),
	}
	copy(c.prefs, prefs)
	copy(c.formats, formats)
	return c
}

// Preferences returns a copy of the preference table.
func (c *CodecCatalog) Preferences() []CodecPreference {
	out := make([]CodecPreference, len(c.prefs))
	copy(out, c.prefs)
	return out
}

// Formats returns a copy of the supported format ladder.
func (c *CodecCatalog) Formats() []VideoFormat {
	out := make([]VideoFormat, len(c.formats))
	copy(out, c.formats)
	return out
}

// FindCodec reports whether codec could be received: its resolution must be
// unset or exactly one of the ladder entries, and its name must appear in
// the preference table.
func (c *CodecCatalog) FindCodec(codec VideoCodecSpec) bool {
	for _, f := range c.formats {
		if (codec.Width == 0 && codec.Height == 0) || (f.Width == codec.Width && f.Height == codec.Height) {
			for _, p := range c.prefs {
				if (VideoCodecSpec{ID: p.PayloadType, Name: p.Name}).Matches(codec) {
					return true
				}
			}
		}
	}
	return false
}

// RebuildCodecList replaces the codec list with the entries of the preference
// table starting at maxCodec's name, all pinned to maxCodec's resolution and
// frame rate. The list is left untouched on failure.
func (c *CodecCatalog) RebuildCodecList(maxCodec VideoCodecSpec) ([]VideoCodecSpec, error) {
	if !c.FindCodec(maxCodec) {
		return nil, fmt.Errorf("%w: %s %dx%d", ErrNoMatchingCodec, maxCodec.Name, maxCodec.Width, maxCodec.Height)
	}

	var codecs []VideoCodecSpec
	found := false
	for i, p := range c.prefs {
		if !found {
			found = maxCodec.Name == p.Name
		}
		if found {
			codecs = append(codecs, VideoCodecSpec{
				ID:         p.PayloadType,
				Name:       p.Name,
				Width:      maxCodec.Width,
				Height:     maxCodec.Height,
				Framerate:  maxCodec.Framerate,
				Preference: len(c.prefs) - i,
			})
		}
	}
	// FindCodec matches case-insensitively; the table walk does not.
	if len(codecs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatchingCodec, maxCodec.Name)
	}

	c.mu.Lock()
	c.codecs = codecs
	c.mu.Unlock()

	return c.Codecs(), nil
}

// Codecs returns a copy of the current codec list, most preferred first.
func (c *CodecCatalog) Codecs() []VideoCodecSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]VideoCodecSpec, len(c.codecs))
	copy(out, c.codecs)
	return out
}

// Negotiate keeps the remote codecs the catalog can receive, in remote order.
func (c *CodecCatalog) Negotiate(remote []VideoCodecSpec) []VideoCodecSpec {
	var out []VideoCodecSpec
	for _, codec := range remote {
		if c.FindCodec(codec) {
			out = append(out, codec)
		}
	}
	return out
}

// RTPCodecParameters maps the current codec list to pion codec parameters.
// Picture codecs advertise NACK, PLI and FIR feedback.
func (c *CodecCatalog) RTPCodecParameters() []webrtc.RTPCodecParameters {
	codecs := c.Codecs()
	params := make([]webrtc.RTPCodecParameters, 0, len(codecs))
	for _, codec := range codecs {
		var feedback []webrtc.RTCPFeedback
		if !codec.IsCompanion() {
			feedback = []webrtc.RTCPFeedback{
				{Type: webrtc.TypeRTCPFBNACK},
				{Type: webrtc.TypeRTCPFBNACK, Parameter: "pli"},
				{Type: webrtc.TypeRTCPFBCCM, Parameter: "fir"},
			}
		}
		params = append(params, webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     codec.MimeType(),
				ClockRate:    codec.ClockRate(),
				RTCPFeedback: feedback,
			},
			PayloadType: webrtc.PayloadType(codec.ID),
		})
	}
	return params
}

// RegisterCodecs registers the current codec list with a pion MediaEngine.
func (c *CodecCatalog) RegisterCodecs(m *webrtc.MediaEngine) error {
	for _, p := range c.RTPCodecParameters() {
		if err := m.RegisterCodec(p, webrtc.RTPCodecTypeVideo); err != nil {
			return fmt.Errorf("failed to register codec %s: %w", p.MimeType, err)
		}
	}
	return nil
}

// CodecFromMimeType returns the catalog codec whose MIME type matches.
func (c *CodecCatalog) CodecFromMimeType(mimeType string) (VideoCodecSpec, bool) {
	for _, codec := range c.Codecs() {
		if strings.EqualFold(codec.MimeType(), mimeType) {
			return codec, true
		}
	}
	return VideoCodecSpec{}, false
}
