package videoengine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// CodecsFromMediaDescription extracts the video codecs a peer declared in an
// SDP media section, in the peer's preference order. Only rtpmap entries
// with a 90 kHz clock are returned.
func CodecsFromMediaDescription(md *sdp.MediaDescription) []VideoCodecSpec {
	if md == nil || md.MediaName.Media != "video" {
		return nil
	}

	rtpmap := make(map[int]string)
	for _, attr := range md.Attributes {
		if attr.Key != "rtpmap" {
			continue
		}
		pt, name, ok := parseRTPMap(attr.Value)
		if ok {
			rtpmap[pt] = name
		}
	}

	var codecs []VideoCodecSpec
	for i, f := range md.MediaName.Formats {
		pt, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		name, ok := rtpmap[pt]
		if !ok {
			continue
		}
		codecs = append(codecs, VideoCodecSpec{
			ID:         pt,
			Name:       name,
			Preference: len(md.MediaName.Formats) - i,
		})
	}
	return codecs
}

// ParseRemoteVideoCodecs parses a session description and returns the codecs
// of its first video section.
func ParseRemoteVideoCodecs(raw []byte) ([]VideoCodecSpec, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal(raw); err != nil {
		return nil, fmt.Errorf("failed to parse session description: %w", err)
	}
	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media == "video" {
			return CodecsFromMediaDescription(md), nil
		}
	}
	return nil, fmt.Errorf("%w: no video section", ErrConfiguration)
}

// parseRTPMap parses "<pt> <name>/<clock>[/<params>]".
func parseRTPMap(value string) (int, string, bool) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return 0, "", false
	}
	pt, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", false
	}
	parts := strings.Split(fields[1], "/")
	if len(parts) < 2 {
		return 0, "", false
	}
	if clock, err := strconv.Atoi(parts[1]); err != nil || clock != videoClockRate {
		return 0, "", false
	}
	return pt, parts[0], true
}
