package jt1078

import "github.com/maxenergy/MediaServer/media"

// PayloadInfo describes a JT/T 1078 payload type.
type PayloadInfo struct {
	Name      string
	Codec     media.Codec
	Track     media.TrackType
	ClockRate uint32
}

// Payload type codes from the JT/T 1078 audio/video encoding table. Codecs
// with no media.Codec counterpart carry CodecUnknown.
var payloadTypes = map[uint8]PayloadInfo{
	1:  {Name: "G.721", Track: media.TrackAudio, ClockRate: 8000},
	2:  {Name: "G.722", Track: media.TrackAudio, ClockRate: 16000},
	3:  {Name: "G.723", Track: media.TrackAudio, ClockRate: 8000},
	4:  {Name: "G.728", Track: media.TrackAudio, ClockRate: 8000},
	5:  {Name: "G.729", Track: media.TrackAudio, ClockRate: 8000},
	6:  {Name: "G.711A", Codec: media.CodecG711A, Track: media.TrackAudio, ClockRate: 8000},
	7:  {Name: "G.711U", Codec: media.CodecG711U, Track: media.TrackAudio, ClockRate: 8000},
	8:  {Name: "G.726", Codec: media.CodecG726, Track: media.TrackAudio, ClockRate: 8000},
	9:  {Name: "G.729A", Track: media.TrackAudio, ClockRate: 8000},
	19: {Name: "AAC", Codec: media.CodecAAC, Track: media.TrackAudio, ClockRate: 8000},
	25: {Name: "MP3", Track: media.TrackAudio, ClockRate: 44100},
	26: {Name: "ADPCMA", Codec: media.CodecADPCMA, Track: media.TrackAudio, ClockRate: 8000},
	91: {Name: "transparent", Track: media.TrackData},
	98: {Name: "H.264", Codec: media.CodecH264, Track: media.TrackVideo, ClockRate: 90000},
	99: {Name: "H.265", Codec: media.CodecH265, Track: media.TrackVideo, ClockRate: 90000},
}

// LookupPayloadType returns the description of pt.
func LookupPayloadType(pt uint8) (PayloadInfo, bool) {
	info, ok := payloadTypes[pt]
	return info, ok
}

// PayloadTypeFor returns the payload type code for codec.
func PayloadTypeFor(codec media.Codec) (uint8, bool) {
	if codec == media.CodecUnknown {
		return 0, false
	}
	for pt, info := range payloadTypes {
		if info.Codec == codec {
			return pt, true
		}
	}
	return 0, false
}
