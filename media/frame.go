// Package media defines the frame and track types shared by the playback
// scheduler, the RTP encoders and the JT/T 1078 ingest path.
//
// Timestamps are expressed in milliseconds of the track time base. Encoders
// that need a different RTP clock apply their own rescale factor.
package media

import "fmt"

// Codec identifies the elementary stream format carried by a frame.
type Codec string

// Known codecs. The string values match the names used in configuration files
// and in the JT/T 1078 payload type table.
const (
	CodecUnknown Codec = ""
	CodecH264    Codec = "H264"
	CodecH265    Codec = "H265"
	CodecAAC     Codec = "AAC"
	CodecG711A   Codec = "G711A"
	CodecG711U   Codec = "G711U"
	CodecG726    Codec = "G726"
	CodecADPCMA  Codec = "ADPCMA"
	CodecOpus    Codec = "OPUS"
)

// IsVideo reports whether the codec carries video.
func (c Codec) IsVideo() bool {
	return c == CodecH264 || c == CodecH265
}

// TrackType is the media kind of a track.
type TrackType string

const (
	TrackVideo TrackType = "video"
	TrackAudio TrackType = "audio"
	TrackData  TrackType = "data"
)

// FrameFlags carries per-frame markers set by the frame source.
type FrameFlags uint8

const (
	// FlagKeyStart marks the first frame of a random access unit.
	FlagKeyStart FrameFlags = 1 << iota
	// FlagMeta marks parameter-set or other non-picture data
	// (VPS/SPS/PPS, SEI). Meta frames never signal a timestamp discontinuity.
	FlagMeta
)

// Frame is one unit of coded media as yielded by a frame source.
//
// Data holds the complete unit including any start-code or length prefix;
// StartSize is the length of that prefix. Payload returns the bytes after it.
// A Frame is owned by whoever holds it in a buffer and is only borrowed by an
// encoder for the duration of a single Encode call.
type Frame struct {
	Data       []byte
	StartSize  int
	DTS        uint64
	PTS        uint64
	Flags      FrameFlags
	Codec      Codec
	TrackIndex int
}

// Payload returns the frame bytes following the start-code prefix.
func (f *Frame) Payload() []byte {
	if f.StartSize <= 0 || f.StartSize > len(f.Data) {
		return f.Data
	}
	return f.Data[f.StartSize:]
}

// Size returns the length of the payload (excluding the start-code prefix).
func (f *Frame) Size() int {
	return len(f.Payload())
}

// IsKeyStart reports whether the frame begins a random access unit.
func (f *Frame) IsKeyStart() bool {
	return f.Flags&FlagKeyStart != 0
}

// IsMeta reports whether the frame carries parameter sets or other metadata.
func (f *Frame) IsMeta() bool {
	return f.Flags&FlagMeta != 0
}

func (f *Frame) String() string {
	return fmt.Sprintf("frame{codec=%s track=%d dts=%d pts=%d size=%d key=%t meta=%t}",
		f.Codec, f.TrackIndex, f.DTS, f.PTS, f.Size(), f.IsKeyStart(), f.IsMeta())
}

// TrackInfo describes one elementary stream exposed by a frame source.
type TrackInfo struct {
	Index       int
	Type        TrackType
	Codec       Codec
	ClockRate   uint32
	PayloadType uint8
	// Duration of the track in milliseconds, 0 when unknown or live.
	Duration uint64
}
