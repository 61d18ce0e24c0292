package jt1078

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// FrameMarker opens every record.
const FrameMarker uint32 = 0x30316364

// Version is the protocol revision a stream is parsed with.
type Version int

// Known versions. The values are the revision years.
const (
	V0    Version = 0
	V2016 Version = 2016
	V2019 Version = 2019
)

// Valid reports whether v is a known version tag.
func (v Version) Valid() bool {
	return v == V0 || v == V2016 || v == V2019
}

// SIMSize returns the SIM number length for v, 0 for an unknown tag.
func (v Version) SIMSize() int {
	switch v {
	case V0, V2016:
		return 6
	case V2019:
		return 10
	default:
		return 0
	}
}

func (v Version) String() string {
	switch v {
	case V0:
		return "V0"
	case V2016:
		return "V2016"
	case V2019:
		return "V2019"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

// ParseVersion accepts "V0", "V2016", "V2019" or the bare numbers, case
// insensitively.
func ParseVersion(s string) (Version, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "V") {
	case "0":
		return V0, nil
	case "2016":
		return V2016, nil
	case "2019":
		return V2019, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
}

// DataType classifies the record body.
type DataType uint8

const (
	DataTypeVideoI DataType = iota
	DataTypeVideoP
	DataTypeVideoB
	DataTypeAudio
	DataTypePassthrough
	DataTypeUnsupported
)

func (d DataType) String() string {
	switch d {
	case DataTypeVideoI:
		return "video-i"
	case DataTypeVideoP:
		return "video-p"
	case DataTypeVideoB:
		return "video-b"
	case DataTypeAudio:
		return "audio"
	case DataTypePassthrough:
		return "passthrough"
	default:
		return "unsupported"
	}
}

// IsVideo reports whether the record carries a video frame.
func (d DataType) IsVideo() bool {
	return d <= DataTypeVideoB
}

func classifyDataType(code uint8) DataType {
	if code <= uint8(DataTypePassthrough) {
		return DataType(code)
	}
	return DataTypeUnsupported
}

// SubMark is the role of a record within a fragmented frame. The values
// are the wire codes.
type SubMark uint8

const (
	SubMarkAtomic SubMark = iota
	SubMarkFirst
	SubMarkLast
	SubMarkIntermediate
	SubMarkUnsupported
)

func (s SubMark) String() string {
	switch s {
	case SubMarkAtomic:
		return "atomic"
	case SubMarkFirst:
		return "first"
	case SubMarkLast:
		return "last"
	case SubMarkIntermediate:
		return "intermediate"
	default:
		return "unsupported"
	}
}

func classifySubMark(code uint8) SubMark {
	if code <= uint8(SubMarkIntermediate) {
		return SubMark(code)
	}
	return SubMarkUnsupported
}

// Header is a decoded record header.
type Header struct {
	Version Version

	// RTPVersion, Padding, Extension and CSRCCount come from byte 4.
	RTPVersion uint8
	Padding    bool
	Extension  bool
	CSRCCount  uint8

	// Marker and PayloadType come from byte 5.
	Marker      bool
	PayloadType uint8

	Sequence uint16
	// SIM holds the raw BCD bytes, 6 or 10 depending on Version.
	SIM     []byte
	Channel uint8

	DataTypeCode uint8
	SubMarkCode  uint8

	Timestamp          uint64
	LastIFrameInterval uint16
	LastFrameInterval  uint16
	BodyLength         uint16
}

// Header encoding errors.
var (
	ErrInvalidVersion = errors.New("unknown jt1078 version")
	ErrInvalidSIM     = errors.New("sim number length does not match version")
	ErrFieldRange     = errors.New("header field out of range")
)

// FixedSize is the length of the fields common to every record: marker
// through the data type byte.
func FixedSize(v Version) int {
	return 10 + v.SIMSize()
}

// hasTimestamp reports whether records of this data type code carry the
// 8-byte timestamp.
func hasTimestamp(code uint8) bool {
	return code != uint8(DataTypePassthrough)
}

// hasIntervals reports whether records of this data type code carry the
// two frame interval fields.
func hasIntervals(code uint8) bool {
	return classifyDataType(code).IsVideo()
}

// HeaderSize returns the full header length, up to and including the body
// length field, for a record of the given data type code.
func HeaderSize(v Version, dataTypeCode uint8) int {
	n := FixedSize(v)
	if hasTimestamp(dataTypeCode) {
		n += 8
	}
	if hasIntervals(dataTypeCode) {
		n += 4
	}
	return n + 2
}

// Size returns the encoded header length.
func (h *Header) Size() int {
	return HeaderSize(h.Version, h.DataTypeCode)
}

// MarshalBinary encodes the header through the body length field.
func (h *Header) MarshalBinary() ([]byte, error) {
	if !h.Version.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, int(h.Version))
	}
	if len(h.SIM) != h.Version.SIMSize() {
		return nil, fmt.Errorf("%w: %d bytes for %s", ErrInvalidSIM, len(h.SIM), h.Version)
	}
	if h.RTPVersion > 3 || h.CSRCCount > 15 || h.PayloadType > 127 ||
		h.DataTypeCode > 15 || h.SubMarkCode > 15 {
		return nil, ErrFieldRange
	}

	buf := make([]byte, h.Size())
	binary.BigEndian.PutUint32(buf[0:], FrameMarker)

	b4 := h.RTPVersion<<6 | h.CSRCCount
	if h.Padding {
		b4 |= 1 << 5
	}
	if h.Extension {
		b4 |= 1 << 4
	}
	buf[4] = b4

	b5 := h.PayloadType
	if h.Marker {
		b5 |= 1 << 7
	}
	buf[5] = b5

	binary.BigEndian.PutUint16(buf[6:], h.Sequence)
	off := 8 + copy(buf[8:], h.SIM)
	buf[off] = h.Channel
	buf[off+1] = h.DataTypeCode<<4 | h.SubMarkCode
	off += 2

	if hasTimestamp(h.DataTypeCode) {
		binary.BigEndian.PutUint64(buf[off:], h.Timestamp)
		off += 8
	}
	if hasIntervals(h.DataTypeCode) {
		binary.BigEndian.PutUint16(buf[off:], h.LastIFrameInterval)
		binary.BigEndian.PutUint16(buf[off+2:], h.LastFrameInterval)
		off += 4
	}
	binary.BigEndian.PutUint16(buf[off:], h.BodyLength)
	return buf, nil
}

// decodeHeader decodes the header at the start of data. ok is false when
// data is too short or the marker does not match.
func decodeHeader(data []byte, v Version) (h Header, size int, ok bool) {
	fixed := FixedSize(v)
	if !v.Valid() || len(data) < fixed {
		return h, 0, false
	}
	if binary.BigEndian.Uint32(data[0:]) != FrameMarker {
		return h, 0, false
	}

	h.Version = v
	h.RTPVersion = data[4] >> 6
	h.Padding = data[4]>>5&0x01 != 0
	h.Extension = data[4]>>4&0x01 != 0
	h.CSRCCount = data[4] & 0x0f
	h.Marker = data[5]>>7 != 0
	h.PayloadType = data[5] & 0x7f
	h.Sequence = binary.BigEndian.Uint16(data[6:])

	simEnd := 8 + v.SIMSize()
	h.SIM = data[8:simEnd]
	h.Channel = data[simEnd]
	h.DataTypeCode = data[simEnd+1] >> 4
	h.SubMarkCode = data[simEnd+1] & 0x0f

	size = HeaderSize(v, h.DataTypeCode)
	if len(data) < size {
		return h, 0, false
	}

	off := fixed
	if hasTimestamp(h.DataTypeCode) {
		h.Timestamp = binary.BigEndian.Uint64(data[off:])
		off += 8
	}
	if hasIntervals(h.DataTypeCode) {
		h.LastIFrameInterval = binary.BigEndian.Uint16(data[off:])
		h.LastFrameInterval = binary.BigEndian.Uint16(data[off+2:])
		off += 4
	}
	h.BodyLength = binary.BigEndian.Uint16(data[off:])
	return h, size, true
}
