package jt1078

import (
	"encoding/hex"
	"fmt"

	"github.com/maxenergy/MediaServer/media"
)

// Packet is a typed, zero-copy view of one record.
type Packet struct {
	header     Header
	dataType   DataType
	subMark    SubMark
	raw        []byte
	payloadOff int
	payloadLen int
}

// Parse decodes a record. It never fails: a record that is too short,
// lacks the frame marker, declares more body than it holds or is parsed
// with an unknown version is classified DataTypeUnsupported and
// SubMarkUnsupported. The payload of any record that is not Supported is
// empty.
func Parse(data []byte, v Version) *Packet {
	p := &Packet{
		dataType: DataTypeUnsupported,
		subMark:  SubMarkUnsupported,
		raw:      data,
	}

	h, size, ok := decodeHeader(data, v)
	if !ok {
		return p
	}
	body := int(h.BodyLength)
	if len(data) < size+body {
		return p
	}

	payloadLen := body
	if h.Padding && body > 0 {
		pad := int(data[size+body-1])
		if pad == 0 || pad > body {
			return p
		}
		payloadLen -= pad
	}

	p.header = h
	p.dataType = classifyDataType(h.DataTypeCode)
	p.subMark = classifySubMark(h.SubMarkCode)
	p.raw = data[:size+body]
	p.payloadOff = size
	if p.Supported() {
		p.payloadLen = payloadLen
	}
	return p
}

// Supported reports whether both classification fields are known.
func (p *Packet) Supported() bool {
	return p.dataType != DataTypeUnsupported && p.subMark != SubMarkUnsupported
}

// Header returns the decoded header.
func (p *Packet) Header() Header { return p.header }

// DataType returns the body classification.
func (p *Packet) DataType() DataType { return p.dataType }

// SubMark returns the record's role in a fragmented frame.
func (p *Packet) SubMark() SubMark { return p.subMark }

// Raw returns the record bytes, trimmed to the declared length when the
// record parsed.
func (p *Packet) Raw() []byte { return p.raw }

// Size returns the record length.
func (p *Packet) Size() int { return len(p.raw) }

// PayloadOffset returns the offset of the body within the record. The CC
// and X bits are not honored: devices write CC=1 without any CSRC words, so
// the body always follows the fixed header layout of the version.
func (p *Packet) PayloadOffset() int { return p.payloadOff }

// PayloadLen returns the body length excluding padding.
func (p *Packet) PayloadLen() int { return p.payloadLen }

// Payload returns the body, aliasing the record bytes.
func (p *Packet) Payload() []byte {
	if p.payloadLen == 0 {
		return nil
	}
	return p.raw[p.payloadOff : p.payloadOff+p.payloadLen]
}

// Timestamp returns the raw record timestamp in milliseconds, 0 for
// transparent data.
func (p *Packet) Timestamp() uint64 { return p.header.Timestamp }

// Sequence returns the record sequence number.
func (p *Packet) Sequence() uint16 { return p.header.Sequence }

// Channel returns the logical channel number.
func (p *Packet) Channel() uint8 { return p.header.Channel }

// Marker returns the M bit.
func (p *Packet) Marker() bool { return p.header.Marker }

// PayloadType returns the 7-bit payload type code.
func (p *Packet) PayloadType() uint8 { return p.header.PayloadType }

// Version returns the version the record was parsed with.
func (p *Packet) Version() Version { return p.header.Version }

// SIM renders the BCD SIM number as a digit string.
func (p *Packet) SIM() string {
	return hex.EncodeToString(p.header.SIM)
}

// StartsKeyUnit reports whether the record opens an I frame.
func (p *Packet) StartsKeyUnit() bool {
	return p.dataType == DataTypeVideoI &&
		(p.subMark == SubMarkAtomic || p.subMark == SubMarkFirst)
}

// Codec returns the media codec for the payload type, CodecUnknown when
// the type is not mapped.
func (p *Packet) Codec() media.Codec {
	info, _ := LookupPayloadType(p.header.PayloadType)
	return info.Codec
}

// TrackType returns the media kind derived from the data type.
func (p *Packet) TrackType() media.TrackType {
	switch {
	case p.dataType.IsVideo():
		return media.TrackVideo
	case p.dataType == DataTypeAudio:
		return media.TrackAudio
	default:
		return media.TrackData
	}
}

// ClockRate returns the clock rate for the payload type, 0 when unknown.
func (p *Packet) ClockRate() uint32 {
	info, _ := LookupPayloadType(p.header.PayloadType)
	return info.ClockRate
}

func (p *Packet) String() string {
	return fmt.Sprintf("jt1078{%s sim=%s ch=%d seq=%d type=%s mark=%s ts=%d len=%d}",
		p.header.Version, p.SIM(), p.Channel(), p.Sequence(), p.dataType, p.subMark,
		p.Timestamp(), p.payloadLen)
}

// Encode builds a record from h and body, setting h.BodyLength.
func Encode(h Header, body []byte) ([]byte, error) {
	if len(body) > 0xffff {
		return nil, fmt.Errorf("%w: body of %d bytes", ErrFieldRange, len(body))
	}
	h.BodyLength = uint16(len(body))
	hdr, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(hdr, body...), nil
}
