package jt1078

import (
	"bytes"
	"testing"
	"testing/iotest"

	"github.com/maxenergy/MediaServer/limits"
	"github.com/maxenergy/MediaServer/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	sim6  = []byte{0x01, 0x38, 0x00, 0x13, 0x80, 0x00}
	sim10 = []byte{0x00, 0x00, 0x01, 0x38, 0x00, 0x13, 0x80, 0x00, 0x12, 0x34}
)

func simFor(v Version) []byte {
	if v == V2019 {
		return sim10
	}
	return sim6
}

func header(v Version, dt DataType, sm SubMark, seq uint16) Header {
	return Header{
		Version:      v,
		RTPVersion:   2,
		CSRCCount:    1,
		Marker:       true,
		PayloadType:  99,
		Sequence:     seq,
		SIM:          simFor(v),
		Channel:      3,
		DataTypeCode: uint8(dt),
		SubMarkCode:  uint8(sm),
		Timestamp:    1_700_000_000_123,
	}
}

func encode(t *testing.T, h Header, body []byte) []byte {
	t.Helper()
	raw, err := Encode(h, body)
	require.NoError(t, err)
	return raw
}

func TestParseRecoversFieldsForEveryVersion(t *testing.T) {
	tests := []struct {
		version Version
		sim     string
		size    int
	}{
		{V0, "013800138000", 30},
		{V2016, "013800138000", 30},
		{V2019, "00000138001380001234", 34},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			body := []byte("hello")
			raw := encode(t, header(tt.version, DataTypeVideoP, SubMarkFirst, 0x1234), body)

			// V=2 CC=1, then M=1 PT=99
			assert.Equal(t, byte(0x81), raw[4])
			assert.Equal(t, byte(0x80|99), raw[5])

			p := Parse(raw, tt.version)
			require.True(t, p.Supported())
			assert.Equal(t, uint16(0x1234), p.Sequence())
			assert.Equal(t, DataTypeVideoP, p.DataType())
			assert.Equal(t, SubMarkFirst, p.SubMark())
			assert.Equal(t, tt.sim, p.SIM())
			assert.Equal(t, uint8(3), p.Channel())
			assert.True(t, p.Marker())
			assert.Equal(t, uint8(99), p.PayloadType())
			assert.Equal(t, uint64(1_700_000_000_123), p.Timestamp())
			assert.Equal(t, tt.size, p.PayloadOffset())
			assert.Equal(t, len(body), p.PayloadLen())
			assert.Equal(t, body, p.Payload())
			assert.Equal(t, tt.version, p.Version())
			assert.Contains(t, p.String(), tt.sim)

			h := p.Header()
			assert.Equal(t, uint8(2), h.RTPVersion)
			assert.Equal(t, uint8(1), h.CSRCCount)
			assert.False(t, h.Padding)
			assert.False(t, h.Extension)
		})
	}
}

func TestParseHandBuiltAudioRecord(t *testing.T) {
	raw := []byte{
		0x30, 0x31, 0x63, 0x64, // marker
		0xA1,       // V=2 P=1 X=0 CC=1
		0x06,       // M=0 PT=6 (G.711A)
		0x00, 0x07, // seq 7
		0x01, 0x23, 0x45, 0x67, 0x89, 0x01, // SIM
		0x01,                                           // channel
		0x30,                                           // audio, atomic
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0xE8, // ts 1000
		0x00, 0x04, // body length
		0xAA, 0xBB, 0xCC, 0x01, // body, one byte of padding
		0xFF, 0xFF, // trailing bytes of the next record
	}

	p := Parse(raw, V2016)
	require.True(t, p.Supported())
	assert.Equal(t, DataTypeAudio, p.DataType())
	assert.Equal(t, SubMarkAtomic, p.SubMark())
	assert.Equal(t, uint16(7), p.Sequence())
	assert.Equal(t, "012345678901", p.SIM())
	assert.False(t, p.Marker())
	assert.Equal(t, uint64(1000), p.Timestamp())
	assert.Equal(t, 26, p.PayloadOffset())
	assert.Equal(t, 3, p.PayloadLen())
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, p.Payload())
	assert.Equal(t, 30, p.Size())
	assert.Equal(t, media.CodecG711A, p.Codec())
	assert.Equal(t, media.TrackAudio, p.TrackType())
	assert.Equal(t, uint32(8000), p.ClockRate())
	assert.False(t, p.StartsKeyUnit())
}

func TestParseRejectsInvalidRecords(t *testing.T) {
	good := encode(t, header(V2016, DataTypeVideoI, SubMarkAtomic, 1), []byte{1, 2, 3})

	badMarker := append([]byte(nil), good...)
	badMarker[0] = 0x31

	unknownType := append([]byte(nil), good...)
	unknownType[15] = 0x70 // data type 7

	unknownMark := append([]byte(nil), good...)
	unknownMark[15] = 0x05

	badPadding := encode(t, Header{
		Version: V2016, RTPVersion: 2, Padding: true, SIM: sim6,
		DataTypeCode: uint8(DataTypeAudio),
	}, []byte{1, 9})

	tests := []struct {
		name    string
		data    []byte
		version Version
	}{
		{"unknown version tag", good, Version(2013)},
		{"empty", nil, V2016},
		{"shorter than fixed header", good[:12], V2016},
		{"shorter than type specific header", good[:20], V2016},
		{"body truncated", good[:len(good)-1], V2016},
		{"bad marker", badMarker, V2016},
		{"unknown data type", unknownType, V2016},
		{"unknown sub mark", unknownMark, V2016},
		{"padding longer than body", badPadding, V2016},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p *Packet
			assert.NotPanics(t, func() { p = Parse(tt.data, tt.version) })
			assert.False(t, p.Supported())
			assert.Nil(t, p.Payload())
			assert.False(t, p.StartsKeyUnit())
		})
	}

	p := Parse(unknownType, V2016)
	assert.Equal(t, DataTypeUnsupported, p.DataType())
	p = Parse(good, Version(1))
	assert.Equal(t, DataTypeUnsupported, p.DataType())
	assert.Equal(t, SubMarkUnsupported, p.SubMark())
}

func TestHeaderLayoutByDataType(t *testing.T) {
	assert.Equal(t, 30, HeaderSize(V0, uint8(DataTypeVideoI)))
	assert.Equal(t, 26, HeaderSize(V0, uint8(DataTypeAudio)))
	assert.Equal(t, 18, HeaderSize(V0, uint8(DataTypePassthrough)))
	assert.Equal(t, 22, HeaderSize(V2019, uint8(DataTypePassthrough)))

	raw := encode(t, Header{Version: V2019, RTPVersion: 2, SIM: sim10,
		DataTypeCode: uint8(DataTypePassthrough), PayloadType: 91}, []byte("gps"))
	p := Parse(raw, V2019)
	require.True(t, p.Supported())
	assert.Equal(t, DataTypePassthrough, p.DataType())
	assert.Equal(t, uint64(0), p.Timestamp())
	assert.Equal(t, []byte("gps"), p.Payload())
	assert.Equal(t, media.TrackData, p.TrackType())
}

func TestStartsKeyUnit(t *testing.T) {
	tests := []struct {
		dt   DataType
		sm   SubMark
		want bool
	}{
		{DataTypeVideoI, SubMarkAtomic, true},
		{DataTypeVideoI, SubMarkFirst, true},
		{DataTypeVideoI, SubMarkIntermediate, false},
		{DataTypeVideoI, SubMarkLast, false},
		{DataTypeVideoP, SubMarkFirst, false},
		{DataTypeAudio, SubMarkAtomic, false},
	}
	for _, tt := range tests {
		p := Parse(encode(t, header(V0, tt.dt, tt.sm, 1), []byte{0}), V0)
		assert.Equal(t, tt.want, p.StartsKeyUnit(), "%s/%s", tt.dt, tt.sm)
	}
}

func TestMarshalBinaryValidation(t *testing.T) {
	h := header(V2016, DataTypeVideoI, SubMarkAtomic, 1)

	bad := h
	bad.Version = Version(7)
	_, err := bad.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidVersion)

	bad = h
	bad.SIM = sim10
	_, err = bad.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidSIM)

	bad = h
	bad.PayloadType = 200
	_, err = bad.MarshalBinary()
	assert.ErrorIs(t, err, ErrFieldRange)

	_, err = Encode(h, make([]byte, 0x10000))
	assert.ErrorIs(t, err, ErrFieldRange)
}

func TestPayloadTypeTable(t *testing.T) {
	info, ok := LookupPayloadType(99)
	require.True(t, ok)
	assert.Equal(t, media.CodecH265, info.Codec)
	assert.Equal(t, uint32(90000), info.ClockRate)

	pt, ok := PayloadTypeFor(media.CodecH264)
	require.True(t, ok)
	assert.Equal(t, uint8(98), pt)

	_, ok = PayloadTypeFor(media.CodecUnknown)
	assert.False(t, ok)
	_, ok = LookupPayloadType(120)
	assert.False(t, ok)
}

func TestSplitRecords(t *testing.T) {
	r1 := encode(t, header(V2019, DataTypeVideoI, SubMarkFirst, 1), bytes.Repeat([]byte{7}, 300))
	r2 := encode(t, header(V2019, DataTypeAudio, SubMarkAtomic, 2), []byte{1, 2})
	r3 := encode(t, Header{Version: V2019, RTPVersion: 2, SIM: sim10,
		DataTypeCode: uint8(DataTypePassthrough)}, []byte("x"))

	var stream []byte
	stream = append(stream, 0xDE, 0xAD, 0x30) // garbage before the first marker
	stream = append(stream, r1...)
	stream = append(stream, r2...)
	stream = append(stream, 0x00, 0x30, 0x31) // garbage between records
	stream = append(stream, r3...)
	stream = append(stream, r1[:20]...) // truncated tail

	s := NewScanner(bytes.NewReader(stream), V2019)
	var got [][]byte
	for s.Scan() {
		got = append(got, append([]byte(nil), s.Bytes()...))
	}
	require.NoError(t, s.Err())
	assert.Equal(t, [][]byte{r1, r2, r3}, got)

	s = NewScanner(iotest.OneByteReader(bytes.NewReader(stream)), V2019)
	n := 0
	for s.Scan() {
		assert.True(t, Parse(s.Bytes(), V2019).Supported())
		n++
	}
	require.NoError(t, s.Err())
	assert.Equal(t, 3, n)

	s = NewScanner(bytes.NewReader(stream), Version(3))
	assert.False(t, s.Scan())
	assert.ErrorIs(t, s.Err(), ErrInvalidVersion)
}

func TestScannerAcceptsMaxBodyForEveryVersion(t *testing.T) {
	body := bytes.Repeat([]byte{0x5A}, 0xFFFF)
	for _, v := range []Version{V0, V2016, V2019} {
		t.Run(v.String(), func(t *testing.T) {
			raw := encode(t, header(v, DataTypeVideoI, SubMarkAtomic, 1), body)
			assert.LessOrEqual(t, len(raw), limits.MaxRecordSize)

			s := NewScanner(bytes.NewReader(raw), v)
			require.True(t, s.Scan(), "scan error: %v", s.Err())
			assert.Len(t, s.Bytes(), len(raw))
			assert.Equal(t, 0xFFFF, Parse(s.Bytes(), v).PayloadLen())
		})
	}
	assert.Equal(t, HeaderSize(V2019, uint8(DataTypeVideoI)), limits.MaxRecordHeaderSize)
}

func TestAssemblerRebuildsFragmentedFrame(t *testing.T) {
	a := NewAssembler()
	parts := [][]byte{{0, 0, 0, 1, 0x26, 0x01}, {0xAA, 0xBB}, {0xCC}}
	marks := []SubMark{SubMarkFirst, SubMarkIntermediate, SubMarkLast}

	var frame *media.Frame
	for i, part := range parts {
		p := Parse(encode(t, header(V2016, DataTypeVideoI, marks[i], uint16(65535+i)), part), V2016)
		f, err := a.Push(p)
		require.NoError(t, err)
		if i < len(parts)-1 {
			assert.Nil(t, f)

			// Atomic audio interleaved between video fragments.
			audio := Parse(encode(t, header(V2016, DataTypeAudio, SubMarkAtomic, 9), []byte{5}), V2016)
			af, err := a.Push(audio)
			require.NoError(t, err)
			require.NotNil(t, af)
			assert.Equal(t, AudioTrackIndex, af.TrackIndex)
		}
		frame = f
	}

	require.NotNil(t, frame)
	assert.Equal(t, []byte{0, 0, 0, 1, 0x26, 0x01, 0xAA, 0xBB, 0xCC}, frame.Data)
	assert.Equal(t, 4, frame.StartSize)
	assert.True(t, frame.IsKeyStart())
	assert.Equal(t, uint64(1_700_000_000_123), frame.DTS)
	assert.Equal(t, media.CodecH265, frame.Codec)
	assert.Equal(t, VideoTrackIndex, frame.TrackIndex)
}

func TestAssemblerDropsOnGap(t *testing.T) {
	a := NewAssembler()
	push := func(sm SubMark, seq uint16) (*media.Frame, error) {
		return a.Push(Parse(encode(t, header(V0, DataTypeVideoP, sm, seq), []byte{1}), V0))
	}

	_, err := push(SubMarkLast, 1)
	assert.ErrorIs(t, err, ErrOrphanFragment)

	_, err = push(SubMarkFirst, 10)
	require.NoError(t, err)
	_, err = push(SubMarkIntermediate, 12)
	assert.ErrorIs(t, err, ErrSequenceGap)

	// The partial frame is gone.
	_, err = push(SubMarkLast, 13)
	assert.ErrorIs(t, err, ErrOrphanFragment)

	f, err := push(SubMarkAtomic, 14)
	require.NoError(t, err)
	assert.False(t, f.IsKeyStart())

	_, err = a.Push(Parse([]byte{1, 2, 3}, V0))
	assert.ErrorIs(t, err, ErrUnsupportedRecord)

	gps := Parse(encode(t, Header{Version: V0, RTPVersion: 2, SIM: sim6,
		DataTypeCode: uint8(DataTypePassthrough)}, []byte("x")), V0)
	f, err = a.Push(gps)
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"V0", V0, false},
		{"0", V0, false},
		{"v2016", V2016, false},
		{" 2019 ", V2019, false},
		{"V2011", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseVersion(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidVersion, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
