package jt1078

import (
	"errors"
	"fmt"

	"github.com/maxenergy/MediaServer/limits"
	"github.com/maxenergy/MediaServer/media"
	"github.com/sirupsen/logrus"
)

// Assembly errors.
var (
	// ErrUnsupportedRecord indicates a record whose classification is unknown.
	ErrUnsupportedRecord = errors.New("unsupported jt1078 record")

	// ErrSequenceGap indicates a missing record inside a fragmented frame.
	// The partial frame is dropped.
	ErrSequenceGap = errors.New("sequence gap in fragmented frame")

	// ErrOrphanFragment indicates an Intermediate or Last record with no
	// preceding First record.
	ErrOrphanFragment = errors.New("fragment without first record")
)

// Track indexes assigned to assembled frames.
const (
	VideoTrackIndex = 0
	AudioTrackIndex = 1
)

type partial struct {
	active   bool
	nextSeq  uint16
	buf      []byte
	first    Header
	dataType DataType
	codec    media.Codec
}

func (s *partial) reset() {
	s.active = false
	s.buf = s.buf[:0]
}

// Assembler rebuilds complete frames from records. Video and audio are
// assembled independently. It is not safe for concurrent use.
type Assembler struct {
	video partial
	audio partial
}

// NewAssembler creates an assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Push consumes one record. It returns a frame once one is complete and
// nil while a fragmented frame is in progress. Transparent data records
// yield nothing.
func (a *Assembler) Push(p *Packet) (*media.Frame, error) {
	if !p.Supported() {
		return nil, ErrUnsupportedRecord
	}

	var st *partial
	switch {
	case p.DataType().IsVideo():
		st = &a.video
	case p.DataType() == DataTypeAudio:
		st = &a.audio
	default:
		return nil, nil
	}

	switch p.SubMark() {
	case SubMarkAtomic:
		if st.active {
			logrus.WithFields(logrus.Fields{
				"function": "Assembler.Push",
				"sim":      p.SIM(),
				"channel":  p.Channel(),
				"sequence": p.Sequence(),
			}).Debug("Atomic record abandons partial frame")
			st.reset()
		}
		data := append([]byte(nil), p.Payload()...)
		return buildFrame(p.Header(), p.DataType(), p.Codec(), data), nil

	case SubMarkFirst:
		st.reset()
		st.active = true
		st.first = p.Header()
		st.first.SIM = append([]byte(nil), st.first.SIM...)
		st.dataType = p.DataType()
		st.codec = p.Codec()
		st.nextSeq = p.Sequence() + 1
		st.buf = append(st.buf, p.Payload()...)
		return nil, nil

	default:
		if !st.active {
			return nil, ErrOrphanFragment
		}
		if p.Sequence() != st.nextSeq {
			want := st.nextSeq
			st.reset()
			return nil, fmt.Errorf("%w: expected %d, got %d", ErrSequenceGap, want, p.Sequence())
		}
		if len(st.buf)+p.PayloadLen() > limits.MaxFrameSize {
			st.reset()
			return nil, fmt.Errorf("%w: assembled frame exceeds %d bytes", limits.ErrTooLarge, limits.MaxFrameSize)
		}
		st.buf = append(st.buf, p.Payload()...)
		st.nextSeq++
		if p.SubMark() != SubMarkLast {
			return nil, nil
		}

		data := append([]byte(nil), st.buf...)
		f := buildFrame(st.first, st.dataType, st.codec, data)
		st.reset()
		return f, nil
	}
}

func buildFrame(h Header, dt DataType, codec media.Codec, data []byte) *media.Frame {
	f := &media.Frame{
		Data:  data,
		DTS:   h.Timestamp,
		PTS:   h.Timestamp,
		Codec: codec,
	}
	if dt.IsVideo() {
		f.TrackIndex = VideoTrackIndex
		f.StartSize = startCodeSize(data)
		if dt == DataTypeVideoI {
			f.Flags |= media.FlagKeyStart
		}
	} else {
		f.TrackIndex = AudioTrackIndex
	}
	return f
}

func startCodeSize(b []byte) int {
	switch {
	case len(b) >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1:
		return 4
	case len(b) >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1:
		return 3
	default:
		return 0
	}
}
