package rtp

import (
	"fmt"

	"github.com/maxenergy/MediaServer/limits"
	"github.com/maxenergy/MediaServer/media"
	"github.com/sirupsen/logrus"
)

// H.265 RTP payload constants (RFC 7798).
const (
	H265NALHeaderSize = 2
	H265TypeAP        = 48
	H265TypeFU        = 49

	// h265FUOverhead is the payload header plus FU header per fragment.
	h265FUOverhead = 3

	fuStartBit = 0x80
	fuEndBit   = 0x40
)

// H265NALType returns the NAL unit type of an H.265 NAL header.
func H265NALType(b0 byte) uint8 {
	return (b0 >> 1) & 0x3f
}

// H265Encoder packetizes H.265 NAL units, fragmenting those larger than the
// configured payload size.
type H265Encoder struct {
	encoderState
}

// NewH265Encoder creates an H.265 encoder.
func NewH265Encoder(cfg EncoderConfig) (*H265Encoder, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	e := &H265Encoder{}
	e.init(cfg)

	logrus.WithFields(logrus.Fields{
		"function":    "NewH265Encoder",
		"ssrc":        cfg.SSRC,
		"payloadType": cfg.PayloadType,
		"maxPayload":  cfg.MaxPayloadSize,
	}).Debug("Created H.265 RTP encoder")
	return e, nil
}

// Encode emits a Single NAL Unit packet when the NAL unit fits, otherwise a
// run of Fragmentation Units whose last fragment carries the marker.
func (e *H265Encoder) Encode(frame *media.Frame) error {
	nal := frame.Payload()
	if len(nal) == 0 {
		return ErrEmptyFrame
	}
	if err := limits.ValidateFrame(nal); err != nil {
		return fmt.Errorf("%w: %v", ErrFrameTooLarge, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	changed := e.begin(frame)
	ts := e.timestamp(frame.DTS)
	maxPayload := e.cfg.MaxPayloadSize

	if len(nal) <= maxPayload {
		p := e.packet(changed && !frame.IsMeta(), ts)
		p.Payload = append(p.Payload, nal...)
		e.emit(p, frame.IsKeyStart())
		return nil
	}

	payloadHdr := (nal[0] & 0x81) | H265TypeFU<<1
	layerTID := nal[1]
	nalType := H265NALType(nal[0])
	data := nal[H265NALHeaderSize:]
	chunk := maxPayload - h265FUOverhead

	fragments := 0
	for start := true; len(data) > 0; start = false {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		end := n == len(data)

		fuHdr := nalType
		if start {
			fuHdr |= fuStartBit
		}
		if end {
			fuHdr |= fuEndBit
		}

		p := e.packet(end, ts)
		p.Payload = append(p.Payload, payloadHdr, layerTID, fuHdr)
		p.Payload = append(p.Payload, data[:n]...)
		e.emit(p, start && frame.IsKeyStart())

		data = data[n:]
		fragments++
	}

	logrus.WithFields(logrus.Fields{
		"function":  "H265Encoder.Encode",
		"nalType":   nalType,
		"size":      len(nal),
		"fragments": fragments,
		"dts":       frame.DTS,
	}).Trace("Fragmented NAL unit")
	return nil
}

// H265Depacketizer reassembles H.265 NAL units from Single NAL Unit and
// Fragmentation Unit packets. It is not safe for concurrent use.
type H265Depacketizer struct {
	buf     []byte
	active  bool
	nextSeq uint16
}

// NewH265Depacketizer creates a depacketizer.
func NewH265Depacketizer() *H265Depacketizer {
	return &H265Depacketizer{}
}

// Push consumes one packet. It returns a complete NAL unit (without start
// code) when one is available, nil while a fragmented unit is in progress.
func (d *H265Depacketizer) Push(pkt *Packet) ([]byte, error) {
	payload := pkt.Payload
	if len(payload) < H265NALHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(payload))
	}

	switch H265NALType(payload[0]) {
	case H265TypeAP:
		d.reset()
		return nil, fmt.Errorf("%w: aggregation packet", ErrUnsupportedPacket)
	case H265TypeFU:
		return d.pushFragment(pkt)
	default:
		lost := d.active
		d.reset()
		nal := append([]byte(nil), payload...)
		if lost {
			return nal, ErrFragmentLost
		}
		return nal, nil
	}
}

func (d *H265Depacketizer) pushFragment(pkt *Packet) ([]byte, error) {
	payload := pkt.Payload
	if len(payload) <= h265FUOverhead {
		d.reset()
		return nil, fmt.Errorf("%w: fragment of %d bytes", ErrMalformedPacket, len(payload))
	}
	fuHdr := payload[2]
	data := payload[h265FUOverhead:]

	if fuHdr&fuStartBit != 0 {
		lost := d.active
		d.buf = append(d.buf[:0],
			(payload[0]&0x81)|(fuHdr&0x3f)<<1,
			payload[1])
		d.active = true
		d.nextSeq = pkt.SequenceNumber + 1
		d.buf = append(d.buf, data...)
		if lost {
			return nil, ErrFragmentLost
		}
		return d.finishIfEnd(fuHdr)
	}

	if !d.active || pkt.SequenceNumber != d.nextSeq {
		d.reset()
		return nil, ErrFragmentLost
	}
	if len(d.buf)+len(data) > limits.MaxFrameSize {
		d.reset()
		return nil, fmt.Errorf("%w: reassembled unit exceeds %d bytes", ErrFrameTooLarge, limits.MaxFrameSize)
	}
	d.buf = append(d.buf, data...)
	d.nextSeq++
	return d.finishIfEnd(fuHdr)
}

func (d *H265Depacketizer) finishIfEnd(fuHdr byte) ([]byte, error) {
	if fuHdr&fuEndBit == 0 {
		return nil, nil
	}
	nal := append([]byte(nil), d.buf...)
	d.reset()
	return nal, nil
}

func (d *H265Depacketizer) reset() {
	d.buf = d.buf[:0]
	d.active = false
}
