package rtp

import (
	"fmt"

	"github.com/maxenergy/MediaServer/limits"
	"github.com/maxenergy/MediaServer/media"
	"github.com/sirupsen/logrus"
)

// H.264 RTP payload constants (RFC 6184).
const (
	H264TypeFUA = 28

	h264FUAOverhead = 2
)

// H264Encoder packetizes H.264 NAL units, using FU-A for NAL units larger
// than the configured payload size.
type H264Encoder struct {
	encoderState
}

// NewH264Encoder creates an H.264 encoder.
func NewH264Encoder(cfg EncoderConfig) (*H264Encoder, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	e := &H264Encoder{}
	e.init(cfg)

	logrus.WithFields(logrus.Fields{
		"function":    "NewH264Encoder",
		"ssrc":        cfg.SSRC,
		"payloadType": cfg.PayloadType,
		"maxPayload":  cfg.MaxPayloadSize,
	}).Debug("Created H.264 RTP encoder")
	return e, nil
}

// Encode emits a Single NAL Unit packet or a run of FU-A fragments.
func (e *H264Encoder) Encode(frame *media.Frame) error {
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

	if len(nal) <= e.cfg.MaxPayloadSize {
		p := e.packet(changed && !frame.IsMeta(), ts)
		p.Payload = append(p.Payload, nal...)
		e.emit(p, frame.IsKeyStart())
		return nil
	}

	indicator := (nal[0] & 0xE0) | H264TypeFUA
	nalType := nal[0] & 0x1F
	data := nal[1:]
	chunk := e.cfg.MaxPayloadSize - h264FUAOverhead

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
		p.Payload = append(p.Payload, indicator, fuHdr)
		p.Payload = append(p.Payload, data[:n]...)
		e.emit(p, start && frame.IsKeyStart())
		data = data[n:]
	}
	return nil
}
