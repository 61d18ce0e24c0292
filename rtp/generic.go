package rtp

import (
	"fmt"

	"github.com/maxenergy/MediaServer/media"
	"github.com/sirupsen/logrus"
)

// GenericEncoder carries each frame in exactly one packet.
type GenericEncoder struct {
	encoderState
}

// NewGenericEncoder creates a single-packet encoder.
func NewGenericEncoder(cfg EncoderConfig) (*GenericEncoder, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	e := &GenericEncoder{}
	e.init(cfg)

	logrus.WithFields(logrus.Fields{
		"function":    "NewGenericEncoder",
		"ssrc":        cfg.SSRC,
		"payloadType": cfg.PayloadType,
		"maxPayload":  cfg.MaxPayloadSize,
	}).Debug("Created generic RTP encoder")
	return e, nil
}

// Encode emits one packet holding the frame payload.
func (e *GenericEncoder) Encode(frame *media.Frame) error {
	payload := frame.Payload()
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if len(payload) > e.cfg.MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes exceeds payload size %d", ErrFrameTooLarge, len(payload), e.cfg.MaxPayloadSize)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	changed := e.begin(frame)
	p := e.packet(changed && !frame.IsMeta(), e.timestamp(frame.DTS))
	p.Payload = append(p.Payload, payload...)
	e.emit(p, frame.IsKeyStart())
	return nil
}
