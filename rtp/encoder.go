package rtp

import (
	"fmt"
	"sort"
	"sync"

	"github.com/maxenergy/MediaServer/limits"
	"github.com/maxenergy/MediaServer/media"
	"github.com/sirupsen/logrus"
)

// PacketFunc receives each packet produced by an encoder. keyStart is true
// for the first packet of a frame that begins a random access unit.
type PacketFunc func(pkt *Packet, keyStart bool)

// Encoder packetizes frames of one codec into RTP packets.
type Encoder interface {
	// Encode emits the packets for one frame through the packet callback.
	// The frame is borrowed for the duration of the call.
	Encode(frame *media.Frame) error
	// SetOnPacket registers the packet callback.
	SetOnPacket(cb PacketFunc)
	// Sequence returns the sequence number the next packet will carry.
	Sequence() uint16
}

// EncoderConfig configures an encoder instance.
type EncoderConfig struct {
	SSRC        uint32
	PayloadType uint8
	// MaxPayloadSize bounds the RTP payload of every packet. 0 selects
	// limits.DefaultRTPPayload.
	MaxPayloadSize int
	// EnableFastPTS multiplies the frame dts by PTSScale to form the RTP
	// timestamp, e.g. 90 for millisecond dts on a 90 kHz clock.
	EnableFastPTS bool
	PTSScale      uint32
	// InitialSequence is the sequence number of the first packet.
	InitialSequence uint16
	// LastPTS seeds the previous-frame timestamp used for the marker rule.
	LastPTS uint64
}

func (c EncoderConfig) normalize() (EncoderConfig, error) {
	if c.MaxPayloadSize == 0 {
		c.MaxPayloadSize = limits.DefaultRTPPayload
	}
	if err := limits.ValidatePayloadSize(c.MaxPayloadSize); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.PayloadType > 127 {
		return c, fmt.Errorf("%w: payload type %d exceeds 7 bits", ErrInvalidConfig, c.PayloadType)
	}
	if c.EnableFastPTS && c.PTSScale == 0 {
		return c, fmt.Errorf("%w: fast pts needs a non-zero scale", ErrInvalidConfig)
	}
	return c, nil
}

// encoderState holds what every strategy shares: the sequence counter,
// the previous frame timestamp and the packet callback.
type encoderState struct {
	mu       sync.Mutex
	cfg      EncoderConfig
	seq      uint16
	lastPTS  uint64
	first    bool
	onPacket PacketFunc
}

func (e *encoderState) init(cfg EncoderConfig) {
	e.cfg = cfg
	e.seq = cfg.InitialSequence
	e.lastPTS = cfg.LastPTS
	e.first = true
}

func (e *encoderState) SetOnPacket(cb PacketFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPacket = cb
}

func (e *encoderState) Sequence() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// begin applies the first-frame adjustment and reports whether the frame's
// timestamp differs from the previous frame. Caller holds mu.
func (e *encoderState) begin(f *media.Frame) (changed bool) {
	if e.first {
		// A first frame stamped with the seed would otherwise look like a
		// continuation of an earlier frame.
		if e.lastPTS == f.DTS {
			e.lastPTS++
		}
		e.first = false
	}
	changed = f.DTS != e.lastPTS
	e.lastPTS = f.DTS
	return changed
}

func (e *encoderState) timestamp(dts uint64) uint32 {
	if e.cfg.EnableFastPTS {
		return uint32(dts * uint64(e.cfg.PTSScale))
	}
	return uint32(dts)
}

// packet builds the next packet, consuming one sequence number. Caller holds mu.
func (e *encoderState) packet(marker bool, ts uint32) *Packet {
	p := newPacket(e.cfg.MaxPayloadSize)
	p.Marker = marker
	p.PayloadType = e.cfg.PayloadType
	p.SequenceNumber = e.seq
	p.Timestamp = ts
	p.SSRC = e.cfg.SSRC
	e.seq++
	return p
}

func (e *encoderState) emit(p *Packet, keyStart bool) {
	if e.onPacket != nil {
		e.onPacket(p, keyStart)
	}
}

// EncoderConstructor builds an encoder from a validated configuration.
type EncoderConstructor func(cfg EncoderConfig) (Encoder, error)

// EncoderRegistry maps codecs to encoder constructors. It is safe for
// concurrent use.
type EncoderRegistry struct {
	mu    sync.RWMutex
	ctors map[media.Codec]EncoderConstructor
}

// NewEncoderRegistry creates an empty registry.
func NewEncoderRegistry() *EncoderRegistry {
	return &EncoderRegistry{ctors: make(map[media.Codec]EncoderConstructor)}
}

// DefaultEncoderRegistry registers the H.265 and H.264 fragmenting encoders
// and the generic encoder for the audio codecs.
func DefaultEncoderRegistry() *EncoderRegistry {
	r := NewEncoderRegistry()
	r.Register(media.CodecH265, func(cfg EncoderConfig) (Encoder, error) { return NewH265Encoder(cfg) })
	r.Register(media.CodecH264, func(cfg EncoderConfig) (Encoder, error) { return NewH264Encoder(cfg) })
	for _, c := range []media.Codec{
		media.CodecAAC, media.CodecG711A, media.CodecG711U,
		media.CodecG726, media.CodecADPCMA, media.CodecOpus,
	} {
		r.Register(c, func(cfg EncoderConfig) (Encoder, error) { return NewGenericEncoder(cfg) })
	}
	return r
}

// Register associates codec with ctor, replacing any previous constructor.
func (r *EncoderRegistry) Register(codec media.Codec, ctor EncoderConstructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[codec] = ctor
}

// Codecs returns the registered codecs in sorted order.
func (r *EncoderRegistry) Codecs() []media.Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]media.Codec, 0, len(r.ctors))
	for c := range r.ctors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds an encoder for codec.
func (r *EncoderRegistry) New(codec media.Codec, cfg EncoderConfig) (Encoder, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[codec]
	r.mu.RUnlock()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "EncoderRegistry.New",
			"codec":    codec,
		}).Error("No encoder registered for codec")
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, codec)
	}
	return ctor(cfg)
}

// NewEncoder builds an encoder for codec from a fresh default registry.
func NewEncoder(codec media.Codec, cfg EncoderConfig) (Encoder, error) {
	return DefaultEncoderRegistry().New(codec, cfg)
}
