// Package limits provides centralized size limits for RTP packetization and
// frame handling. This ensures consistent validation across the playback,
// packetization and ingest components.
package limits

import (
	"errors"
	"fmt"
)

const (
	// RTPHeaderSize is the size of the fixed RTP header (RFC 3550 section 5.1)
	RTPHeaderSize = 12

	// DefaultRTPPayload is the default maximum RTP payload size.
	// 1400 bytes plus the fixed header stays under a 1500 byte Ethernet MTU
	// once IP and UDP headers are added.
	DefaultRTPPayload = 1400

	// MinRTPPayload is the smallest payload size an encoder may be configured
	// with. Fragmenting encoders need room for their fragmentation overhead
	// plus at least one byte of NAL data.
	MinRTPPayload = 16

	// MaxRTPPayload is the largest payload that fits a single UDP datagram
	// together with the fixed RTP header.
	MaxRTPPayload = 65507 - RTPHeaderSize

	// MaxFrameSize is the absolute maximum for a single coded frame (8MB).
	// Larger units are rejected before packetization or reassembly.
	MaxFrameSize = 8 * 1024 * 1024

	// MaxRecordHeaderSize is the longest JT/T 1078 header: a 2019 revision
	// video record with 20 fixed bytes, an 8-byte timestamp, two 2-byte
	// frame intervals and the 2-byte body length.
	MaxRecordHeaderSize = 20 + 8 + 4 + 2

	// MaxRecordSize is the largest JT/T 1078 record accepted from the wire.
	// The body length field is 16 bits.
	MaxRecordSize = 65535 + MaxRecordHeaderSize
)

var (
	// ErrEmpty indicates an empty buffer was provided
	ErrEmpty = errors.New("empty buffer")

	// ErrTooLarge indicates a buffer exceeds its maximum size
	ErrTooLarge = errors.New("buffer too large")

	// ErrPayloadSizeOutOfRange indicates a configured payload size is unusable
	ErrPayloadSizeOutOfRange = errors.New("payload size out of range")
)

// ValidateSize validates a buffer against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateSize(data []byte, maxSize int) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrTooLarge, len(data), maxSize)
	}
	return nil
}

// ValidateFrame validates a coded frame against MaxFrameSize.
func ValidateFrame(data []byte) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrTooLarge, len(data), MaxFrameSize)
	}
	return nil
}

// ValidateRTPPayload validates a single RTP payload against MaxRTPPayload.
func ValidateRTPPayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmpty
	}
	if len(payload) > MaxRTPPayload {
		return fmt.Errorf("%w: rtp payload size %d exceeds limit %d", ErrTooLarge, len(payload), MaxRTPPayload)
	}
	return nil
}

// ValidatePayloadSize checks a configured maximum RTP payload size.
func ValidatePayloadSize(size int) error {
	if size < MinRTPPayload || size > MaxRTPPayload {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrPayloadSizeOutOfRange, size, MinRTPPayload, MaxRTPPayload)
	}
	return nil
}
