package rtp

import "errors"

// Construction errors.
var (
	// ErrInvalidConfig indicates an unusable encoder configuration.
	ErrInvalidConfig = errors.New("invalid encoder configuration")

	// ErrUnsupportedCodec indicates no encoder is registered for a codec.
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Encoding errors.
var (
	// ErrEmptyFrame indicates a frame with no payload after its start code.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrFrameTooLarge indicates a frame that cannot be carried by the
	// encoder's strategy.
	ErrFrameTooLarge = errors.New("frame too large")
)

// Depacketization errors.
var (
	// ErrMalformedPacket indicates a payload too short for its declared type.
	ErrMalformedPacket = errors.New("malformed rtp payload")

	// ErrUnsupportedPacket indicates a payload type the depacketizer does not handle.
	ErrUnsupportedPacket = errors.New("unsupported rtp payload structure")

	// ErrFragmentLost indicates a fragmented unit was abandoned because of a
	// sequence gap or a missing start fragment.
	ErrFragmentLost = errors.New("fragment lost")
)
