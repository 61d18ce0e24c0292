// Package limits provides centralized size constants and validation functions
// for the media server. Encoders, frame sources and the JT/T 1078 ingest path
// all validate against the same numbers.
//
// # Size Hierarchy
//
//   - DefaultRTPPayload (1400 bytes): the default maximum RTP payload, chosen so
//     that header and payload fit a 1500 byte MTU.
//
//   - MinRTPPayload / MaxRTPPayload: the range a configured payload size must
//     fall in. The lower bound leaves room for the 3-byte H.265 fragmentation
//     overhead; the upper bound is what a single UDP datagram can carry.
//
//   - MaxFrameSize (8MB): the absolute maximum for any coded frame. This
//     prevents a corrupt source or a hostile peer from exhausting memory.
//
//   - MaxRecordSize: the largest JT/T 1078 record the record splitter accepts.
//
// # Validation Functions
//
//	if err := limits.ValidateFrame(frame.Data); err != nil {
//	    // ErrEmpty or ErrTooLarge
//	}
//
//	if err := limits.ValidatePayloadSize(cfg.MaxPayloadSize); err != nil {
//	    // ErrPayloadSizeOutOfRange
//	}
//
// All errors wrap one of the package sentinels so callers can classify them
// with errors.Is.
package limits
