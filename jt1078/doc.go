// Package jt1078 decodes and encodes JT/T 1078 audio/video records, the
// RTP-like framing used by vehicle terminals to stream media over TCP.
//
// Three header versions are supported. V0 and V2016 carry a 6-byte BCD SIM
// number, V2019 a 10-byte one; every other field shares the same layout:
//
//	offset  size  field
//	0       4     frame marker 0x30316364
//	4       1     V(2) P(1) X(1) CC(4)
//	5       1     M(1) PT(7)
//	6       2     sequence
//	8       6|10  SIM number, BCD
//	+0      1     logical channel
//	+1      1     data type(4) sub-package mark(4)
//	+2      8     timestamp in ms (absent for transparent data)
//	+10     2     last I frame interval (video only)
//	+12     2     last frame interval (video only)
//	+14     2     body length
//	+16     n     body
//
// Parse never fails: short records, a bad marker or an unknown version tag
// yield a Packet classified DataTypeUnsupported. Callers check Supported
// before touching the payload. All fields are decoded with explicit shifts
// and masks over the raw bytes.
//
// SplitRecords cuts a TCP byte stream into records, and Assembler joins
// First/Intermediate/Last records back into complete media frames.
package jt1078
