// Package rtp turns media frames into RTP packets.
//
// Encoders consume one media.Frame per Encode call and emit ordered
// packets through a callback. Every emitted packet consumes exactly one
// sequence number. The pion/rtp library provides the header model and the
// wire marshaling.
//
// # Strategies
//
//   - GenericEncoder: one packet per frame, used for audio codecs.
//   - H265Encoder: Single NAL Unit packets, or Fragmentation Units (type 49)
//     for NAL units larger than the configured payload size.
//   - H264Encoder: Single NAL Unit packets, or FU-A (type 28).
//
// # Marker Bit
//
// A fragmented NAL unit sets the marker on its last fragment only. An
// unfragmented frame sets the marker when its timestamp differs from the
// previous frame, unless it is flagged as metadata (parameter sets, SEI).
//
// # Usage
//
//	reg := rtp.DefaultEncoderRegistry()
//	enc, err := reg.New(media.CodecH265, rtp.EncoderConfig{
//		SSRC:           0x1234,
//		PayloadType:    96,
//		MaxPayloadSize: 1400,
//		EnableFastPTS:  true,
//		PTSScale:       90,
//	})
//	if err != nil {
//		return err
//	}
//	enc.SetOnPacket(func(pkt *rtp.Packet, keyStart bool) {
//		raw, _ := pkt.Marshal()
//		sink.WritePacket(raw)
//	})
//	err = enc.Encode(frame)
//
// # Depacketization
//
// H265Depacketizer reverses the H.265 strategy, returning complete NAL
// units from Single NAL Unit and Fragmentation Unit packets.
package rtp
