package rtp

import (
	"fmt"

	"github.com/pion/rtp"
)

// Version is the RTP protocol version written in every header.
const Version = 2

// Packet is one RTP packet produced by an encoder. The header model is
// pion's; Payload is allocated with the capacity the encoder was configured
// for and owned by the receiver of the packet.
type Packet struct {
	rtp.Header
	Payload []byte
}

func newPacket(capacity int) *Packet {
	return &Packet{
		Header:  rtp.Header{Version: Version},
		Payload: make([]byte, 0, capacity),
	}
}

// Marshal serializes the packet to wire format.
func (p *Packet) Marshal() ([]byte, error) {
	pkt := rtp.Packet{Header: p.Header, Payload: p.Payload}
	buf, err := pkt.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RTP packet: %w", err)
	}
	return buf, nil
}

// MarshalSize returns the serialized size of the packet.
func (p *Packet) MarshalSize() int {
	return p.Header.MarshalSize() + len(p.Payload)
}

// Unmarshal parses an RTP packet from wire format. The returned payload
// aliases data.
func Unmarshal(data []byte) (*Packet, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}
	return &Packet{Header: pkt.Header, Payload: pkt.Payload}, nil
}
