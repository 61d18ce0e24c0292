package interfaces

import (
	"errors"
	"fmt"
)

// ErrSinkClosed is returned by WritePacket after Close.
var ErrSinkClosed = errors.New("packet sink closed")

// IPacketSink delivers marshalled packets to a transport.
type IPacketSink interface {
	// WritePacket sends one packet. The sink must not retain packet after returning.
	WritePacket(packet []byte) error

	// Close releases the transport. Calling Close more than once is not an error.
	Close() error

	// IsSimulation returns true if packets never leave the process
	IsSimulation() bool
}

// StatsProvider is implemented by sinks that count their traffic.
type StatsProvider interface {
	GetTypedStats() PacketSinkStats
}

// PacketSinkStats is a snapshot of a sink's counters.
type PacketSinkStats struct {
	IsSimulation bool
	Packets      uint64
	Bytes        uint64
	Failures     uint64
}

// PacketSinkConfig holds configuration for packet sink implementations
type PacketSinkConfig struct {
	// UseSimulation determines whether to use the in-memory sink or a real socket
	UseSimulation bool

	// RemoteAddr is the host:port packets are sent to
	RemoteAddr string

	// WriteTimeout is the per-write deadline in milliseconds, 0 disables it
	WriteTimeout int

	// RetryAttempts is the number of write attempts per packet
	RetryAttempts int
}

// Validate checks the configuration for values no implementation can use.
func (c *PacketSinkConfig) Validate() error {
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write timeout must not be negative: %d", c.WriteTimeout)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1: %d", c.RetryAttempts)
	}
	if !c.UseSimulation && c.RemoteAddr == "" {
		return errors.New("remote address is required for a real packet sink")
	}
	return nil
}
