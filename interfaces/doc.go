// Package interfaces defines the packet sink abstraction that sits at the end
// of every egress pipeline in the media server.
//
// A playback session hands each marshalled RTP packet to an [IPacketSink].
// The sink owns the transport: a UDP socket in production, an in-memory
// recorder in tests. Swapping one for the other never touches the session
// code.
//
// # Core Interfaces
//
// [IPacketSink] is the write side of a transport:
//
//	sink, err := factory.NewPacketSinkFactory().CreatePacketSink()
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	if err := sink.WritePacket(buf); err != nil {
//	    // the session treats this as fatal
//	}
//
// [StatsProvider] is implemented by sinks that keep delivery counters.
//
// # Configuration
//
// [PacketSinkConfig] selects and tunes an implementation:
//
//	config := &interfaces.PacketSinkConfig{
//	    UseSimulation: false,
//	    RemoteAddr:    "127.0.0.1:30000",
//	    WriteTimeout:  1000, // milliseconds
//	    RetryAttempts: 1,
//	}
//	if err := config.Validate(); err != nil {
//	    log.Fatalf("invalid sink config: %v", err)
//	}
//
// # Implementation Selection
//
// The factory package creates implementations based on configuration:
//   - UseSimulation=true: SimulatedPacketSink from the testing package
//   - UseSimulation=false: UDPPacketSink from the real package
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. A sink may be closed from
// one goroutine while another is writing; writes after Close return an error
// wrapping [ErrSinkClosed].
package interfaces
