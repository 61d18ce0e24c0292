// Package real provides the production UDP implementation of
// interfaces.IPacketSink.
//
// A UDPPacketSink owns one connected UDP socket. Each WritePacket call sends a
// single datagram, applying the configured write deadline and retrying failed
// writes with a linear backoff:
//
//	config := &interfaces.PacketSinkConfig{
//	    RemoteAddr:    "192.0.2.10:30000",
//	    WriteTimeout:  1000,
//	    RetryAttempts: 2,
//	}
//	sink, err := real.NewUDPPacketSink(config)
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
// # Retry Behavior
//
// After a failed attempt the sink sleeps RetryBackoff * attempt before the
// next one. The last error is wrapped and returned once attempts run out. The
// delay is short because a paced media stream cannot afford to stall.
//
// # Testing Support
//
// The Sleeper interface can be injected with SetSleeper to keep retry tests
// instantaneous, and NewUDPPacketSinkWithConn accepts any net.Conn.
//
// # Thread Safety
//
// WritePacket and Close are safe for concurrent use. Counters are atomic.
package real
