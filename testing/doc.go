// Package testing provides an in-memory packet sink for deterministic tests
// of the egress pipeline.
//
// # Overview
//
// SimulatedPacketSink implements interfaces.IPacketSink without touching the
// network. Every write is copied into a log so tests can decode the exact
// bytes a session produced:
//
//	sim := testing.NewSimulatedPacketSink(&interfaces.PacketSinkConfig{
//	    UseSimulation: true,
//	    RetryAttempts: 1,
//	})
//
//	session.Start()
//	// ...
//	for _, pkt := range sim.Packets() {
//	    var p rtp.Packet
//	    _ = p.Unmarshal(pkt)
//	}
//
// # Failure Injection
//
// FailAfter makes every write beyond the first n return the given error,
// which is how session tests exercise the transport-failure path:
//
//	sim.FailAfter(10, errors.New("connection reset"))
//
// # Simulation vs Real Implementation
//
//   - Simulation (this package): packets are recorded in memory.
//   - Real (real package): packets are sent as UDP datagrams.
//
// Both conform to interfaces.IPacketSink and are selected by the factory
// package.
package testing
