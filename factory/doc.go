// Package factory creates packet sink implementations from configuration.
//
// The factory lets the vod package and the CLI ask for "a sink" without
// knowing whether packets go to a UDP socket or into an in-memory log.
//
// # Configuration
//
// Defaults can be overridden with environment variables:
//   - MEDIASERVER_SINK_SIMULATION: "true" or "false" to enable simulation mode
//   - MEDIASERVER_SINK_ADDR: host:port destination for the real sink
//   - MEDIASERVER_SINK_WRITE_TIMEOUT: integer milliseconds per write
//   - MEDIASERVER_SINK_RETRY_ATTEMPTS: integer write attempts per packet
//
// Values that fail to parse or fall outside the documented bounds are logged
// at Warn and ignored.
//
// # Usage
//
//	f := factory.NewPacketSinkFactory()
//	f.SetRemoteAddr("192.0.2.10:30000")
//	sink, err := f.CreatePacketSink()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Testing Support
//
// CreateSimulationForTesting returns a *testing.SimulatedPacketSink so tests
// can inspect what was written:
//
//	sim := factory.NewPacketSinkFactory().CreateSimulationForTesting()
package factory
