// Package metrics exposes Prometheus collectors for playback sessions, RTP
// packetization and JT/T 1078 ingest.
//
// All collectors are registered on the Registerer passed to New, so tests can
// use a private prometheus.NewRegistry and several servers can share a
// process. *Metrics satisfies playback.Observer and can be handed straight to
// playback.WithObserver.
//
// # Naming
//
// Every series is prefixed with the "mediaserver" namespace followed by a
// subsystem: playback, rtp or ingest.
package metrics
