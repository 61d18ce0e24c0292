// Package main provides the mediaserver command.
//
// # Overview
//
// mediaserver runs in one of two modes:
//
//   - play: streams a VOD path as RTP over UDP (or into the simulated sink)
//     and exits when the session ends
//   - ingest: accepts JT/T 1078 streams over TCP and rebuilds frames
//
// Both modes expose Prometheus metrics on -metrics-addr.
//
// # Usage
//
// Play a clip twice to a local receiver:
//
//	mediaserver -mode play -path /file/cam1/clip.h265/2 -dest 127.0.0.1:30000
//
// Accept 2019 revision devices:
//
//	MEDIASERVER_INGEST_VERSION=V2019 mediaserver -mode ingest -ingest-addr :1078
//
// # Configuration Options
//
//   - -config: YAML configuration file (optional)
//   - -mode: play or ingest
//   - -path: VOD request path for play mode
//   - -dest: UDP destination for play mode
//   - -simulate: record packets in memory instead of sending them
//   - -log-level: overrides log_level
//   - -metrics-addr: overrides metrics_addr, empty disables the endpoint
//   - -ingest-addr: overrides ingest.listen_addr
//
// Flags win over environment variables, which win over the file.
package main
