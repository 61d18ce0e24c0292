// Package config loads the media server configuration.
//
// Configuration comes from three layers, each overriding the previous one:
// built-in defaults, an optional YAML file, and MEDIASERVER_* environment
// variables. Environment values that fail to parse or fall outside their
// bounds are logged at Warn and ignored, so a typo never takes a server down.
//
// # YAML
//
//	log_level: debug
//	media_root: /srv/vod
//	metrics_addr: ":9100"
//	playback:
//	  tick_interval_ms: 40
//	  low_water_mark: 25
//	rtp:
//	  max_payload_size: 1200
//	sink:
//	  remote_addr: 192.0.2.10:30000
//	ingest:
//	  listen_addr: ":1078"
//	  version: V2016
//
// # Environment
//
// See the Env* constants for the recognized variables. Packet sink variables
// (MEDIASERVER_SINK_*) are applied by the factory package.
package config
