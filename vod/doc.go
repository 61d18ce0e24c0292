// Package vod runs video-on-demand playback sessions.
//
// A Session wires one frame source to one packet sink:
//
//	FrameSource -> playback.Scheduler -> rtp.Encoder -> interfaces.IPacketSink
//
// The Manager owns the shared pieces (source registry, encoder registry,
// worker pool, pacing loops, metrics) and keeps track of the sessions it
// started. Sessions are addressed by the request path described in
// source.ParseVodPath, e.g. /file/camera1/2024/clip.h265/2 plays clip.h265
// twice and then stops.
//
// # Failure Semantics
//
// A sink write error is fatal: the session stops its scheduler, closes the
// sink and reports the error through the close callback and Err. Frames the
// encoder rejects (for example a frame too large for the generic encoder)
// are dropped with a warning. Natural ends reported by the scheduler (loop
// budget reached, seek or read failure) close the session the same way.
package vod
