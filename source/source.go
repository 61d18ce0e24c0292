// Package source defines the FrameSource contract consumed by the playback
// scheduler, the extension-keyed registry used to construct sources, the VOD
// request path parser, and an Annex-B elementary stream source.
package source

import (
	"errors"

	"github.com/maxenergy/MediaServer/media"
)

// Construction errors.
var (
	// ErrMalformedPath indicates a VOD request path that cannot be parsed.
	ErrMalformedPath = errors.New("malformed vod path")

	// ErrInvalidLoopCount indicates a loop count that is not a non-negative integer.
	ErrInvalidLoopCount = errors.New("invalid loop count")

	// ErrUnsupportedExtension indicates no constructor is registered for a file extension.
	ErrUnsupportedExtension = errors.New("unsupported file extension")
)

// Runtime errors.
var (
	// ErrNotOpen indicates an operation on a source that has not been opened and initialized.
	ErrNotOpen = errors.New("frame source is not open")

	// ErrSeekOutOfRange indicates a seek target beyond the last random access point.
	ErrSeekOutOfRange = errors.New("seek target out of range")

	// ErrNoFrames indicates the source contains no decodable units.
	ErrNoFrames = errors.New("source contains no frames")
)

// FrameSource yields ordered frames of a stored or live unit.
//
// ReadNext pulls one frame unit and delivers it synchronously through the
// callback registered with SetOnFrame before returning. It returns io.EOF once
// the source is exhausted. Implementations need not be safe for concurrent
// use; callers serialize access.
type FrameSource interface {
	// Open acquires the underlying resource.
	Open() error
	// Init parses stream headers and reports track info and readiness
	// through the registered callbacks.
	Init() error
	// ReadNext delivers the next frame unit, or returns io.EOF.
	ReadNext() error
	// Seek repositions so that the next frame read is the first random
	// access point at or after timestamp (milliseconds).
	Seek(timestamp uint64) error
	// Duration returns the total duration in milliseconds, 0 if unknown.
	Duration() uint64
	// Close releases the underlying resource. A closed source may be
	// opened again and restarts from its beginning.
	Close() error

	SetOnFrame(cb func(frame *media.Frame))
	SetOnReady(cb func())
	SetOnTrackInfo(cb func(info *media.TrackInfo))
}
