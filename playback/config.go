package playback

import (
	"errors"
	"fmt"
	"time"
)

// Scheduler errors.
var (
	// ErrNoPacingLoop indicates Start found no pacing loop to run on.
	ErrNoPacingLoop = errors.New("no pacing loop available")

	// ErrAlreadyStarted indicates Start was called on a session that already started.
	ErrAlreadyStarted = errors.New("playback session already started")

	// ErrNotPlaying indicates an operation that needs a playing or paused session.
	ErrNotPlaying = errors.New("playback session is not playing")

	// ErrInvalidScale indicates a non-positive or non-finite speed factor.
	ErrInvalidScale = errors.New("scale factor must be positive and finite")

	// ErrClosed indicates the session was stopped during the operation.
	ErrClosed = errors.New("playback session closed")

	// ErrSeekFailed is reported through the close callback when the source
	// cannot reposition.
	ErrSeekFailed = errors.New("seek failed")

	// ErrReadFailed is reported through the close callback when the source
	// fails too many consecutive reads.
	ErrReadFailed = errors.New("frame source read failed")

	// ErrReopenFailed is reported through the close callback when the source
	// cannot be reopened for the next loop.
	ErrReopenFailed = errors.New("frame source reopen failed")

	// ErrInvalidConfig indicates an unusable scheduler configuration.
	ErrInvalidConfig = errors.New("invalid playback configuration")
)

// Defaults for Config.
const (
	DefaultTickInterval       = 40 * time.Millisecond
	DefaultLowWaterMark       = 25
	DefaultDiscontinuitySlack = 500
	DefaultBufferCapacity     = 256
	DefaultReadAheadPriority  = 100
	DefaultMaxReadErrors      = 3
)

// Config holds the scheduler tunables.
type Config struct {
	// TickInterval is the pacing period.
	TickInterval time.Duration
	// LowWaterMark is the buffer depth below which read-ahead is scheduled.
	// It also bounds the number of outstanding read-ahead tasks.
	LowWaterMark int
	// DiscontinuitySlack is the dts gap, in milliseconds, past which a
	// frame is emitted immediately instead of waiting for its due time.
	DiscontinuitySlack uint64
	// BufferCapacity bounds the read-ahead buffer.
	BufferCapacity int
	// LoopBudget is the number of source exhaustions after which the
	// session stops. 0 loops until Stop is called.
	LoopBudget int
	// ReadAheadPriority is the worker pool priority of read-ahead tasks.
	ReadAheadPriority int
	// MaxReadErrors is the number of consecutive failed reads that stops
	// the session.
	MaxReadErrors int
}

// DefaultConfig returns a Config with every tunable at its default and an
// infinite loop budget.
func DefaultConfig() Config {
	return Config{
		TickInterval:       DefaultTickInterval,
		LowWaterMark:       DefaultLowWaterMark,
		DiscontinuitySlack: DefaultDiscontinuitySlack,
		BufferCapacity:     DefaultBufferCapacity,
		LoopBudget:         0,
		ReadAheadPriority:  DefaultReadAheadPriority,
		MaxReadErrors:      DefaultMaxReadErrors,
	}
}

// normalize fills zero fields with defaults and validates the result.
func (c Config) normalize() (Config, error) {
	d := DefaultConfig()
	if c.TickInterval == 0 {
		c.TickInterval = d.TickInterval
	}
	if c.LowWaterMark == 0 {
		c.LowWaterMark = d.LowWaterMark
	}
	if c.DiscontinuitySlack == 0 {
		c.DiscontinuitySlack = d.DiscontinuitySlack
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = d.BufferCapacity
	}
	if c.ReadAheadPriority == 0 {
		c.ReadAheadPriority = d.ReadAheadPriority
	}
	if c.MaxReadErrors == 0 {
		c.MaxReadErrors = d.MaxReadErrors
	}

	switch {
	case c.TickInterval < 0:
		return c, fmt.Errorf("%w: tick interval %v", ErrInvalidConfig, c.TickInterval)
	case c.LowWaterMark < 0:
		return c, fmt.Errorf("%w: low water mark %d", ErrInvalidConfig, c.LowWaterMark)
	case c.BufferCapacity < c.LowWaterMark:
		return c, fmt.Errorf("%w: buffer capacity %d below low water mark %d",
			ErrInvalidConfig, c.BufferCapacity, c.LowWaterMark)
	case c.LoopBudget < 0:
		return c, fmt.Errorf("%w: loop budget %d", ErrInvalidConfig, c.LoopBudget)
	case c.MaxReadErrors < 0:
		return c, fmt.Errorf("%w: max read errors %d", ErrInvalidConfig, c.MaxReadErrors)
	}
	return c, nil
}

// Validate reports whether NewScheduler would accept c.
func (c Config) Validate() error {
	_, err := c.normalize()
	return err
}
