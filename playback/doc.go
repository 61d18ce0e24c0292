// Package playback implements the real-time playback scheduler.
//
// A Scheduler owns one playback session. It pulls frames from a
// source.FrameSource through read-ahead tasks submitted to a shared
// Executor, buffers them in a bounded queue, and emits them from a periodic
// tick on a single-goroutine PacingLoop, honoring speed, seek, pause and
// loop semantics.
//
// # Timing
//
// Each tick computes the wall time elapsed since the anchor and emits every
// buffered frame whose due time, (dts - baseDTS) / scale, has passed. A frame
// whose dts jumps more than the discontinuity slack past the last emitted dts
// is emitted immediately and becomes the new base, so a gap in the source
// never stalls playback. Seek, loop restart, resume and scale changes all
// rebase the anchor so that no timestamp jump is observed.
//
// # Concurrency
//
// All user callbacks run on the pacing loop. Read-ahead tasks hold the
// session's liveness context and return without touching shared state once
// the session is stopped. Source access is serialized by a dedicated mutex
// that is never held together with the buffer lock across a read.
//
// # Example
//
//	pool, _ := workpool.New(4, 256)
//	loop := pacing.NewLoop("pacing-0")
//	s, err := playback.NewScheduler(src, pool, playback.DefaultConfig(),
//		playback.WithLoop(loop))
//	if err != nil {
//		return err
//	}
//	s.SetOnFrame(func(f *media.Frame) { enc.Encode(f) })
//	if err := s.Start(); err != nil {
//		return err
//	}
//	defer s.Stop()
package playback
