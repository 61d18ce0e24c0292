package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/maxenergy/MediaServer/media"
	"github.com/maxenergy/MediaServer/pacing"
	"github.com/maxenergy/MediaServer/queue"
	"github.com/maxenergy/MediaServer/source"
	"github.com/sirupsen/logrus"
)

// PacingLoop runs timer tasks and posted functions on a single goroutine.
// *pacing.Loop satisfies it.
type PacingLoop interface {
	AddTimerTask(delay time.Duration, fn pacing.TimerFunc) *pacing.Task
	Post(fn func())
}

// Executor runs fire-and-forget read-ahead tasks. *workpool.Pool satisfies it.
type Executor interface {
	Submit(priority int, fn func()) error
}

// Observer receives playback events, typically to update metrics.
// Methods are called from the pacing loop or from read-ahead tasks and
// must not block.
type Observer interface {
	FrameEmitted(frame *media.Frame, lateness time.Duration)
	FrameDropped(reason string)
	LoopRestarted()
	ReadFailed()
	SessionEnded(reason string)
}

type nopObserver struct{}

func (nopObserver) FrameEmitted(*media.Frame, time.Duration) {}
func (nopObserver) FrameDropped(string)                      {}
func (nopObserver) LoopRestarted()                           {}
func (nopObserver) ReadFailed()                              {}
func (nopObserver) SessionEnded(string)                      {}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLoop sets the pacing loop used by Start.
func WithLoop(loop PacingLoop) Option {
	return func(s *Scheduler) { s.loop = loop }
}

// WithLoopProvider sets the function Start uses to obtain a pacing loop
// when none was configured with WithLoop.
func WithLoopProvider(provider func() PacingLoop) Option {
	return func(s *Scheduler) { s.loopProvider = provider }
}

// WithTimeProvider replaces the wall clock, for deterministic testing.
func WithTimeProvider(tp pacing.TimeProvider) Option {
	return func(s *Scheduler) { s.clock = tp }
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithID sets the session identifier. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(s *Scheduler) { s.id = id }
}

type entry struct {
	frame *media.Frame
	epoch uint64
}

type callbacks struct {
	onFrame     func(*media.Frame)
	onReady     func()
	onTrackInfo func(*media.TrackInfo)
	onClose     func(error)
}

// Scheduler drives timed, speed-adjustable, loopable emission of frames
// from a FrameSource.
type Scheduler struct {
	id           string
	cfg          Config
	src          source.FrameSource
	exec         Executor
	loop         PacingLoop
	loopProvider func() PacingLoop
	clock        pacing.TimeProvider
	observer     Observer

	buf         *queue.Bounded[entry]
	outstanding atomic.Int32

	// ctx is the liveness token shared with read-ahead tasks.
	ctx    context.Context
	cancel context.CancelFunc

	// srcMu serializes every call into src. Lock order: srcMu, mu, buffer.
	srcMu   sync.Mutex
	srcOpen bool

	// exhausted is set once the loop budget is used up; the buffer then
	// drains and the session finishes.
	exhausted atomic.Bool

	mu         sync.Mutex
	state      State
	started    bool
	cb         callbacks
	tickTask   *pacing.Task
	scale      float64
	anchor     time.Time
	baseDTS    uint64
	baseEpoch  uint64
	based      bool
	lastDTS    uint64
	lastEmitAt time.Time
	emitted    bool
	epoch      uint64
	minDTS     uint64
	hasMinDTS  bool
	loopCount  int
	readErrors int
	duration   uint64
}

// NewScheduler creates a stopped session for src. Read-ahead tasks are
// submitted to exec.
func NewScheduler(src source.FrameSource, exec Executor, cfg Config, opts ...Option) (*Scheduler, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil frame source", ErrInvalidConfig)
	}
	if exec == nil {
		return nil, fmt.Errorf("%w: nil executor", ErrInvalidConfig)
	}
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	buf, err := queue.New[entry](cfg.BufferCapacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cfg:      cfg,
		src:      src,
		exec:     exec,
		clock:    pacing.RealTimeProvider{},
		observer: nopObserver{},
		buf:      buf,
		ctx:      ctx,
		cancel:   cancel,
		state:    StateStopped,
		scale:    1.0,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Scheduler) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoopCount returns the number of source exhaustions so far.
func (s *Scheduler) LoopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopCount
}

// Duration returns the source duration in milliseconds as reported after
// the last (re)initialization.
func (s *Scheduler) Duration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

// CurrentScale returns the current speed factor.
func (s *Scheduler) CurrentScale() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scale
}

// SetOnFrame registers the emission callback. The frame's dts and pts are
// already divided by the current scale.
func (s *Scheduler) SetOnFrame(cb func(*media.Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.onFrame = cb
}

// SetOnReady registers the callback fired after each source initialization.
func (s *Scheduler) SetOnReady(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.onReady = cb
}

// SetOnTrackInfo registers the callback receiving track descriptions.
func (s *Scheduler) SetOnTrackInfo(cb func(*media.TrackInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.onTrackInfo = cb
}

// SetOnClose registers the callback fired once when the session ends on
// its own. err is nil when the loop budget was used up, otherwise it
// wraps ErrSeekFailed, ErrReadFailed or ErrReopenFailed. Stop never fires it.
func (s *Scheduler) SetOnClose(cb func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cb.onClose = cb
}

// Start opens and initializes the source and schedules the periodic tick.
// On error no tick task exists and the session may be started again.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started || s.state != StateStopped {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	loop := s.loop
	if loop == nil && s.loopProvider != nil {
		loop = s.loopProvider()
	}
	if loop == nil {
		s.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Scheduler.Start",
			"session":  s.id,
		}).Error("No pacing loop available")
		return ErrNoPacingLoop
	}
	s.loop = loop
	s.state = StateInitializing
	s.mu.Unlock()

	s.srcMu.Lock()
	s.src.SetOnFrame(s.appendFrame)
	s.src.SetOnReady(s.sourceReady)
	s.src.SetOnTrackInfo(s.sourceTrackInfo)
	err := s.openSourceLocked()
	s.srcMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if s.state == StateInitializing {
			s.state = StateStopped
		}
		logrus.WithFields(logrus.Fields{
			"function": "Scheduler.Start",
			"session":  s.id,
			"error":    err.Error(),
		}).Error("Failed to open frame source")
		return fmt.Errorf("start session %s: %w", s.id, err)
	}
	if s.state != StateInitializing {
		return ErrClosed
	}

	s.started = true
	s.state = StatePlaying
	s.tickTask = loop.AddTimerTask(s.cfg.TickInterval, s.tickFunc)

	logrus.WithFields(logrus.Fields{
		"function":   "Scheduler.Start",
		"session":    s.id,
		"duration":   s.duration,
		"loopBudget": s.cfg.LoopBudget,
		"tick":       s.cfg.TickInterval,
	}).Info("Playback started")
	return nil
}

// Stop ends the session. It is idempotent and safe from any goroutine,
// including from inside a callback. No callback fires after it returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	task := s.tickTask
	s.tickTask = nil
	s.cb = callbacks{}
	s.cancel()
	s.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	s.buf.Clear()

	s.srcMu.Lock()
	s.closeSourceLocked()
	s.srcMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Scheduler.Stop",
		"session":  s.id,
	}).Info("Playback stopped")
}

// Pause suspends (true) or resumes (false) emission. Read-ahead continues
// while paused. Resuming rebases on the last emitted frame so no buffered
// frame is skipped.
func (s *Scheduler) Pause(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case paused && s.state == StatePlaying:
		s.state = StatePaused
	case !paused && s.state == StatePaused:
		s.state = StatePlaying
		s.rebaseOnLastLocked(s.clock.Now())
	default:
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Scheduler.Pause",
		"session":  s.id,
		"paused":   paused,
	}).Debug("Pause state changed")
}

// Scale changes the playback speed. The anchor is rebased on the last
// emitted frame so that no timestamp jump occurs at the change.
func (s *Scheduler) Scale(factor float64) error {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidScale, factor)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrClosed
	}

	s.scale = factor
	if s.emitted {
		s.anchor = s.lastEmitAt
		s.baseDTS = s.lastDTS
	}

	logrus.WithFields(logrus.Fields{
		"function": "Scheduler.Scale",
		"session":  s.id,
		"scale":    factor,
		"baseDTS":  s.baseDTS,
	}).Debug("Playback speed changed")
	return nil
}

// Seek drops buffered frames, repositions the source on timestamp
// (milliseconds) and resets anchor and base dts to it. If the source cannot
// reposition the session stops and the close callback reports ErrSeekFailed.
func (s *Scheduler) Seek(timestamp uint64) error {
	s.mu.Lock()
	if s.state != StatePlaying && s.state != StatePaused {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	resume := s.state
	s.state = StateSeeking
	s.mu.Unlock()

	s.srcMu.Lock()
	defer s.srcMu.Unlock()

	// Stop may have closed the source while we waited for it.
	if s.ctx.Err() != nil {
		return ErrClosed
	}

	s.buf.Clear()

	var err error
	if !s.srcOpen {
		err = s.openSourceLocked()
	}
	if err == nil {
		err = s.src.Seek(timestamp)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Scheduler.Seek",
			"session":   s.id,
			"timestamp": timestamp,
			"error":     err.Error(),
		}).Error("Frame source failed to reposition")
		cause := fmt.Errorf("%w: %v", ErrSeekFailed, err)
		s.closeSourceLocked()
		s.finish(cause, "seek failed")
		return cause
	}
	s.exhausted.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSeeking {
		return ErrClosed
	}

	s.epoch++
	s.baseEpoch = s.epoch
	s.based = true
	s.anchor = s.clock.Now()
	s.baseDTS = timestamp
	s.lastDTS = timestamp
	s.lastEmitAt = s.anchor
	s.emitted = false
	s.minDTS = timestamp
	s.hasMinDTS = true
	s.readErrors = 0
	s.state = resume

	logrus.WithFields(logrus.Fields{
		"function":  "Scheduler.Seek",
		"session":   s.id,
		"timestamp": timestamp,
	}).Info("Playback repositioned")
	return nil
}

func (s *Scheduler) tickFunc() time.Duration {
	if s.ctx.Err() != nil {
		return 0
	}
	s.tick()
	if s.ctx.Err() != nil {
		return 0
	}
	return s.cfg.TickInterval
}

// tick drains due frames, then schedules read-ahead to refill the buffer.
func (s *Scheduler) tick() {
	now := s.clock.Now()

	s.mu.Lock()
	state := s.state
	var out []*media.Frame
	var lateness []time.Duration
	if state == StatePlaying {
		for {
			e, ok := s.buf.Peek()
			if !ok {
				break
			}
			f := e.frame
			if !s.based || e.epoch != s.baseEpoch {
				// A restarted loop begins on a fresh tick.
				if len(out) > 0 {
					break
				}
				s.rebaseLocked(now, f.DTS, e.epoch)
			}

			elapsed := now.Sub(s.anchor)
			due := s.dueLocked(f.DTS)
			bridged := s.emitted && f.DTS > s.lastDTS+s.cfg.DiscontinuitySlack
			if due > elapsed && !bridged {
				break
			}
			if bridged {
				s.rebaseLocked(now, f.DTS, e.epoch)
			}

			s.buf.TryPop()
			s.lastDTS = f.DTS
			s.lastEmitAt = now
			s.emitted = true
			f.DTS = uint64(float64(f.DTS) / s.scale)
			f.PTS = uint64(float64(f.PTS) / s.scale)
			out = append(out, f)
			lateness = append(lateness, elapsed-due)
		}
	}
	drained := s.exhausted.Load() && s.buf.Len() == 0 && (state == StatePlaying || state == StatePaused)
	s.mu.Unlock()

	for i, f := range out {
		cb := s.frameCallback()
		if cb == nil && s.ctx.Err() != nil {
			return
		}
		s.observer.FrameEmitted(f, lateness[i])
		if cb != nil {
			cb(f)
		}
	}

	if drained {
		s.finish(nil, "loop budget exhausted")
		return
	}
	if state == StatePlaying || state == StatePaused {
		s.refill()
	}
}

func (s *Scheduler) frameCallback() func(*media.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb.onFrame
}

func (s *Scheduler) dueLocked(dts uint64) time.Duration {
	if dts <= s.baseDTS {
		return 0
	}
	return time.Duration(float64(dts-s.baseDTS) / s.scale * float64(time.Millisecond))
}

func (s *Scheduler) rebaseLocked(now time.Time, dts, epoch uint64) {
	s.anchor = now
	s.baseDTS = dts
	s.baseEpoch = epoch
	s.based = true
}

func (s *Scheduler) rebaseOnLastLocked(now time.Time) {
	s.anchor = now
	if s.emitted {
		s.baseDTS = s.lastDTS
	}
}

// refill submits enough read-ahead tasks to bring buffered plus outstanding
// frames up to the low-water mark.
func (s *Scheduler) refill() {
	if s.exhausted.Load() {
		return
	}

	need := s.cfg.LowWaterMark - s.buf.Len() - int(s.outstanding.Load())
	for i := 0; i < need; i++ {
		s.outstanding.Add(1)
		if err := s.exec.Submit(s.cfg.ReadAheadPriority, s.readAhead); err != nil {
			s.outstanding.Add(-1)
			logrus.WithFields(logrus.Fields{
				"function":  "Scheduler.refill",
				"session":   s.id,
				"submitted": i,
				"needed":    need,
				"error":     err.Error(),
			}).Warn("Read-ahead submission rejected")
			return
		}
	}
}

// readAhead pulls one frame unit from the source.
func (s *Scheduler) readAhead() {
	defer s.outstanding.Add(-1)
	if s.ctx.Err() != nil {
		return
	}

	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	if s.ctx.Err() != nil || s.exhausted.Load() || !s.srcOpen {
		return
	}

	err := s.src.ReadNext()
	switch {
	case err == nil:
		s.mu.Lock()
		s.readErrors = 0
		s.mu.Unlock()
	case errors.Is(err, io.EOF):
		s.sourceExhaustedLocked()
	default:
		s.readFailedLocked(err)
	}
}

// sourceExhaustedLocked counts one loop and restarts the source when the
// budget allows. Caller holds srcMu.
func (s *Scheduler) sourceExhaustedLocked() {
	s.mu.Lock()
	s.loopCount++
	count := s.loopCount
	done := s.cfg.LoopBudget > 0 && count >= s.cfg.LoopBudget
	s.mu.Unlock()

	if done {
		logrus.WithFields(logrus.Fields{
			"function":  "Scheduler.readAhead",
			"session":   s.id,
			"loopCount": count,
		}).Info("Loop budget reached, draining buffer")
		s.exhausted.Store(true)
		s.closeSourceLocked()
		return
	}

	s.closeSourceLocked()
	if err := s.openSourceLocked(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "Scheduler.readAhead",
			"session":   s.id,
			"loopCount": count,
			"error":     err.Error(),
		}).Error("Failed to reopen frame source")
		s.finish(fmt.Errorf("%w: %v", ErrReopenFailed, err), "reopen failed")
		return
	}

	s.mu.Lock()
	s.epoch++
	s.hasMinDTS = false
	s.mu.Unlock()
	s.observer.LoopRestarted()

	logrus.WithFields(logrus.Fields{
		"function":  "Scheduler.readAhead",
		"session":   s.id,
		"loopCount": count,
	}).Debug("Frame source restarted from beginning")
}

func (s *Scheduler) readFailedLocked(err error) {
	s.observer.ReadFailed()

	s.mu.Lock()
	s.readErrors++
	n := s.readErrors
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Scheduler.readAhead",
		"session":     s.id,
		"consecutive": n,
		"error":       err.Error(),
	}).Warn("Frame source read failed")

	if n >= s.cfg.MaxReadErrors {
		s.closeSourceLocked()
		s.finish(fmt.Errorf("%w: %v", ErrReadFailed, err), "read failed")
	}
}

// appendFrame is the source frame callback. It runs inside ReadNext with
// srcMu held.
func (s *Scheduler) appendFrame(f *media.Frame) {
	if f == nil {
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.hasMinDTS && f.DTS+s.cfg.DiscontinuitySlack < s.minDTS {
		s.mu.Unlock()
		s.observer.FrameDropped("stale")
		return
	}
	e := entry{frame: f, epoch: s.epoch}
	s.mu.Unlock()

	if !s.buf.Push(e) {
		s.observer.FrameDropped("buffer full")
		logrus.WithFields(logrus.Fields{
			"function": "Scheduler.appendFrame",
			"session":  s.id,
			"dts":      f.DTS,
			"capacity": s.buf.Cap(),
		}).Warn("Read-ahead buffer full, frame dropped")
	}
}

func (s *Scheduler) sourceReady() {
	s.post(func(cb callbacks) {
		if cb.onReady != nil {
			cb.onReady()
		}
	})
}

func (s *Scheduler) sourceTrackInfo(info *media.TrackInfo) {
	s.post(func(cb callbacks) {
		if cb.onTrackInfo != nil {
			cb.onTrackInfo(info)
		}
	})
}

// post runs fn on the pacing loop with the callbacks current at run time.
func (s *Scheduler) post(fn func(cb callbacks)) {
	s.mu.Lock()
	loop := s.loop
	s.mu.Unlock()
	if loop == nil {
		return
	}
	loop.Post(func() {
		s.mu.Lock()
		cb := s.cb
		s.mu.Unlock()
		fn(cb)
	})
}

// openSourceLocked opens and initializes the source. Caller holds srcMu.
func (s *Scheduler) openSourceLocked() error {
	if err := s.src.Open(); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if err := s.src.Init(); err != nil {
		_ = s.src.Close()
		return fmt.Errorf("init: %w", err)
	}
	s.srcOpen = true

	d := s.src.Duration()
	s.mu.Lock()
	s.duration = d
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) closeSourceLocked() {
	if !s.srcOpen {
		return
	}
	s.srcOpen = false
	if err := s.src.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Scheduler.closeSource",
			"session":  s.id,
			"error":    err.Error(),
		}).Warn("Failed to close frame source")
	}
}

// finish moves the session to Stopped on its own and posts the close
// callback once.
func (s *Scheduler) finish(cause error, reason string) {
	s.mu.Lock()
	if s.state == StateClosed || (s.started && s.state == StateStopped) {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.started = true
	task := s.tickTask
	s.tickTask = nil
	onClose := s.cb.onClose
	s.cb = callbacks{}
	loop := s.loop
	s.cancel()
	s.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	s.buf.Clear()
	s.observer.SessionEnded(reason)

	logger := logrus.WithFields(logrus.Fields{
		"function": "Scheduler.finish",
		"session":  s.id,
		"reason":   reason,
	})
	if cause != nil {
		logger.WithError(cause).Warn("Playback ended")
	} else {
		logger.Info("Playback ended")
	}

	if onClose == nil || loop == nil {
		return
	}
	loop.Post(func() {
		s.mu.Lock()
		closed := s.state == StateClosed
		s.mu.Unlock()
		if !closed {
			onClose(cause)
		}
	})
}
