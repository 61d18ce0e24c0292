package vod

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/maxenergy/MediaServer/interfaces"
	"github.com/maxenergy/MediaServer/jt1078"
	"github.com/maxenergy/MediaServer/media"
	"github.com/maxenergy/MediaServer/metrics"
	"github.com/maxenergy/MediaServer/playback"
	"github.com/maxenergy/MediaServer/rtp"
	"github.com/maxenergy/MediaServer/source"
	"github.com/sirupsen/logrus"
)

// ErrSinkFailed wraps the sink error that ended a session.
var ErrSinkFailed = errors.New("packet sink failed")

// track holds the encoder of one elementary stream.
type track struct {
	codec   media.Codec
	enc     rtp.Encoder
	packets int
	bytes   int
	sinkErr error
}

// Session is one running VOD playback.
type Session struct {
	id       string
	req      source.VodRequest
	sched    *playback.Scheduler
	sink     interfaces.IPacketSink
	encoders *rtp.EncoderRegistry
	encCfg   rtp.EncoderConfig
	metrics  *metrics.Metrics

	tracks map[int]*track // only touched on the pacing loop

	packetsSent atomic.Uint64
	bytesSent   atomic.Uint64

	mu        sync.Mutex
	onClose   func(err error)
	err       error
	closeOnce sync.Once
	done      chan struct{}
	onEnd     func(*Session) // set by the manager before Start
}

// ssrcFor derives a stream identifier from the session id.
func ssrcFor(id string) uint32 {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.New().ID()
	}
	return binary.BigEndian.Uint32(u[:4])
}

func newSession(id string, req source.VodRequest, sink interfaces.IPacketSink,
	encoders *rtp.EncoderRegistry, encCfg rtp.EncoderConfig, m *metrics.Metrics,
) *Session {
	if encCfg.SSRC == 0 {
		encCfg.SSRC = ssrcFor(id)
	}
	return &Session{
		id:       id,
		req:      req,
		sink:     sink,
		encoders: encoders,
		encCfg:   encCfg,
		metrics:  m,
		tracks:   make(map[int]*track),
		done:     make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Request returns the parsed request the session was started from.
func (s *Session) Request() source.VodRequest { return s.req }

// State returns the scheduler state.
func (s *Session) State() playback.State { return s.sched.State() }

// LoopCount returns the number of completed passes over the source.
func (s *Session) LoopCount() int { return s.sched.LoopCount() }

// Duration returns the source duration in milliseconds.
func (s *Session) Duration() uint64 { return s.sched.Duration() }

// Pause suspends or resumes emission.
func (s *Session) Pause(paused bool) { s.sched.Pause(paused) }

// Seek repositions playback to timestamp milliseconds.
func (s *Session) Seek(timestamp uint64) error { return s.sched.Seek(timestamp) }

// Scale changes the playback speed.
func (s *Session) Scale(factor float64) error { return s.sched.Scale(factor) }

// PacketsSent returns the number of packets the sink accepted.
func (s *Session) PacketsSent() uint64 { return s.packetsSent.Load() }

// BytesSent returns the number of bytes the sink accepted.
func (s *Session) BytesSent() uint64 { return s.bytesSent.Load() }

// Done is closed once the session has ended for any reason.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the session, nil while it runs or after
// a clean end.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetOnClose registers a callback invoked once when the session ends on its
// own. It is not called after Stop.
func (s *Session) SetOnClose(cb func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = cb
}

// Stop ends the session without invoking the close callback.
func (s *Session) Stop() {
	s.sched.Stop()
	s.finish(nil, false)
}

// handleFrame runs on the pacing loop for every emitted frame.
func (s *Session) handleFrame(f *media.Frame) {
	tr, err := s.trackFor(f)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.handleFrame",
			"session":  s.id,
			"codec":    f.Codec,
			"error":    err.Error(),
		}).Error("No encoder for frame")
		s.fail(err)
		return
	}

	tr.packets, tr.bytes = 0, 0
	if err := tr.enc.Encode(f); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Session.handleFrame",
			"session":  s.id,
			"frame":    f.String(),
			"error":    err.Error(),
		}).Warn("Dropping frame the encoder rejected")
	}

	if s.metrics != nil && tr.packets > 0 {
		s.metrics.RecordFrameEncoded(tr.codec, tr.packets, tr.bytes)
	}

	if tr.sinkErr != nil {
		if s.metrics != nil {
			s.metrics.RecordSinkError()
		}
		s.fail(fmt.Errorf("%w: %v", ErrSinkFailed, tr.sinkErr))
	}
}

func (s *Session) trackFor(f *media.Frame) (*track, error) {
	if tr, ok := s.tracks[f.TrackIndex]; ok && tr.codec == f.Codec {
		return tr, nil
	}

	cfg := s.encCfg
	cfg.SSRC += uint32(f.TrackIndex)
	if cfg.PayloadType == 0 {
		if pt, ok := jt1078.PayloadTypeFor(f.Codec); ok {
			cfg.PayloadType = pt
		}
	}

	enc, err := s.encoders.New(f.Codec, cfg)
	if err != nil {
		return nil, err
	}

	tr := &track{codec: f.Codec, enc: enc}
	enc.SetOnPacket(func(pkt *rtp.Packet, _ bool) {
		s.writePacket(tr, pkt)
	})
	s.tracks[f.TrackIndex] = tr

	logrus.WithFields(logrus.Fields{
		"function":     "Session.trackFor",
		"session":      s.id,
		"track":        f.TrackIndex,
		"codec":        f.Codec,
		"ssrc":         cfg.SSRC,
		"payload_type": cfg.PayloadType,
	}).Info("Created track encoder")

	return tr, nil
}

func (s *Session) writePacket(tr *track, pkt *rtp.Packet) {
	if tr.sinkErr != nil {
		return
	}

	buf, err := pkt.Marshal()
	if err != nil {
		tr.sinkErr = err
		return
	}
	if err := s.sink.WritePacket(buf); err != nil {
		tr.sinkErr = err
		return
	}

	tr.packets++
	tr.bytes += len(buf)
	s.packetsSent.Add(1)
	s.bytesSent.Add(uint64(len(buf)))
}

// fail stops the scheduler and reports err.
func (s *Session) fail(err error) {
	s.sched.Stop()
	s.finish(err, true)
}

// finish closes the sink and publishes the end of the session once.
func (s *Session) finish(err error, notify bool) {
	s.closeOnce.Do(func() {
		if cerr := s.sink.Close(); cerr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Session.finish",
				"session":  s.id,
				"error":    cerr.Error(),
			}).Warn("Failed to close packet sink")
		}

		s.mu.Lock()
		s.err = err
		cb := s.onClose
		s.onClose = nil
		s.mu.Unlock()

		logger := logrus.WithFields(logrus.Fields{
			"function": "Session.finish",
			"session":  s.id,
			"packets":  s.packetsSent.Load(),
			"loops":    s.sched.LoopCount(),
		})
		if err != nil {
			logger.WithError(err).Warn("Session ended")
		} else {
			logger.Info("Session ended")
		}

		close(s.done)
		if s.onEnd != nil {
			s.onEnd(s)
		}
		if notify && cb != nil {
			cb(err)
		}
	})
}
