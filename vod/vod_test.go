package vod

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxenergy/MediaServer/interfaces"
	"github.com/maxenergy/MediaServer/metrics"
	"github.com/maxenergy/MediaServer/pacing"
	"github.com/maxenergy/MediaServer/playback"
	"github.com/maxenergy/MediaServer/rtp"
	"github.com/maxenergy/MediaServer/source"
	simulated "github.com/maxenergy/MediaServer/testing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 40 * time.Millisecond

// manualLoop records timer tasks and posted functions for the test to run.
type manualLoop struct {
	tasks  []*pacing.Task
	fns    []pacing.TimerFunc
	posted []func()
}

func (l *manualLoop) AddTimerTask(_ time.Duration, fn pacing.TimerFunc) *pacing.Task {
	task := &pacing.Task{}
	l.tasks = append(l.tasks, task)
	l.fns = append(l.fns, fn)
	return task
}

func (l *manualLoop) Post(fn func()) { l.posted = append(l.posted, fn) }

// queueExecutor defers submitted tasks until the harness drains it.
type queueExecutor struct {
	fns []func()
}

func (e *queueExecutor) Submit(_ int, fn func()) error {
	e.fns = append(e.fns, fn)
	return nil
}

type mockClock struct{ now time.Time }

func (c *mockClock) Now() time.Time { return c.now }

type staticSinks struct {
	sink interfaces.IPacketSink
	err  error
}

func (s *staticSinks) CreatePacketSink() (interfaces.IPacketSink, error) {
	return s.sink, s.err
}

type harness struct {
	t       *testing.T
	dir     string
	loop    *manualLoop
	exec    *queueExecutor
	clock   *mockClock
	sim     *simulated.SimulatedPacketSink
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	m       *Manager
}

func newHarness(t *testing.T, encCfg rtp.EncoderConfig) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		dir:   t.TempDir(),
		loop:  &manualLoop{},
		exec:  &queueExecutor{},
		clock: &mockClock{now: time.Unix(1_700_000_000, 0)},
		sim:   simulated.NewSimulatedPacketSink(&interfaces.PacketSinkConfig{UseSimulation: true, RetryAttempts: 1}),
		reg:   prometheus.NewRegistry(),
	}
	h.metrics = metrics.New(h.reg)

	m, err := NewManager(ManagerConfig{
		Registry:     source.DefaultRegistry(h.dir, 25),
		Executor:     h.exec,
		Loops:        func() playback.PacingLoop { return h.loop },
		Playback:     playback.DefaultConfig(),
		Encoder:      encCfg,
		Sinks:        &staticSinks{sink: h.sim},
		Metrics:      h.metrics,
		TimeProvider: h.clock,
	})
	require.NoError(t, err)
	h.m = m
	return h
}

func (h *harness) write(name string, data []byte) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(filepath.Join(h.dir, name), data, 0o644))
}

// step runs every live tick task, the read-ahead it queued and posted
// callbacks, then advances the clock by one tick.
func (h *harness) step() {
	for i, task := range h.loop.tasks {
		if !task.Cancelled() {
			h.loop.fns[i]()
		}
	}
	for len(h.exec.fns) > 0 {
		fn := h.exec.fns[0]
		h.exec.fns = h.exec.fns[1:]
		fn()
	}
	for len(h.loop.posted) > 0 {
		batch := h.loop.posted
		h.loop.posted = nil
		for _, fn := range batch {
			fn()
		}
	}
	h.clock.now = h.clock.now.Add(tick)
}

func (h *harness) runUntilDone(sess *Session, maxSteps int) {
	h.t.Helper()
	for i := 0; i < maxSteps; i++ {
		select {
		case <-sess.Done():
			return
		default:
		}
		h.step()
	}
	select {
	case <-sess.Done():
	default:
		h.t.Fatalf("session still running after %d steps", maxSteps)
	}
}

// h265Clip builds GOPs of VPS/SPS/PPS, one IDR slice and trailing slices.
func h265Clip(gops, picturesPerGOP, idrSize int) []byte {
	var out []byte
	sc := []byte{0, 0, 0, 1}
	for g := 0; g < gops; g++ {
		out = append(out, sc...)
		out = append(out, 32<<1, 1, 0xAA)
		out = append(out, sc...)
		out = append(out, 33<<1, 1, 0xBB)
		out = append(out, sc...)
		out = append(out, 34<<1, 1, 0xCC)
		out = append(out, sc...)
		idr := []byte{19 << 1, 1, 0x80}
		for len(idr) < idrSize {
			idr = append(idr, byte(len(idr)|0x10))
		}
		out = append(out, idr...)
		for p := 1; p < picturesPerGOP; p++ {
			out = append(out, sc...)
			out = append(out, 1<<1, 1, 0x80, byte(p))
		}
	}
	return out
}

func TestPlayDeliversRTPUntilLoopBudget(t *testing.T) {
	h := newHarness(t, rtp.EncoderConfig{})
	h.write("clip.h265", h265Clip(2, 3, 8))

	sess, err := h.m.Play("/file/cam1/clip.h265/1")
	require.NoError(t, err)

	var closes []error
	sess.SetOnClose(func(err error) { closes = append(closes, err) })

	assert.Equal(t, "cam1", sess.Request().VodID)
	assert.Equal(t, uint64(240), sess.Duration())
	assert.Len(t, h.m.List(), 1)

	h.runUntilDone(sess, 40)

	require.Len(t, closes, 1)
	assert.NoError(t, closes[0])
	assert.NoError(t, sess.Err())
	assert.Equal(t, 1, sess.LoopCount())
	assert.True(t, h.sim.IsClosed())
	assert.Empty(t, h.m.List())

	packets := h.sim.Packets()
	require.Len(t, packets, 12, "one packet per NAL unit")
	assert.Equal(t, uint64(12), sess.PacketsSent())

	var first *rtp.Packet
	for i, buf := range packets {
		pkt, err := rtp.Unmarshal(buf)
		require.NoError(t, err)
		if first == nil {
			first = pkt
		}
		assert.Equal(t, first.SequenceNumber+uint16(i), pkt.SequenceNumber)
		assert.Equal(t, first.SSRC, pkt.SSRC)
		assert.Equal(t, uint8(99), pkt.PayloadType)
	}
	assert.Equal(t, ssrcFor(sess.ID()), first.SSRC)
}

func TestPlayFragmentsLargeFrames(t *testing.T) {
	h := newHarness(t, rtp.EncoderConfig{MaxPayloadSize: 500, PayloadType: 96})
	h.write("big.265", h265Clip(1, 2, 2000))

	sess, err := h.m.Play("/file/cam2/big.265/1")
	require.NoError(t, err)
	h.runUntilDone(sess, 40)
	require.NoError(t, sess.Err())

	dep := rtp.NewH265Depacketizer()
	var nals [][]byte
	for _, buf := range h.sim.Packets() {
		pkt, err := rtp.Unmarshal(buf)
		require.NoError(t, err)
		assert.Equal(t, uint8(96), pkt.PayloadType)
		nal, err := dep.Push(pkt)
		require.NoError(t, err)
		if nal != nil {
			nals = append(nals, nal)
		}
	}

	require.Len(t, nals, 5)
	assert.Len(t, nals[3], 2000)
	assert.Equal(t, byte(19<<1), nals[3][0])
}

func TestSinkFailureEndsSession(t *testing.T) {
	h := newHarness(t, rtp.EncoderConfig{})
	h.write("clip.h265", h265Clip(2, 3, 8))
	boom := errors.New("connection reset")
	h.sim.FailAfter(3, boom)

	sess, err := h.m.Play("/file/cam1/clip.h265/0")
	require.NoError(t, err)

	var closes []error
	sess.SetOnClose(func(err error) { closes = append(closes, err) })

	h.runUntilDone(sess, 10)

	require.Len(t, closes, 1)
	assert.ErrorIs(t, closes[0], ErrSinkFailed)
	assert.ErrorIs(t, sess.Err(), ErrSinkFailed)
	assert.Equal(t, playback.StateClosed, sess.State())
	assert.True(t, h.sim.IsClosed())
	assert.Len(t, h.sim.Packets(), 3)
	assert.Empty(t, h.m.List())

	families, err := h.reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "mediaserver_rtp_sink_errors_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestManagerStop(t *testing.T) {
	h := newHarness(t, rtp.EncoderConfig{})
	h.write("clip.h265", h265Clip(2, 3, 8))

	sess, err := h.m.Play("/file/cam1/clip.h265/0")
	require.NoError(t, err)
	called := false
	sess.SetOnClose(func(error) { called = true })

	h.step()
	h.step()

	got, ok := h.m.Get(sess.ID())
	require.True(t, ok)
	assert.Same(t, sess, got)

	require.NoError(t, h.m.Stop(sess.ID()))
	h.step()

	<-sess.Done()
	assert.False(t, called)
	assert.Equal(t, playback.StateClosed, sess.State())
	assert.True(t, h.sim.IsClosed())
	assert.Empty(t, h.m.List())
	assert.ErrorIs(t, h.m.Stop(sess.ID()), ErrSessionNotFound)
}

func TestPlayErrors(t *testing.T) {
	h := newHarness(t, rtp.EncoderConfig{})

	_, err := h.m.Play("/file/cam1")
	assert.ErrorIs(t, err, source.ErrMalformedPath)
	assert.True(t, h.sim.IsClosed(), "sink is closed when the session cannot start")

	_, err = h.m.PlayTo("/file/cam1/a.mkv/1", simulated.NewSimulatedPacketSink(&interfaces.PacketSinkConfig{UseSimulation: true, RetryAttempts: 1}))
	assert.ErrorIs(t, err, source.ErrUnsupportedExtension)

	_, err = h.m.PlayTo("/file/cam1/missing.h265/1", simulated.NewSimulatedPacketSink(&interfaces.PacketSinkConfig{UseSimulation: true, RetryAttempts: 1}))
	assert.Error(t, err)
	assert.Empty(t, h.m.List())

	h.m.Close()
	_, err = h.m.PlayTo("/file/cam1/clip.h265/1", simulated.NewSimulatedPacketSink(&interfaces.PacketSinkConfig{UseSimulation: true, RetryAttempts: 1}))
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestPlayWithoutSinkProvider(t *testing.T) {
	m, err := NewManager(ManagerConfig{
		Registry: source.NewRegistry(t.TempDir()),
		Executor: &queueExecutor{},
		Loops:    func() playback.PacingLoop { return &manualLoop{} },
	})
	require.NoError(t, err)

	_, err = m.Play("/file/a/b.h265/1")
	assert.ErrorIs(t, err, ErrNoSinkProvider)
}

func TestNewManagerValidation(t *testing.T) {
	loops := func() playback.PacingLoop { return &manualLoop{} }

	_, err := NewManager(ManagerConfig{Executor: &queueExecutor{}, Loops: loops})
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{Registry: source.NewRegistry(""), Loops: loops})
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{Registry: source.NewRegistry(""), Executor: &queueExecutor{}})
	assert.Error(t, err)

	bad := playback.DefaultConfig()
	bad.BufferCapacity = 1
	_, err = NewManager(ManagerConfig{Registry: source.NewRegistry(""), Executor: &queueExecutor{}, Loops: loops, Playback: bad})
	assert.ErrorIs(t, err, playback.ErrInvalidConfig)
}

func TestSSRCForIsStable(t *testing.T) {
	id := "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	assert.Equal(t, uint32(0x6ba7b810), ssrcFor(id))
	assert.Equal(t, ssrcFor(id), ssrcFor(id))
}
