package vod

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/maxenergy/MediaServer/interfaces"
	"github.com/maxenergy/MediaServer/metrics"
	"github.com/maxenergy/MediaServer/pacing"
	"github.com/maxenergy/MediaServer/playback"
	"github.com/maxenergy/MediaServer/rtp"
	"github.com/maxenergy/MediaServer/source"
	"github.com/sirupsen/logrus"
)

// Manager errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrManagerClosed   = errors.New("session manager closed")
	ErrNoSinkProvider  = errors.New("no packet sink provider configured")
)

// SinkProvider creates the packet sink of a new session.
// *factory.PacketSinkFactory satisfies it.
type SinkProvider interface {
	CreatePacketSink() (interfaces.IPacketSink, error)
}

// ManagerConfig holds the shared dependencies of every session.
type ManagerConfig struct {
	Registry *source.Registry
	// Encoders defaults to rtp.DefaultEncoderRegistry.
	Encoders *rtp.EncoderRegistry
	Executor playback.Executor
	Loops    func() playback.PacingLoop
	// Playback is the scheduler template; LoopBudget is taken from each request.
	Playback playback.Config
	Encoder  rtp.EncoderConfig
	Sinks    SinkProvider
	// Metrics is optional.
	Metrics *metrics.Metrics
	// TimeProvider is optional, mainly for tests.
	TimeProvider pacing.TimeProvider
}

// Manager starts and tracks VOD sessions.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewManager validates cfg and returns an empty manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("vod: registry is required")
	case cfg.Executor == nil:
		return nil, errors.New("vod: executor is required")
	case cfg.Loops == nil:
		return nil, errors.New("vod: pacing loop provider is required")
	}
	if cfg.Encoders == nil {
		cfg.Encoders = rtp.DefaultEncoderRegistry()
	}
	if err := cfg.Playback.Validate(); err != nil {
		return nil, err
	}

	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}, nil
}

// Play starts the session described by vodPath on a sink from the
// configured SinkProvider.
func (m *Manager) Play(vodPath string) (*Session, error) {
	if m.cfg.Sinks == nil {
		return nil, ErrNoSinkProvider
	}
	sink, err := m.cfg.Sinks.CreatePacketSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create packet sink: %w", err)
	}
	return m.PlayTo(vodPath, sink)
}

// PlayTo starts the session described by vodPath writing to sink. The
// session owns sink from here on, including on error.
func (m *Manager) PlayTo(vodPath string, sink interfaces.IPacketSink) (*Session, error) {
	sess, err := m.start(vodPath, sink)
	if err != nil {
		_ = sink.Close()
		logrus.WithFields(logrus.Fields{
			"function": "Manager.PlayTo",
			"path":     vodPath,
			"error":    err.Error(),
		}).Warn("Failed to start session")
		return nil, err
	}
	return sess, nil
}

func (m *Manager) start(vodPath string, sink interfaces.IPacketSink) (*Session, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}

	req, err := source.ParseVodPath(vodPath)
	if err != nil {
		return nil, err
	}
	src, err := m.cfg.Registry.CreateForRequest(req)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	sess := newSession(id, req, sink, m.cfg.Encoders, m.cfg.Encoder, m.cfg.Metrics)

	pcfg := m.cfg.Playback
	pcfg.LoopBudget = req.LoopCount
	opts := []playback.Option{
		playback.WithID(id),
		playback.WithLoopProvider(m.cfg.Loops),
	}
	if m.cfg.Metrics != nil {
		opts = append(opts, playback.WithObserver(m.cfg.Metrics))
	}
	if m.cfg.TimeProvider != nil {
		opts = append(opts, playback.WithTimeProvider(m.cfg.TimeProvider))
	}

	sched, err := playback.NewScheduler(src, m.cfg.Executor, pcfg, opts...)
	if err != nil {
		return nil, err
	}
	sess.sched = sched
	sess.onEnd = m.remove
	sched.SetOnFrame(sess.handleFrame)
	sched.SetOnClose(func(err error) { sess.finish(err, true) })

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	if err := sched.Start(); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, err
	}

	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordSessionStart()
	}
	logrus.WithFields(logrus.Fields{
		"function": "Manager.start",
		"session":  id,
		"vod_id":   req.VodID,
		"file":     req.FilePath,
		"loops":    req.LoopCount,
	}).Info("Session started")

	return sess, nil
}

func (m *Manager) remove(sess *Session) {
	m.mu.Lock()
	_, ok := m.sessions[sess.id]
	delete(m.sessions, sess.id)
	m.mu.Unlock()

	if ok && m.cfg.Metrics != nil {
		m.cfg.Metrics.RecordSessionStop()
	}
}

// Get returns the running session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// List returns the running sessions ordered by id.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	list := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		list = append(list, sess)
	}
	m.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}

// Stop ends the session with the given id.
func (m *Manager) Stop(id string) error {
	sess, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Stop()
	return nil
}

// Close stops every session and rejects new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	for _, sess := range m.List() {
		sess.Stop()
	}
}
