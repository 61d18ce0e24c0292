package real

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxenergy/MediaServer/interfaces"
	"github.com/sirupsen/logrus"
)

// RetryBackoff is the base delay between write attempts.
const RetryBackoff = 2 * time.Millisecond

// Sleeper provides an abstraction over time.Sleep for deterministic testing.
type Sleeper interface {
	// Sleep pauses execution for the specified duration.
	Sleep(d time.Duration)
}

// DefaultSleeper implements Sleeper using the standard library time.Sleep.
type DefaultSleeper struct{}

// Sleep pauses execution for the specified duration using time.Sleep.
func (DefaultSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}

// UDPPacketSink writes packets as datagrams on a connected socket.
type UDPPacketSink struct {
	mu      sync.RWMutex
	conn    net.Conn
	config  *interfaces.PacketSinkConfig
	sleeper Sleeper
	closed  bool

	packets  atomic.Uint64
	bytes    atomic.Uint64
	failures atomic.Uint64
}

// NewUDPPacketSink dials config.RemoteAddr and returns a sink bound to it.
func NewUDPPacketSink(config *interfaces.PacketSinkConfig) (*UDPPacketSink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, err := net.Dial("udp", config.RemoteAddr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewUDPPacketSink",
			"remote":   config.RemoteAddr,
			"error":    err.Error(),
		}).Error("Failed to dial UDP destination")
		return nil, fmt.Errorf("failed to dial %s: %w", config.RemoteAddr, err)
	}

	return NewUDPPacketSinkWithConn(conn, config), nil
}

// NewUDPPacketSinkWithConn wraps an already connected socket.
func NewUDPPacketSinkWithConn(conn net.Conn, config *interfaces.PacketSinkConfig) *UDPPacketSink {
	logrus.WithFields(logrus.Fields{
		"function": "NewUDPPacketSinkWithConn",
		"remote":   conn.RemoteAddr().String(),
		"timeout":  config.WriteTimeout,
		"retries":  config.RetryAttempts,
	}).Info("Creating UDP packet sink")

	return &UDPPacketSink{
		conn:    conn,
		config:  config,
		sleeper: DefaultSleeper{},
	}
}

// SetSleeper sets a custom Sleeper implementation (primarily for testing).
func (s *UDPPacketSink) SetSleeper(sl Sleeper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeper = sl
}

// RemoteAddr returns the destination address.
func (s *UDPPacketSink) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// WritePacket implements IPacketSink.WritePacket
func (s *UDPPacketSink) WritePacket(packet []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("write to %s: %w", s.conn.RemoteAddr(), interfaces.ErrSinkClosed)
	}

	var lastErr error
	for attempt := 0; attempt < s.attempts(); attempt++ {
		if err := s.writeOnce(packet); err == nil {
			s.packets.Add(1)
			s.bytes.Add(uint64(len(packet)))
			return nil
		} else {
			lastErr = err
			s.logWriteRetry(attempt+1, err)
			s.waitBeforeRetry(attempt)
		}
	}

	return s.handleWriteFailure(lastErr)
}

func (s *UDPPacketSink) attempts() int {
	if s.config.RetryAttempts < 1 {
		return 1
	}
	return s.config.RetryAttempts
}

func (s *UDPPacketSink) writeOnce(packet []byte) error {
	if s.config.WriteTimeout > 0 {
		deadline := time.Now().Add(time.Duration(s.config.WriteTimeout) * time.Millisecond)
		if err := s.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}
	_, err := s.conn.Write(packet)
	return err
}

func (s *UDPPacketSink) logWriteRetry(attempt int, err error) {
	logrus.WithFields(logrus.Fields{
		"function": "UDPPacketSink.WritePacket",
		"remote":   s.conn.RemoteAddr().String(),
		"attempt":  attempt,
		"error":    err.Error(),
	}).Debug("Packet write attempt failed")
}

// waitBeforeRetry backs off linearly between attempts.
func (s *UDPPacketSink) waitBeforeRetry(attempt int) {
	if attempt < s.attempts()-1 {
		s.sleeper.Sleep(RetryBackoff * time.Duration(attempt+1))
	}
}

func (s *UDPPacketSink) handleWriteFailure(lastErr error) error {
	s.failures.Add(1)
	logrus.WithFields(logrus.Fields{
		"function": "UDPPacketSink.WritePacket",
		"remote":   s.conn.RemoteAddr().String(),
		"attempts": s.attempts(),
		"error":    lastErr.Error(),
	}).Error("All write attempts failed")

	return fmt.Errorf("failed to write packet after %d attempts: %w", s.attempts(), lastErr)
}

// Close implements IPacketSink.Close
func (s *UDPPacketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	logrus.WithFields(logrus.Fields{
		"function": "UDPPacketSink.Close",
		"remote":   s.conn.RemoteAddr().String(),
		"packets":  s.packets.Load(),
		"failures": s.failures.Load(),
	}).Info("Closing UDP packet sink")

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP socket: %w", err)
	}
	return nil
}

// IsSimulation implements IPacketSink.IsSimulation
func (s *UDPPacketSink) IsSimulation() bool {
	return false
}

// GetTypedStats implements interfaces.StatsProvider.
func (s *UDPPacketSink) GetTypedStats() interfaces.PacketSinkStats {
	return interfaces.PacketSinkStats{
		IsSimulation: false,
		Packets:      s.packets.Load(),
		Bytes:        s.bytes.Load(),
		Failures:     s.failures.Load(),
	}
}
