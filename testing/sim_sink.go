package testing

import (
	"fmt"
	"sync"
	"time"

	"github.com/maxenergy/MediaServer/interfaces"
	"github.com/sirupsen/logrus"
)

// SimulatedPacketSink records packets in memory instead of sending them.
type SimulatedPacketSink struct {
	mu       sync.RWMutex
	writeLog []WriteRecord
	config   *interfaces.PacketSinkConfig
	closed   bool

	failAfter int
	failErr   error
}

// WriteRecord represents one write attempt for test verification
type WriteRecord struct {
	Packet    []byte
	Timestamp int64
	Success   bool
	Error     error
}

// NewSimulatedPacketSink creates a new simulation implementation for testing
func NewSimulatedPacketSink(config *interfaces.PacketSinkConfig) *SimulatedPacketSink {
	logrus.WithFields(logrus.Fields{
		"function": "NewSimulatedPacketSink",
		"remote":   config.RemoteAddr,
	}).Info("Creating simulated packet sink")

	return &SimulatedPacketSink{
		writeLog:  make([]WriteRecord, 0),
		config:    config,
		failAfter: -1,
	}
}

// FailAfter makes writes fail with err once n packets have been accepted.
// A negative n disables failure injection.
func (s *SimulatedPacketSink) FailAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
	s.failErr = err
}

// WritePacket implements IPacketSink.WritePacket with simulation
func (s *SimulatedPacketSink) WritePacket(packet []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("simulated write: %w", interfaces.ErrSinkClosed)
	}

	record := WriteRecord{
		Packet:    append([]byte(nil), packet...),
		Timestamp: time.Now().UnixNano(),
		Success:   true,
	}

	if s.failAfter >= 0 && s.successCountLocked() >= s.failAfter {
		record.Success = false
		record.Error = s.failErr
		s.writeLog = append(s.writeLog, record)

		logrus.WithFields(logrus.Fields{
			"function":    "SimulatedPacketSink.WritePacket",
			"packet_size": len(packet),
			"error":       s.failErr,
		}).Debug("Injected packet write failure")

		return s.failErr
	}

	s.writeLog = append(s.writeLog, record)
	logrus.WithFields(logrus.Fields{
		"function":     "SimulatedPacketSink.WritePacket",
		"packet_size":  len(packet),
		"total_writes": len(s.writeLog),
	}).Trace("Packet write simulated")

	return nil
}

func (s *SimulatedPacketSink) successCountLocked() int {
	n := 0
	for _, record := range s.writeLog {
		if record.Success {
			n++
		}
	}
	return n
}

// Close implements IPacketSink.Close
func (s *SimulatedPacketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// IsClosed reports whether Close has been called.
func (s *SimulatedPacketSink) IsClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// IsSimulation implements IPacketSink.IsSimulation
func (s *SimulatedPacketSink) IsSimulation() bool {
	return true
}

// Packets returns copies of the successfully written packets in order.
func (s *SimulatedPacketSink) Packets() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	packets := make([][]byte, 0, len(s.writeLog))
	for _, record := range s.writeLog {
		if record.Success {
			packets = append(packets, append([]byte(nil), record.Packet...))
		}
	}
	return packets
}

// GetWriteLog returns the complete write log for test verification
func (s *SimulatedPacketSink) GetWriteLog() []WriteRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := make([]WriteRecord, len(s.writeLog))
	copy(log, s.writeLog)
	return log
}

// ClearWriteLog clears the write log for test cleanup
func (s *SimulatedPacketSink) ClearWriteLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeLog = make([]WriteRecord, 0)
}

// GetTypedStats implements interfaces.StatsProvider.
func (s *SimulatedPacketSink) GetTypedStats() interfaces.PacketSinkStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := interfaces.PacketSinkStats{IsSimulation: true}
	for _, record := range s.writeLog {
		if record.Success {
			stats.Packets++
			stats.Bytes += uint64(len(record.Packet))
		} else {
			stats.Failures++
		}
	}
	return stats
}
