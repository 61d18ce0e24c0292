package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/maxenergy/MediaServer/jt1078"
	"github.com/maxenergy/MediaServer/media"
	"github.com/maxenergy/MediaServer/metrics"
	"github.com/sirupsen/logrus"
)

// StreamKey identifies one device channel.
type StreamKey struct {
	SIM     string
	Channel uint8
}

func (k StreamKey) String() string {
	return fmt.Sprintf("%s/%d", k.SIM, k.Channel)
}

// FrameHandler receives every rebuilt frame. It is called from the
// connection goroutine and must not retain f.Data beyond the call unless it
// owns a copy; the ingest path does not reuse the buffer.
type FrameHandler func(key StreamKey, f *media.Frame)

// ConnStats summarizes one finished connection.
type ConnStats struct {
	Bytes    uint64
	Records  uint64
	Rejected uint64
	Frames   uint64
	Dropped  uint64
}

// Server accepts JT/T 1078 connections.
type Server struct {
	addr    string
	version jt1078.Version
	handler FrameHandler
	metrics *metrics.Metrics

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server that listens on addr and parses records as
// version v. m may be nil.
func NewServer(addr string, v jt1078.Version, handler FrameHandler, m *metrics.Metrics) *Server {
	if handler == nil {
		handler = func(StreamKey, *media.Frame) {}
	}
	return &Server{
		addr:    addr,
		version: v,
		handler: handler,
		metrics: m,
	}
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("jt1078 listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Addr returns the listening address, nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections on ln until ctx is cancelled, then closes ln and
// waits for open connections to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Server.Serve",
		"addr":     ln.Addr().String(),
		"version":  s.version.String(),
	}).Info("JT/T 1078 ingest listening")

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"function": "Server.Serve",
				"error":    err.Error(),
			}).Warn("Accept error")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	remote := conn.RemoteAddr().String()
	if s.metrics != nil {
		s.metrics.IngestConnections.Inc()
		defer s.metrics.IngestConnections.Dec()
	}

	stats, err := s.ServeConn(conn)

	logger := logrus.WithFields(logrus.Fields{
		"function": "Server.handleConnection",
		"remote":   remote,
		"bytes":    stats.Bytes,
		"records":  stats.Records,
		"rejected": stats.Rejected,
		"frames":   stats.Frames,
		"dropped":  stats.Dropped,
	})
	if err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
		logger.WithError(err).Warn("Ingest connection failed")
		return
	}
	logger.Info("Ingest connection closed")
}

// countingReader counts bytes read from r.
type countingReader struct {
	r io.Reader
	n uint64
	m *metrics.Metrics
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	if c.m != nil && n > 0 {
		c.m.IngestBytes.Add(float64(n))
	}
	return n, err
}

// ServeConn reads records from r until EOF or a read error. A clean EOF
// returns a nil error.
func (s *Server) ServeConn(r io.Reader) (ConnStats, error) {
	var stats ConnStats
	cr := &countingReader{r: r, m: s.metrics}
	scanner := jt1078.NewScanner(cr, s.version)
	assemblers := make(map[StreamKey]*jt1078.Assembler)

	for scanner.Scan() {
		p := jt1078.Parse(scanner.Bytes(), s.version)
		stats.Records++
		if s.metrics != nil {
			s.metrics.RecordRecord(p.Version().String(), p.DataType().String(), p.Supported())
		}
		if !p.Supported() {
			stats.Rejected++
			logrus.WithFields(logrus.Fields{
				"function": "Server.ServeConn",
				"size":     p.Size(),
			}).Debug("Skipping unsupported record")
			continue
		}

		key := StreamKey{SIM: p.SIM(), Channel: p.Channel()}
		asm, ok := assemblers[key]
		if !ok {
			asm = jt1078.NewAssembler()
			assemblers[key] = asm
		}

		f, err := asm.Push(p)
		if err != nil {
			stats.Dropped++
			if s.metrics != nil {
				s.metrics.RecordAssemblyError(dropReason(err))
			}
			logrus.WithFields(logrus.Fields{
				"function": "Server.ServeConn",
				"stream":   key.String(),
				"record":   p.String(),
				"error":    err.Error(),
			}).Debug("Dropping partial frame")
			continue
		}
		if f == nil {
			continue
		}

		stats.Frames++
		if s.metrics != nil {
			s.metrics.RecordAssembled(string(trackOf(f)))
		}
		s.handler(key, f)
	}

	stats.Bytes = cr.n
	return stats, scanner.Err()
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, jt1078.ErrSequenceGap):
		return "sequence gap"
	case errors.Is(err, jt1078.ErrOrphanFragment):
		return "orphan fragment"
	default:
		return "too large"
	}
}

func trackOf(f *media.Frame) media.TrackType {
	if f.TrackIndex == jt1078.AudioTrackIndex {
		return media.TrackAudio
	}
	return media.TrackVideo
}
