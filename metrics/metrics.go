package metrics

import (
	"time"

	"github.com/maxenergy/MediaServer/media"
	"github.com/maxenergy/MediaServer/playback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediaserver"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Playback metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionsEnded   *prometheus.CounterVec
	FramesEmitted   *prometheus.CounterVec
	FramesDropped   *prometheus.CounterVec
	EmitLateness    prometheus.Histogram
	LoopRestarts    prometheus.Counter
	ReadErrors      prometheus.Counter

	// Packetizer metrics
	PacketsSent      *prometheus.CounterVec
	BytesSent        prometheus.Counter
	FragmentedFrames prometheus.Counter
	SinkErrors       prometheus.Counter

	// Ingest metrics
	IngestConnections prometheus.Gauge
	RecordsParsed     *prometheus.CounterVec
	RecordsRejected   prometheus.Counter
	FramesAssembled   *prometheus.CounterVec
	AssemblyErrors    *prometheus.CounterVec
	IngestBytes       prometheus.Counter
}

var _ playback.Observer = (*Metrics)(nil)

// New creates all metrics and registers them on reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "active_sessions",
			Help:      "Number of playback sessions currently running",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "sessions_started_total",
			Help:      "Total number of playback sessions started",
		}),
		SessionsEnded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "playback",
				Name:      "sessions_ended_total",
				Help:      "Playback sessions that ended on their own, by reason",
			},
			[]string{"reason"},
		),
		FramesEmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "playback",
				Name:      "frames_emitted_total",
				Help:      "Frames released by the scheduler",
			},
			[]string{"codec"},
		),
		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "playback",
				Name:      "frames_dropped_total",
				Help:      "Frames discarded before emission, by reason",
			},
			[]string{"reason"},
		),
		EmitLateness: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "emit_lateness_seconds",
			Help:      "How far behind its due time a frame was emitted",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		LoopRestarts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "loop_restarts_total",
			Help:      "Times a source was rewound to its start",
		}),
		ReadErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playback",
			Name:      "read_errors_total",
			Help:      "Failed frame source reads",
		}),

		PacketsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rtp",
				Name:      "packets_sent_total",
				Help:      "RTP packets written to a sink",
			},
			[]string{"codec"},
		),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rtp",
			Name:      "bytes_sent_total",
			Help:      "Marshalled RTP bytes written to a sink",
		}),
		FragmentedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rtp",
			Name:      "fragmented_frames_total",
			Help:      "Frames that needed more than one packet",
		}),
		SinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rtp",
			Name:      "sink_errors_total",
			Help:      "Packet writes rejected by the sink",
		}),

		IngestConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "active_connections",
			Help:      "Open JT/T 1078 ingest connections",
		}),
		RecordsParsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "records_total",
				Help:      "JT/T 1078 records parsed, by version and data type",
			},
			[]string{"version", "data_type"},
		),
		RecordsRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "records_rejected_total",
			Help:      "JT/T 1078 records that could not be classified",
		}),
		FramesAssembled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "frames_assembled_total",
				Help:      "Complete frames rebuilt from JT/T 1078 records",
			},
			[]string{"track"},
		),
		AssemblyErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "assembly_errors_total",
				Help:      "Partial frames discarded by the assembler, by reason",
			},
			[]string{"reason"},
		),
		IngestBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_received_total",
			Help:      "Bytes read from ingest connections",
		}),
	}
}

func codecLabel(c media.Codec) string {
	if c == media.CodecUnknown {
		return "unknown"
	}
	return string(c)
}

// FrameEmitted implements playback.Observer.
func (m *Metrics) FrameEmitted(frame *media.Frame, lateness time.Duration) {
	m.FramesEmitted.WithLabelValues(codecLabel(frame.Codec)).Inc()
	if lateness < 0 {
		lateness = 0
	}
	m.EmitLateness.Observe(lateness.Seconds())
}

// FrameDropped implements playback.Observer.
func (m *Metrics) FrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// LoopRestarted implements playback.Observer.
func (m *Metrics) LoopRestarted() {
	m.LoopRestarts.Inc()
}

// ReadFailed implements playback.Observer.
func (m *Metrics) ReadFailed() {
	m.ReadErrors.Inc()
}

// SessionEnded implements playback.Observer.
func (m *Metrics) SessionEnded(reason string) {
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

// RecordSessionStart records a session starting
func (m *Metrics) RecordSessionStart() {
	m.ActiveSessions.Inc()
	m.SessionsStarted.Inc()
}

// RecordSessionStop records a session being removed
func (m *Metrics) RecordSessionStop() {
	m.ActiveSessions.Dec()
}

// RecordFrameEncoded records the packets one frame produced
func (m *Metrics) RecordFrameEncoded(codec media.Codec, packets, bytes int) {
	m.PacketsSent.WithLabelValues(codecLabel(codec)).Add(float64(packets))
	m.BytesSent.Add(float64(bytes))
	if packets > 1 {
		m.FragmentedFrames.Inc()
	}
}

// RecordSinkError records a failed packet write
func (m *Metrics) RecordSinkError() {
	m.SinkErrors.Inc()
}

// RecordRecord records one parsed ingest record
func (m *Metrics) RecordRecord(version, dataType string, supported bool) {
	if !supported {
		m.RecordsRejected.Inc()
		return
	}
	m.RecordsParsed.WithLabelValues(version, dataType).Inc()
}

// RecordAssembled records one rebuilt ingest frame
func (m *Metrics) RecordAssembled(track string) {
	m.FramesAssembled.WithLabelValues(track).Inc()
}

// RecordAssemblyError records one discarded partial frame
func (m *Metrics) RecordAssemblyError(reason string) {
	m.AssemblyErrors.WithLabelValues(reason).Inc()
}
