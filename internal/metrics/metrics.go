package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "radio_scanner"

// Metrics holds the Prometheus collectors of the scanner. Every collector is
// labelled by device name except the telemetry drop counter.
type Metrics struct {
	registry *prometheus.Registry

	psdDuration          *prometheus.HistogramVec // PSD time per block
	decimationDuration   *prometheus.HistogramVec // Shift and decimation time per recorder block
	activeTransmissions  *prometheus.GaugeVec     // Transmissions being recorded
	recordings           *prometheus.CounterVec   // Finalized recordings
	ignoredTransmissions *prometheus.CounterVec   // Transmissions with no free recorder
	manualRecordings     *prometheus.CounterVec   // Recordings started on a remote request
	overflowBytes        *prometheus.CounterVec   // Bytes lost to ring buffer overflow
	scanErrors           *prometheus.CounterVec   // Device errors that restarted a scan
	telemetryDropped     prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		psdDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "psd_duration_seconds",
				Help:      "Time spent computing the power spectrum of a block",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"device"},
		),
		decimationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decimation_duration_seconds",
				Help:      "Time spent shifting and decimating a recorder block",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"device"},
		),
		activeTransmissions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_transmissions",
				Help:      "Number of transmissions currently being recorded",
			},
			[]string{"device"},
		),
		recordings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recordings_total",
				Help:      "Number of finished recordings",
			},
			[]string{"device"},
		),
		ignoredTransmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ignored_transmissions_total",
				Help:      "Number of transmissions skipped because every recorder was busy",
			},
			[]string{"device"},
		),
		manualRecordings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "manual_recordings_total",
				Help:      "Number of recordings started on a remote request",
			},
			[]string{"device"},
		),
		overflowBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ring_buffer_overflow_bytes_total",
				Help:      "Number of unread sample bytes overwritten in the stream ring buffer",
			},
			[]string{"device"},
		),
		scanErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scan_errors_total",
				Help:      "Number of device errors that restarted the scan loop",
			},
			[]string{"device"},
		),
		telemetryDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telemetry_dropped_total",
				Help:      "Number of telemetry payloads dropped on a full publish queue",
			},
		),
	}
}

func (m *Metrics) PSDObserver(device string) prometheus.Observer {
	return m.psdDuration.WithLabelValues(device)
}

func (m *Metrics) DecimationObserver(device string) prometheus.Observer {
	return m.decimationDuration.WithLabelValues(device)
}

func (m *Metrics) SetActiveTransmissions(device string, n int) {
	m.activeTransmissions.WithLabelValues(device).Set(float64(n))
}

func (m *Metrics) RecordingFinished(device string) {
	m.recordings.WithLabelValues(device).Inc()
}

func (m *Metrics) TransmissionIgnored(device string) {
	m.ignoredTransmissions.WithLabelValues(device).Inc()
}

func (m *Metrics) ManualRecording(device string) {
	m.manualRecordings.WithLabelValues(device).Inc()
}

// OverflowHandler returns a ring buffer overflow callback for a device
func (m *Metrics) OverflowHandler(device string) func(dropped int) {
	c := m.overflowBytes.WithLabelValues(device)
	return func(dropped int) {
		c.Add(float64(dropped))
	}
}

func (m *Metrics) ScanError(device string) {
	m.scanErrors.WithLabelValues(device).Inc()
}

func (m *Metrics) TelemetryDropped() prometheus.Counter {
	return m.telemetryDropped
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
