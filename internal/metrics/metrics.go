package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collar's Prometheus instruments. All methods are nil-safe
// so components can run without metrics wired in.
type Metrics struct {
	Registry *prometheus.Registry

	fusionCycles prometheus.Counter
	sensorFaults prometheus.Counter
	pitchDeg     prometheus.Gauge
	rollDeg      prometheus.Gauge
	headingDeg   prometheus.Gauge

	framesSent prometheus.Counter
	sendErrors prometheus.Counter

	taskFailures *prometheus.CounterVec

	heapAlloc   prometheus.Gauge
	gcThreshold prometheus.Gauge
	collections prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		fusionCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_cycles_total",
			Help: "Completed fusion update steps.",
		}),
		sensorFaults: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_sensor_faults_total",
			Help: "Zero-magnitude accelerometer or magnetometer readings.",
		}),
		pitchDeg: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orientation_pitch_degrees",
			Help: "Most recent fused pitch.",
		}),
		rollDeg: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orientation_roll_degrees",
			Help: "Most recent fused roll.",
		}),
		headingDeg: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orientation_heading_degrees",
			Help: "Most recent fused heading (0 without magnetometer).",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_frames_sent_total",
			Help: "Telemetry records written to the wire.",
		}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_send_errors_total",
			Help: "Telemetry send failures.",
		}),
		taskFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_failures_total",
			Help: "Periodic tasks that ended with an error or panic.",
		}, []string{"task"}),
		heapAlloc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heap_alloc_bytes",
			Help: "Live heap at the last compaction check.",
		}),
		gcThreshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heap_gc_threshold_bytes",
			Help: "Live heap level that triggers the next forced collection.",
		}),
		collections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heap_forced_collections_total",
			Help: "Collections forced by the compaction task.",
		}),
	}
	m.Registry.MustRegister(
		m.fusionCycles, m.sensorFaults,
		m.pitchDeg, m.rollDeg, m.headingDeg,
		m.framesSent, m.sendErrors,
		m.taskFailures,
		m.heapAlloc, m.gcThreshold, m.collections,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FusionCycle(pitch, roll, heading float64) {
	if m == nil {
		return
	}
	m.fusionCycles.Inc()
	m.pitchDeg.Set(pitch)
	m.rollDeg.Set(roll)
	m.headingDeg.Set(heading)
}

func (m *Metrics) SensorFault() {
	if m == nil {
		return
	}
	m.sensorFaults.Inc()
}

func (m *Metrics) FrameSent() {
	if m == nil {
		return
	}
	m.framesSent.Inc()
}

func (m *Metrics) SendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

func (m *Metrics) TaskFailed(name string) {
	if m == nil {
		return
	}
	m.taskFailures.WithLabelValues(name).Inc()
}

func (m *Metrics) Heap(alloc, threshold uint64, collected bool) {
	if m == nil {
		return
	}
	m.heapAlloc.Set(float64(alloc))
	m.gcThreshold.Set(float64(threshold))
	if collected {
		m.collections.Inc()
	}
}
