package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/livebridge/internal/runtime/dbn"
)

// DefaultMetricsNamespace prefixes every collector when no namespace is
// given.
const DefaultMetricsNamespace = "livebridge"

// Metrics collects session statistics. A nil *Metrics records nothing.
type Metrics struct {
	mu sync.Mutex

	recordsTotal    *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	startedTotal    *prometheus.CounterVec
	stoppedTotal    *prometheus.CounterVec
	callbackSeconds *prometheus.HistogramVec
	handlesLive     prometheus.GaugeFunc

	registerer prometheus.Registerer
	registered bool
}

func newSessionCounterVec(namespace, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newSessionHistogramVec(namespace, name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewMetrics creates the collectors. handles reports the live handle count;
// it may be nil.
func NewMetrics(namespace string, registerer prometheus.Registerer, handles func() int) *Metrics {
	if namespace == "" {
		namespace = DefaultMetricsNamespace
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if handles == nil {
		handles = func() int { return 0 }
	}

	return &Metrics{
		registerer:      registerer,
		recordsTotal:    newSessionCounterVec(namespace, "records_dispatched_total", "Records handed to record callbacks", []string{"rtype"}),
		failuresTotal:   newSessionCounterVec(namespace, "callback_failures_total", "Callback failures reported to error callbacks", []string{"code"}),
		startedTotal:    newSessionCounterVec(namespace, "started_total", "Sessions started", []string{"mode"}),
		stoppedTotal:    newSessionCounterVec(namespace, "stopped_total", "Sessions stopped", []string{"reason"}),
		callbackSeconds: newSessionHistogramVec(namespace, "callback_duration_seconds", "Time spent in caller callbacks", []float64{.00001, .0001, .001, .01, .1, 1}, []string{"kind"}),
		handlesLive: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "handles_live",
				Help:      "Handles currently registered at the flat boundary",
			},
			func() float64 { return float64(handles()) },
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *Metrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.recordsTotal,
		m.failuresTotal,
		m.startedTotal,
		m.stoppedTotal,
		m.callbackSeconds,
		m.handlesLive,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *Metrics) recordDispatched(rtype dbn.RType, took time.Duration) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(strconv.Itoa(int(rtype))).Inc()
	m.callbackSeconds.WithLabelValues("record").Observe(took.Seconds())
}

func (m *Metrics) callbackFailed(code int32) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

func (m *Metrics) metadataDelivered(took time.Duration) {
	if m == nil {
		return
	}
	m.callbackSeconds.WithLabelValues("metadata").Observe(took.Seconds())
}

func (m *Metrics) sessionStarted(mode string) {
	if m == nil {
		return
	}
	m.startedTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) sessionStopped(reason string) {
	if m == nil {
		return
	}
	m.stoppedTotal.WithLabelValues(reason).Inc()
}

// Reset clears every series (useful for testing).
func (m *Metrics) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordsTotal.Reset()
	m.failuresTotal.Reset()
	m.startedTotal.Reset()
	m.stoppedTotal.Reset()
	m.callbackSeconds.Reset()
}
