// Package metrics owns the Prometheus collectors for the poll pipeline.
// Dispatch and the scheduler update them; the ops HTTP service exposes them.
// All methods are nil-receiver safe so tests can run without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "quakebot"

// Cycle outcome label values.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Pair-skip reason label values.
const (
	ReasonAlreadyNotified = "already_notified"
	ReasonNoTarget        = "no_target"
	ReasonBelowThreshold  = "below_threshold"
)

type Metrics struct {
	cycles      *prometheus.CounterVec
	cycleDur    prometheus.Summary
	windowSize  prometheus.Gauge
	malformed   prometheus.Counter
	recorded    prometheus.Counter
	deliveries  *prometheus.CounterVec
	pairsSkip   *prometheus.CounterVec
	lastSuccess prometheus.Gauge
	subscribers prometheus.Gauge
}

// New builds and registers the collectors. A nil registerer uses the
// process-default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	m.cycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_cycles_total",
		Help:      "Poll cycles by outcome",
	}, []string{"outcome"})
	m.cycleDur = prometheus.NewSummary(prometheus.SummaryOpts{
		Namespace: namespace,
		Name:      "cycle_duration_seconds",
		Help:      "Time spent per poll cycle",
	})
	m.windowSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_window_size",
		Help:      "Features in the most recent feed fetch",
	})
	m.malformed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feed_malformed_records_total",
		Help:      "Feed records skipped for missing required fields",
	})
	m.recorded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_recorded_total",
		Help:      "Events persisted on first sighting",
	})
	m.deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Notification deliveries by result",
	}, []string{"result"})
	m.pairsSkip = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pairs_skipped_total",
		Help:      "Subscriber/event pairs skipped during fan-out by reason",
	}, []string{"reason"})
	m.lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_cycle_success_timestamp_seconds",
		Help:      "Unix timestamp of the last completed poll cycle",
	})
	m.subscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "subscribers",
		Help:      "Subscribers known to the registry",
	})

	reg.MustRegister(
		m.cycles, m.cycleDur, m.windowSize, m.malformed, m.recorded,
		m.deliveries, m.pairsSkip, m.lastSuccess, m.subscribers,
	)
	return m
}

func (m *Metrics) CycleCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(OutcomeOK).Inc()
	m.cycleDur.Observe(d.Seconds())
	m.lastSuccess.Set(float64(time.Now().Unix()))
}

func (m *Metrics) CycleFailed(d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(OutcomeError).Inc()
	m.cycleDur.Observe(d.Seconds())
}

func (m *Metrics) CycleSkipped() {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(OutcomeSkipped).Inc()
}

func (m *Metrics) SetWindow(n int) {
	if m == nil {
		return
	}
	m.windowSize.Set(float64(n))
}

func (m *Metrics) AddMalformed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.malformed.Add(float64(n))
}

func (m *Metrics) AddRecorded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recorded.Add(float64(n))
}

func (m *Metrics) DeliverySent() {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("sent").Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("failed").Inc()
}

func (m *Metrics) PairSkipped(reason string) {
	if m == nil {
		return
	}
	m.pairsSkip.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
