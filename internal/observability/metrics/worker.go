package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	togglesTotal    *prometheus.CounterVec
	syncTotal       *prometheus.CounterVec
	offlinePending  prometheus.Gauge

	decisions *DecisionMetrics
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_processed_total",
			Help:      "Total consumed upload events by kind and status.",
		},
		[]string{"service", "kind", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "event_process_duration_seconds",
			Help:      "Event processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "event_process_in_flight",
			Help:      "Number of in-flight event handlers.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between event publication and processing start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	togglesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "flag_toggles_total",
			Help:      "Flag evaluation results reported by API processes.",
		},
		[]string{"service", "feature", "result"},
	)
	syncTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "sync_total",
			Help:      "Offline queue sync outcomes.",
		},
		[]string{"service", "outcome"},
	)
	offlinePending := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "offline",
			Name:      "pending_uploads",
			Help:      "Uploads waiting in the offline queue.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(eventsTotal, processDuration, processInFlight, queueLag, togglesTotal, syncTotal, offlinePending)

	return &WorkerMetrics{
		registry:        registry,
		eventsTotal:     eventsTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		togglesTotal:    togglesTotal,
		syncTotal:       syncTotal,
		offlinePending:  offlinePending,
		decisions:       NewDecisionMetrics(registry, service),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) Decisions() *DecisionMetrics {
	return m.decisions
}

func (m *WorkerMetrics) StartEvent() {
	m.processInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service, kind string, duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.eventsTotal.WithLabelValues(service, kind, status).Inc()
	m.processDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveQueueLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(service).Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordToggle(service, feature string, enabled bool) {
	result := "disabled"
	if enabled {
		result = "enabled"
	}
	m.togglesTotal.WithLabelValues(service, feature, result).Inc()
}

func (m *WorkerMetrics) RecordSync(service string, synced, failed int, skipped bool) {
	if skipped {
		m.syncTotal.WithLabelValues(service, "skipped").Inc()
		return
	}
	m.syncTotal.WithLabelValues(service, "synced").Add(float64(synced))
	m.syncTotal.WithLabelValues(service, "failed").Add(float64(failed))
}

func (m *WorkerMetrics) SetOfflinePending(count int) {
	m.offlinePending.Set(float64(count))
}
