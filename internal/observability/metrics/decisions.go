package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

// DecisionMetrics observes the routing engine: context builds, folder
// recommendations, flag evaluations and recovery decisions.
type DecisionMetrics struct {
	service string

	contextBuilds       *prometheus.CounterVec
	recommendationScore *prometheus.HistogramVec
	flagEvaluations     *prometheus.CounterVec
	recoveryDecisions   *prometheus.CounterVec
	breakerTransitions  *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
}

func NewDecisionMetrics(registry prometheus.Registerer, service string) *DecisionMetrics {
	m := &DecisionMetrics{
		service: service,
		contextBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "context_builds_total",
				Help:      "Upload contexts built by storage type.",
			},
			[]string{"service", "storage_type"},
		),
		recommendationScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "recommendation_confidence",
				Help:      "Confidence of produced folder recommendations.",
				Buckets:   []float64{10, 25, 40, 50, 60, 70, 80, 85, 90, 95, 100},
			},
			[]string{"service"},
		),
		flagEvaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flags_evaluations_total",
				Help:      "Feature flag evaluations by feature and result.",
			},
			[]string{"service", "feature", "result"},
		),
		recoveryDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_decisions_total",
				Help:      "Upload error recovery decisions.",
			},
			[]string{"service", "category", "strategy", "recoverable"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions per resource.",
			},
			[]string{"service", "resource", "to"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Memoization cache hits.",
			},
			[]string{"service", "cache"},
		),
	}
	registry.MustRegister(
		m.contextBuilds,
		m.recommendationScore,
		m.flagEvaluations,
		m.recoveryDecisions,
		m.breakerTransitions,
		m.cacheHits,
	)
	return m
}

func (m *DecisionMetrics) ObserveContextBuild(storageType domain.StorageType) {
	m.contextBuilds.WithLabelValues(m.service, string(storageType)).Inc()
}

func (m *DecisionMetrics) ObserveRecommendation(confidence float64) {
	m.recommendationScore.WithLabelValues(m.service).Observe(confidence)
}

func (m *DecisionMetrics) ObserveFlagEvaluation(feature string, enabled bool) {
	result := "disabled"
	if enabled {
		result = "enabled"
	}
	m.flagEvaluations.WithLabelValues(m.service, feature, result).Inc()
}

func (m *DecisionMetrics) ObserveRecoveryDecision(category, strategy string, recoverable bool) {
	m.recoveryDecisions.WithLabelValues(m.service, category, strategy, strconv.FormatBool(recoverable)).Inc()
}

func (m *DecisionMetrics) ObserveBreakerTransition(resource, to string) {
	m.breakerTransitions.WithLabelValues(m.service, resource, to).Inc()
}

func (m *DecisionMetrics) ObserveCacheHit(cache string) {
	m.cacheHits.WithLabelValues(m.service, cache).Inc()
}
