// Package observability wires the runtime's lifecycle hooks to Prometheus.
package observability

import (
	"context"

	"github.com/aretw0/graft/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime's Prometheus collectors.
type Metrics struct {
	Executions           *prometheus.CounterVec
	ExecutionDuration    *prometheus.HistogramVec
	DuplicateSubmissions prometheus.Counter
	ArtifactsRegistered  *prometheus.CounterVec
	ContractsAuthorized  prometheus.Counter
	ContractsExpired     prometheus.Counter
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graft_executions_total",
				Help: "Total executions by intent type and terminal status",
			},
			[]string{"intent_type", "status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "graft_execution_duration_seconds",
				Help: "Wall-clock duration of intent executions",
			},
			[]string{"intent_type"},
		),
		DuplicateSubmissions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "graft_duplicate_submissions_total",
				Help: "Submissions short-circuited by the idempotency guard",
			},
		),
		ArtifactsRegistered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "graft_artifacts_registered_total",
				Help: "Artifacts registered by type",
			},
			[]string{"artifact_type"},
		),
		ContractsAuthorized: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "graft_contracts_authorized_total",
				Help: "Boundary contracts authorized",
			},
		),
		ContractsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "graft_contracts_expired_total",
				Help: "Boundary contracts expired by the sweeper",
			},
		),
	}

	reg.MustRegister(
		m.Executions,
		m.ExecutionDuration,
		m.DuplicateSubmissions,
		m.ArtifactsRegistered,
		m.ContractsAuthorized,
		m.ContractsExpired,
	)
	return m
}

// Hooks returns lifecycle hooks feeding these collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnExecutionEnd: func(ctx context.Context, e *domain.ExecutionEvent) {
			if e.Duplicate {
				m.DuplicateSubmissions.Inc()
				return
			}
			m.Executions.WithLabelValues(e.IntentType, string(e.Status)).Inc()
			m.ExecutionDuration.WithLabelValues(e.IntentType).Observe(e.Duration.Seconds())
		},
		OnArtifactRegistered: func(ctx context.Context, e *domain.ArtifactEvent) {
			m.ArtifactsRegistered.WithLabelValues(e.ArtifactType).Inc()
		},
		OnContractAuthorized: func(ctx context.Context, e *domain.ContractEvent) {
			m.ContractsAuthorized.Inc()
		},
	}
}

// OnExpiredContracts adapts the sweeper's callback to the expired counter.
func (m *Metrics) OnExpiredContracts(count int64) {
	m.ContractsExpired.Add(float64(count))
}
