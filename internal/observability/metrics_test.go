package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/graft/internal/observability"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Hooks(t *testing.T) {
	m := observability.New(prometheus.NewRegistry())
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnExecutionEnd(ctx, &domain.ExecutionEvent{
		IntentType: "generate_report",
		Status:     domain.ExecutionCompleted,
		Duration:   120 * time.Millisecond,
	})
	hooks.OnExecutionEnd(ctx, &domain.ExecutionEvent{
		IntentType: "generate_report",
		Status:     domain.ExecutionFailed,
		Duration:   80 * time.Millisecond,
	})
	hooks.OnExecutionEnd(ctx, &domain.ExecutionEvent{
		IntentType: "generate_report",
		Duplicate:  true,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("generate_report", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Executions.WithLabelValues("generate_report", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateSubmissions),
		"a duplicate counts once and never inflates the outcome counters")

	hooks.OnArtifactRegistered(ctx, &domain.ArtifactEvent{ArtifactType: "report"})
	hooks.OnContractAuthorized(ctx, &domain.ContractEvent{ContractID: "bct_1"})
	m.OnExpiredContracts(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArtifactsRegistered.WithLabelValues("report")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContractsAuthorized))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ContractsExpired))
}
