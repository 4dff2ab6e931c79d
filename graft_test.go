package graft_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/graft"
	"github.com/aretw0/graft/internal/runtime"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRuntime(t *testing.T, opts ...graft.Option) *graft.Runtime {
	t.Helper()

	rt, err := graft.New(filepath.Join(t.TempDir(), "graft.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestRuntime_EndToEnd(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	rt.RegisterIntent("generate_report", func(ctx context.Context, ec *intent.ExecutionContext) (*domain.HandlerOutput, error) {
		if err := ec.State.SaveSession(ctx, ec.TenantID, ec.SessionID, map[string]any{"reports": 1}); err != nil {
			return nil, err
		}
		return &domain.HandlerOutput{
			Artifacts: map[string]domain.ArtifactPayload{
				"report": {ArtifactType: "report", Descriptor: map[string]any{"title": "Q3"}},
			},
		}, nil
	})

	result, err := rt.Execute(ctx, domain.Intent{
		Type: "generate_report", TenantID: "acme", SessionID: "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionCompleted, result.Status)

	// The artifact is discoverable through the facade.
	ref := result.Artifacts["report"]
	art, err := rt.ResolveArtifact(ctx, "acme", ref.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecyclePending, art.LifecycleState)

	listed, err := rt.ListArtifacts(ctx, domain.ArtifactFilter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	// Session state written by the handler is readable afterwards.
	session, err := rt.State().LoadSession(ctx, "acme", "s1")
	require.NoError(t, err)
	assert.Equal(t, float64(1), toFloat(session["reports"]))
}

// toFloat tolerates the int/float64 split introduced by JSON round-trips.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return -1
	}
}

func TestRuntime_SubmitAndPoll(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	rt.RegisterIntent("echo", func(ctx context.Context, ec *intent.ExecutionContext) (*domain.HandlerOutput, error) {
		return &domain.HandlerOutput{}, nil
	})

	id, err := rt.Submit(ctx, domain.Intent{Type: "echo", TenantID: "acme", SessionID: "s1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		result, err := rt.Status(ctx, id)
		return err == nil && result.Status.Terminal()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRuntime_IngestAuthorize(t *testing.T) {
	rt := newRuntime(t)
	ctx := context.Background()

	receipt, err := rt.Ingest(ctx, runtime.IngestRequest{
		TenantID:     "acme",
		ArtifactType: "upload",
		Materialization: domain.Materialization{
			StorageType: "object", URI: "s3://uploads/data.csv",
		},
	})
	require.NoError(t, err)

	auth, err := rt.Authorize(ctx, "acme", receipt.ArtifactID, receipt.ContractID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractAuthorized, auth.Status)

	art, err := rt.ResolveArtifact(ctx, "acme", receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleReady, art.LifecycleState)
}

func TestRuntime_DuplicateSubmission(t *testing.T) {
	rt := newRuntime(t, graft.WithIdempotencyWindow(time.Hour))
	ctx := context.Background()

	rt.RegisterIntent("echo", func(ctx context.Context, ec *intent.ExecutionContext) (*domain.HandlerOutput, error) {
		return &domain.HandlerOutput{}, nil
	})

	in := domain.Intent{Type: "echo", TenantID: "acme", SessionID: "s1"}

	first, err := rt.Execute(ctx, in)
	require.NoError(t, err)

	second, err := rt.Execute(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ExecutionID, second.ExecutionID)
}
