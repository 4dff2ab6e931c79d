package runtime_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/graft/internal/adapters/sqlite"
	"github.com/aretw0/graft/internal/runtime"
	"github.com/aretw0/graft/pkg/artifact"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type boundaryHarness struct {
	boundary  *runtime.Boundary
	artifacts *artifact.Registry
	store     *sqlite.Store
	now       *time.Time
}

func newBoundaryHarness(t *testing.T, opts ...runtime.BoundaryOption) *boundaryHarness {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "graft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Now().UTC()
	h := &boundaryHarness{
		artifacts: artifact.NewRegistry(store),
		store:     store,
		now:       &now,
	}
	opts = append([]runtime.BoundaryOption{
		runtime.WithBoundaryClock(func() time.Time { return *h.now }),
	}, opts...)
	h.boundary = runtime.NewBoundary(h.artifacts, store, opts...)
	return h
}

func ingestRequest() runtime.IngestRequest {
	return runtime.IngestRequest{
		TenantID:     "t1",
		ArtifactType: "upload",
		Descriptor:   map[string]any{"filename": "data.csv"},
		Materialization: domain.Materialization{
			StorageType: "object",
			URI:         "s3://uploads/data.csv",
			Format:      "csv",
		},
	}
}

func TestBoundary_IngestThenAuthorize(t *testing.T) {
	h := newBoundaryHarness(t)
	ctx := context.Background()

	receipt, err := h.boundary.Ingest(ctx, ingestRequest())
	require.NoError(t, err)
	require.NotEmpty(t, receipt.ArtifactID)
	require.NotEmpty(t, receipt.ContractID)

	// After ingest the artifact exists but is still working material.
	ingested, err := h.artifacts.Resolve(ctx, "t1", receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecyclePending, ingested.LifecycleState)
	require.Len(t, ingested.Materializations, 1)
	assert.Equal(t, "s3://uploads/data.csv", ingested.Materializations[0].URI)

	auth, err := h.boundary.Authorize(ctx, "t1", receipt.ArtifactID, receipt.ContractID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractAuthorized, auth.Status)

	committed, err := h.artifacts.Resolve(ctx, "t1", receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleReady, committed.LifecycleState)
}

func TestBoundary_AuthorizeIsIdempotent(t *testing.T) {
	h := newBoundaryHarness(t)
	ctx := context.Background()

	var authorizedEvents int
	h.boundary = runtime.NewBoundary(h.artifacts, h.store,
		runtime.WithBoundaryClock(func() time.Time { return *h.now }),
		runtime.WithBoundaryHooks(domain.LifecycleHooks{
			OnContractAuthorized: func(ctx context.Context, e *domain.ContractEvent) {
				authorizedEvents++
			},
		}),
	)

	receipt, err := h.boundary.Ingest(ctx, ingestRequest())
	require.NoError(t, err)

	first, err := h.boundary.Authorize(ctx, "t1", receipt.ArtifactID, receipt.ContractID)
	require.NoError(t, err)

	second, err := h.boundary.Authorize(ctx, "t1", receipt.ArtifactID, receipt.ContractID)
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-submission returns the original outcome")
	assert.Equal(t, 1, authorizedEvents, "the follow-on schedule fires exactly once")
}

func TestBoundary_ExpiredContract(t *testing.T) {
	h := newBoundaryHarness(t, runtime.WithContractTTL(time.Second))
	ctx := context.Background()

	receipt, err := h.boundary.Ingest(ctx, ingestRequest())
	require.NoError(t, err)

	// Let the contract lapse.
	*h.now = h.now.Add(2 * time.Second)

	_, err = h.boundary.Authorize(ctx, "t1", receipt.ArtifactID, receipt.ContractID)
	assert.ErrorIs(t, err, domain.ErrContractExpired)

	// The artifact is never auto-promoted.
	orphan, err := h.artifacts.Resolve(ctx, "t1", receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecyclePending, orphan.LifecycleState)

	// The sweep makes the expiry durable; authorize still reports it.
	sweeper := runtime.NewSweeper(h.store, runtime.WithSweeperClock(func() time.Time { return *h.now }))
	sweeper.SweepOnce(ctx)

	contract, err := h.store.GetContract(ctx, "t1", receipt.ContractID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractExpired, contract.Status)

	_, err = h.boundary.Authorize(ctx, "t1", receipt.ArtifactID, receipt.ContractID)
	assert.ErrorIs(t, err, domain.ErrContractExpired)
}

func TestBoundary_ClientVisibleErrors(t *testing.T) {
	h := newBoundaryHarness(t)
	ctx := context.Background()

	receipt, err := h.boundary.Ingest(ctx, ingestRequest())
	require.NoError(t, err)

	t.Run("unknown contract", func(t *testing.T) {
		_, err := h.boundary.Authorize(ctx, "t1", receipt.ArtifactID, "bct_ghost")
		assert.ErrorIs(t, err, domain.ErrContractNotFound)
	})

	t.Run("contract does not reference artifact", func(t *testing.T) {
		other, err := h.boundary.Ingest(ctx, ingestRequest())
		require.NoError(t, err)

		_, err = h.boundary.Authorize(ctx, "t1", other.ArtifactID, receipt.ContractID)
		assert.ErrorIs(t, err, domain.ErrContractMismatch)
	})

	t.Run("tenant cannot reach another tenant's contract", func(t *testing.T) {
		_, err := h.boundary.Authorize(ctx, "t2", receipt.ArtifactID, receipt.ContractID)
		assert.ErrorIs(t, err, domain.ErrContractNotFound)
	})
}

func TestBoundary_ConcurrentAuthorize(t *testing.T) {
	h := newBoundaryHarness(t)
	ctx := context.Background()

	receipt, err := h.boundary.Ingest(ctx, ingestRequest())
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*runtime.AuthorizeReceipt, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = h.boundary.Authorize(ctx, "t1", receipt.ArtifactID, receipt.ContractID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, domain.ContractAuthorized, results[i].Status,
			"losers must observe Authorized and return the cached outcome")
	}

	committed, err := h.artifacts.Resolve(ctx, "t1", receipt.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleReady, committed.LifecycleState)
}

func TestBoundary_IngestValidation(t *testing.T) {
	h := newBoundaryHarness(t)
	ctx := context.Background()

	for name, mutate := range map[string]func(*runtime.IngestRequest){
		"missing tenant":       func(r *runtime.IngestRequest) { r.TenantID = "" },
		"missing type":         func(r *runtime.IngestRequest) { r.ArtifactType = "" },
		"missing materialized": func(r *runtime.IngestRequest) { r.Materialization.URI = "" },
	} {
		t.Run(name, func(t *testing.T) {
			req := ingestRequest()
			mutate(&req)

			_, err := h.boundary.Ingest(ctx, req)
			var verr *domain.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}
