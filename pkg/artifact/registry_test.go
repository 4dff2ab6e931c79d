package artifact_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/aretw0/graft/internal/adapters/sqlite"
	"github.com/aretw0/graft/pkg/artifact"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, opts ...artifact.Option) *artifact.Registry {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "graft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return artifact.NewRegistry(store, opts...)
}

func reportRegistration(id string) artifact.Registration {
	return artifact.Registration{
		ArtifactID:   id,
		ArtifactType: "report",
		TenantID:     "t1",
		ProducedBy:   domain.ProducedBy{IntentType: "generate_report", ExecutionID: "exc_1"},
		Descriptor:   map[string]any{"title": "Q3"},
	}
}

func TestRegistry_Register_Idempotent(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	first, err := registry.Register(ctx, reportRegistration("art_1"))
	require.NoError(t, err)
	assert.Equal(t, domain.LifecyclePending, first.LifecycleState)

	// Identical re-registration is a no-op returning the original.
	again, err := registry.Register(ctx, reportRegistration("art_1"))
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, again.CreatedAt)

	// Different content under the same ID is a conflict.
	conflicting := reportRegistration("art_1")
	conflicting.Descriptor = map[string]any{"title": "Q4"}
	_, err = registry.Register(ctx, conflicting)
	assert.ErrorIs(t, err, domain.ErrArtifactConflict)
}

func TestRegistry_Register_ParentsMustExist(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	orphan := reportRegistration("art_child")
	orphan.ParentIDs = []string{"art_ghost"}
	_, err := registry.Register(ctx, orphan)
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	// With the parent in place the child registers fine.
	_, err = registry.Register(ctx, reportRegistration("art_parent"))
	require.NoError(t, err)

	child := reportRegistration("art_child")
	child.ParentIDs = []string{"art_parent"}
	created, err := registry.Register(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, []string{"art_parent"}, created.ParentIDs)
}

func TestRegistry_Transition_ForwardOnly(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	_, err := registry.Register(ctx, reportRegistration("art_1"))
	require.NoError(t, err)

	// Pending -> Archived skips Ready.
	err = registry.Transition(ctx, "t1", "art_1", domain.LifecycleArchived)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, registry.Transition(ctx, "t1", "art_1", domain.LifecycleReady))

	// Ready -> Pending is a rewind.
	err = registry.Transition(ctx, "t1", "art_1", domain.LifecyclePending)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, registry.Transition(ctx, "t1", "art_1", domain.LifecycleArchived))

	// Archived is terminal.
	for _, target := range []domain.LifecycleState{domain.LifecyclePending, domain.LifecycleReady, domain.LifecycleArchived} {
		err = registry.Transition(ctx, "t1", "art_1", target)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}

	// Failed transitions left the state unchanged.
	loaded, err := registry.Resolve(ctx, "t1", "art_1")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleArchived, loaded.LifecycleState)
}

func TestRegistry_AddMaterialization_Accumulates(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	_, err := registry.Register(ctx, reportRegistration("art_1"))
	require.NoError(t, err)

	require.NoError(t, registry.AddMaterialization(ctx, "t1", "art_1", domain.Materialization{
		MaterializationID: "mat_1", StorageType: "object", URI: "s3://bucket/a", Format: "parquet",
	}))
	require.NoError(t, registry.AddMaterialization(ctx, "t1", "art_1", domain.Materialization{
		MaterializationID: "mat_2", StorageType: "object", URI: "s3://bucket/a.csv", Format: "csv",
	}))

	loaded, err := registry.Resolve(ctx, "t1", "art_1")
	require.NoError(t, err)
	require.Len(t, loaded.Materializations, 2)
	assert.Equal(t, "mat_1", loaded.Materializations[0].MaterializationID)
}

func TestRegistry_List_TenantIsolation(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	a := reportRegistration("art_a")
	_, err := registry.Register(ctx, a)
	require.NoError(t, err)

	b := reportRegistration("art_b")
	b.TenantID = "t2"
	_, err = registry.Register(ctx, b)
	require.NoError(t, err)

	list, err := registry.List(ctx, domain.ArtifactFilter{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "art_a", list[0].ArtifactID)

	for _, got := range list {
		assert.Equal(t, "t1", got.TenantID, "list must never leak another tenant's artifacts")
	}

	_, err = registry.List(ctx, domain.ArtifactFilter{})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr, "tenant is mandatory for discovery")
}

func TestRegistry_Register_EmptyAndNilAreIdentical(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()

	first := reportRegistration("art_1")
	first.Descriptor = nil
	first.ParentIDs = nil
	created, err := registry.Register(ctx, first)
	require.NoError(t, err)

	// Re-registering with empty (not nil) collections is the same content.
	again := reportRegistration("art_1")
	again.Descriptor = map[string]any{}
	again.ParentIDs = []string{}
	loaded, err := registry.Register(ctx, again)
	require.NoError(t, err, "nil and empty must not read as different content")
	assert.Equal(t, created.CreatedAt, loaded.CreatedAt)
}

// wrappingStore wraps every lookup error, as a store with added context
// would.
type wrappingStore struct {
	ports.ArtifactStore
}

func (w *wrappingStore) GetArtifact(ctx context.Context, tenantID, artifactID string) (*domain.Artifact, error) {
	a, err := w.ArtifactStore.GetArtifact(ctx, tenantID, artifactID)
	if err != nil {
		return nil, fmt.Errorf("artifact lookup: %w", err)
	}
	return a, nil
}

func TestRegistry_Register_ToleratesWrappedNotFound(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "graft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := artifact.NewRegistry(&wrappingStore{ArtifactStore: store})
	ctx := context.Background()

	created, err := registry.Register(ctx, reportRegistration("art_1"))
	require.NoError(t, err, "a wrapped not-found must still read as absent")
	assert.Equal(t, domain.LifecyclePending, created.LifecycleState)
}

// brokenIndexStore wraps an ArtifactStore and fails every index update.
type brokenIndexStore struct {
	ports.ArtifactStore
}

func (b *brokenIndexStore) UpdateIndex(ctx context.Context, artifact *domain.Artifact) error {
	return errors.New("index table locked")
}

func TestRegistry_IndexFailureDoesNotPropagate(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "graft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := artifact.NewRegistry(&brokenIndexStore{ArtifactStore: store})
	ctx := context.Background()

	// Registration succeeds even though discovery will lag.
	created, err := registry.Register(ctx, reportRegistration("art_1"))
	require.NoError(t, err)

	// The primary record is authoritative and resolvable.
	loaded, err := registry.Resolve(ctx, "t1", created.ArtifactID)
	require.NoError(t, err)
	assert.Equal(t, created.ArtifactID, loaded.ArtifactID)
}
