// Package artifact implements the Artifact Registry: identity, lifecycle,
// lineage and materializations for every unit of produced data.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/aretw0/graft/internal/logging"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Registry tracks artifacts. The primary record in the ArtifactStore is
// authoritative; the secondary discovery index may lag behind it without
// affecting correctness.
type Registry struct {
	store  ports.ArtifactStore
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	now    func() time.Time
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for deferred errors (index degradation).
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates a Registry over the given store.
func NewRegistry(store ports.ArtifactStore, opts ...Option) *Registry {
	r := &Registry{
		store:  store,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registration declares a new artifact.
type Registration struct {
	ArtifactID   string
	ArtifactType string
	TenantID     string
	ProducedBy   domain.ProducedBy
	Descriptor   map[string]any
	ParentIDs    []string
}

// Register creates the artifact in Pending state. Registration is
// idempotent per artifact ID: re-registering identical content is a no-op
// returning the existing record; different content is a conflict, because
// artifact identity is immutable once created.
func (r *Registry) Register(ctx context.Context, reg Registration) (*domain.Artifact, error) {
	if reg.ArtifactID == "" || reg.TenantID == "" || reg.ArtifactType == "" {
		return nil, fmt.Errorf("artifact registration requires id, tenant and type: %w", domain.ErrArtifactConflict)
	}

	existing, err := r.store.GetArtifact(ctx, reg.TenantID, reg.ArtifactID)
	if err == nil {
		if sameIdentity(existing, reg) {
			return existing, nil
		}
		return nil, fmt.Errorf("artifact %s: %w", reg.ArtifactID, domain.ErrArtifactConflict)
	}
	if !errors.Is(err, domain.ErrArtifactNotFound) {
		return nil, err
	}

	// Parents must already exist under the same tenant. New artifacts can
	// only point backward, which keeps lineage acyclic.
	for _, parentID := range reg.ParentIDs {
		if _, err := r.store.GetArtifact(ctx, reg.TenantID, parentID); err != nil {
			return nil, fmt.Errorf("parent artifact %s: %w", parentID, err)
		}
	}

	now := r.now().UTC()
	artifact := &domain.Artifact{
		ArtifactID:     reg.ArtifactID,
		ArtifactType:   reg.ArtifactType,
		TenantID:       reg.TenantID,
		LifecycleState: domain.LifecyclePending,
		ProducedBy:     reg.ProducedBy,
		Descriptor:     reg.Descriptor,
		ParentIDs:      reg.ParentIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.store.PutArtifact(ctx, artifact); err != nil {
		return nil, err
	}
	r.updateIndex(ctx, artifact)

	if r.hooks.OnArtifactRegistered != nil {
		r.hooks.OnArtifactRegistered(ctx, &domain.ArtifactEvent{
			ArtifactID:   artifact.ArtifactID,
			ArtifactType: artifact.ArtifactType,
			TenantID:     artifact.TenantID,
			State:        artifact.LifecycleState,
		})
	}
	return artifact, nil
}

// AddMaterialization attaches a storage representation to the artifact.
// Materializations accumulate; none is ever removed.
func (r *Registry) AddMaterialization(ctx context.Context, tenantID, artifactID string, m domain.Materialization) error {
	artifact, err := r.store.GetArtifact(ctx, tenantID, artifactID)
	if err != nil {
		return err
	}

	artifact.Materializations = append(artifact.Materializations, m)
	artifact.UpdatedAt = r.now().UTC()
	return r.store.PutArtifact(ctx, artifact)
}

// Transition moves the artifact lifecycle forward. Backward transitions and
// any transition out of Archived fail with ErrInvalidTransition and leave
// the record unchanged.
func (r *Registry) Transition(ctx context.Context, tenantID, artifactID string, target domain.LifecycleState) error {
	artifact, err := r.store.GetArtifact(ctx, tenantID, artifactID)
	if err != nil {
		return err
	}

	if !artifact.LifecycleState.CanTransitionTo(target) {
		return fmt.Errorf("artifact %s: %s -> %s: %w",
			artifactID, artifact.LifecycleState, target, domain.ErrInvalidTransition)
	}

	artifact.LifecycleState = target
	artifact.UpdatedAt = r.now().UTC()

	if err := r.store.PutArtifact(ctx, artifact); err != nil {
		return err
	}
	r.updateIndex(ctx, artifact)
	return nil
}

// Resolve loads an artifact by ID, scoped to the tenant.
func (r *Registry) Resolve(ctx context.Context, tenantID, artifactID string) (*domain.Artifact, error) {
	return r.store.GetArtifact(ctx, tenantID, artifactID)
}

// List is a read-only discovery operation. Pagination is mandatory; the
// limit is clamped so a single call cannot drain the store.
func (r *Registry) List(ctx context.Context, filter domain.ArtifactFilter) ([]*domain.Artifact, error) {
	if filter.TenantID == "" {
		return nil, &domain.ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return r.store.ListArtifacts(ctx, filter)
}

// updateIndex refreshes the discovery index. Index failure degrades
// discovery only; the primary record already succeeded and a later
// reconciliation pass can rebuild the index from it.
func (r *Registry) updateIndex(ctx context.Context, artifact *domain.Artifact) {
	if err := r.store.UpdateIndex(ctx, artifact); err != nil {
		r.logger.Warn("artifact index update failed, discovery may lag",
			"artifact_id", artifact.ArtifactID,
			"tenant_id", artifact.TenantID,
			"err", err,
		)
	}
}

func sameIdentity(existing *domain.Artifact, reg Registration) bool {
	return existing.ArtifactType == reg.ArtifactType &&
		existing.ProducedBy == reg.ProducedBy &&
		equalDescriptors(existing.Descriptor, reg.Descriptor) &&
		equalParents(existing.ParentIDs, reg.ParentIDs)
}

// equalDescriptors treats a nil descriptor and an empty one as identical;
// JSON round-trips through the store do not preserve that distinction.
func equalDescriptors(a, b map[string]any) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func equalParents(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
