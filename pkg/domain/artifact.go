package domain

import "time"

// LifecycleState is the artifact lifecycle. Transitions only move forward:
// Pending -> Ready -> Archived. There is no rewind; restoring an archived
// artifact would be a new record, not a backward transition.
type LifecycleState string

const (
	// LifecyclePending marks an artifact that exists but has not been
	// committed yet ("working material"). Invisible to downstream intents.
	LifecyclePending LifecycleState = "pending"

	// LifecycleReady marks a committed artifact ("record of fact").
	LifecycleReady LifecycleState = "ready"

	// LifecycleArchived is a soft delete. Storage is not erased.
	LifecycleArchived LifecycleState = "archived"
)

// CanTransitionTo enforces the forward-only ordering.
func (s LifecycleState) CanTransitionTo(target LifecycleState) bool {
	switch s {
	case LifecyclePending:
		return target == LifecycleReady
	case LifecycleReady:
		return target == LifecycleArchived
	default:
		return false
	}
}

// ProducedBy records artifact provenance.
type ProducedBy struct {
	IntentType  string `json:"intent_type"`
	ExecutionID string `json:"execution_id"`
}

// Materialization is one concrete storage representation backing an
// artifact. Materializations accumulate; they are never removed, only
// superseded by lifecycle transitions on the parent artifact.
type Materialization struct {
	MaterializationID string `json:"materialization_id" mapstructure:"materialization_id"`
	StorageType       string `json:"storage_type" mapstructure:"storage_type"`
	URI               string `json:"uri" mapstructure:"uri"`
	Format            string `json:"format,omitempty" mapstructure:"format"`
	Compression       string `json:"compression,omitempty" mapstructure:"compression"`
}

// Artifact is a registered, lineage-tracked unit of produced data.
// Identity (type, descriptor, parents, producer) is immutable once created;
// only the lifecycle state and the materialization list may grow.
type Artifact struct {
	ArtifactID       string            `json:"artifact_id"`
	ArtifactType     string            `json:"artifact_type"`
	TenantID         string            `json:"tenant_id"`
	LifecycleState   LifecycleState    `json:"lifecycle_state"`
	ProducedBy       ProducedBy        `json:"produced_by"`
	Descriptor       map[string]any    `json:"semantic_descriptor,omitempty"`
	ParentIDs        []string          `json:"parent_artifact_ids,omitempty"`
	Materializations []Materialization `json:"materializations,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ArtifactFilter scopes a discovery query. TenantID is mandatory; the
// registry never serves cross-tenant listings.
type ArtifactFilter struct {
	TenantID       string
	ArtifactType   string
	LifecycleState LifecycleState
	Limit          int
	Offset         int
}
