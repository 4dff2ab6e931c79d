package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/graft/internal/logging"
	"github.com/aretw0/graft/pkg/artifact"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/ports"
)

// DefaultContractTTL is how long an ingested artifact waits for its
// authorize call before the contract expires.
const DefaultContractTTL = 15 * time.Minute

// Boundary implements the two-phase materialization hand-off: ingest
// accepts bytes, authorize commits to using them. Splitting the two lets
// callers inspect or abandon uploads before they enter any authoritative
// lineage, and makes the commitment exactly-once even when the ingest
// response is lost and retried.
type Boundary struct {
	artifacts *artifact.Registry
	contracts ports.ContractStore

	hooks  domain.LifecycleHooks
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
	newID  func(prefix string) string
}

// BoundaryOption configures the Boundary.
type BoundaryOption func(*Boundary)

// WithContractTTL sets the authorization deadline for new contracts.
func WithContractTTL(ttl time.Duration) BoundaryOption {
	return func(b *Boundary) {
		b.ttl = ttl
	}
}

// WithBoundaryLogger sets a structured logger.
func WithBoundaryLogger(logger *slog.Logger) BoundaryOption {
	return func(b *Boundary) {
		b.logger = logger
	}
}

// WithBoundaryHooks registers observability hooks.
func WithBoundaryHooks(hooks domain.LifecycleHooks) BoundaryOption {
	return func(b *Boundary) {
		b.hooks = hooks
	}
}

// WithBoundaryClock overrides the time source. Used by tests.
func WithBoundaryClock(now func() time.Time) BoundaryOption {
	return func(b *Boundary) {
		b.now = now
	}
}

// WithBoundaryIDGenerator overrides ID generation. Used by tests.
func WithBoundaryIDGenerator(newID func(prefix string) string) BoundaryOption {
	return func(b *Boundary) {
		b.newID = newID
	}
}

// NewBoundary creates the protocol over the registry and contract store.
func NewBoundary(artifacts *artifact.Registry, contracts ports.ContractStore, opts ...BoundaryOption) *Boundary {
	b := &Boundary{
		artifacts: artifacts,
		contracts: contracts,
		logger:    logging.NewNop(),
		ttl:       DefaultContractTTL,
		now:       time.Now,
		newID:     defaultID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// IngestRequest describes an uploaded or derived payload whose raw content
// has already landed somewhere addressable.
type IngestRequest struct {
	TenantID        string                 `json:"tenant_id" mapstructure:"tenant_id"`
	ArtifactType    string                 `json:"artifact_type" mapstructure:"artifact_type"`
	Descriptor      map[string]any         `json:"descriptor,omitempty" mapstructure:"descriptor"`
	ParentIDs       []string               `json:"parent_ids,omitempty" mapstructure:"parent_ids"`
	ProducedBy      domain.ProducedBy      `json:"produced_by,omitempty" mapstructure:"produced_by"`
	Materialization domain.Materialization `json:"materialization" mapstructure:"materialization"`
}

// IngestReceipt is what the caller needs to later authorize (or abandon)
// the artifact.
type IngestReceipt struct {
	ArtifactID string    `json:"artifact_id"`
	ContractID string    `json:"boundary_contract_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AuthorizeReceipt reports the terminal outcome of an authorize call.
type AuthorizeReceipt struct {
	Status     domain.ContractStatus `json:"status"`
	ArtifactID string                `json:"artifact_id"`
}

// Ingest registers a Pending artifact with its initial materialization and
// opens a boundary contract. The artifact exists after this call but is
// invisible to downstream intents until authorized.
func (b *Boundary) Ingest(ctx context.Context, req IngestRequest) (*IngestReceipt, error) {
	if req.TenantID == "" {
		return nil, &domain.ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if req.ArtifactType == "" {
		return nil, &domain.ValidationError{Field: "artifact_type", Reason: "must not be empty"}
	}
	if req.Materialization.URI == "" {
		return nil, &domain.ValidationError{Field: "materialization.uri", Reason: "must not be empty"}
	}

	registered, err := b.artifacts.Register(ctx, artifact.Registration{
		ArtifactID:   b.newID("art"),
		ArtifactType: req.ArtifactType,
		TenantID:     req.TenantID,
		ProducedBy:   req.ProducedBy,
		Descriptor:   req.Descriptor,
		ParentIDs:    req.ParentIDs,
	})
	if err != nil {
		return nil, err
	}

	m := req.Materialization
	if m.MaterializationID == "" {
		m.MaterializationID = b.newID("mat")
	}
	if err := b.artifacts.AddMaterialization(ctx, req.TenantID, registered.ArtifactID, m); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	contract := &domain.BoundaryContract{
		ContractID: b.newID("bct"),
		ArtifactID: registered.ArtifactID,
		TenantID:   req.TenantID,
		Status:     domain.ContractPendingAuthorization,
		CreatedAt:  now,
		ExpiresAt:  now.Add(b.ttl),
	}
	if err := b.contracts.PutContract(ctx, contract); err != nil {
		return nil, err
	}

	b.logger.Info("artifact ingested",
		"artifact_id", registered.ArtifactID,
		"boundary_contract_id", contract.ContractID,
		"tenant_id", req.TenantID,
		"expires_at", contract.ExpiresAt,
	)
	return &IngestReceipt{
		ArtifactID: registered.ArtifactID,
		ContractID: contract.ContractID,
		ExpiresAt:  contract.ExpiresAt,
	}, nil
}

// Authorize commits the ingested artifact: the artifact moves Pending ->
// Ready exactly once and the contract becomes Authorized (terminal).
// Re-submitting for an already-authorized contract returns the original
// outcome. Expired contracts are reported, never resurrected; the read
// path does not mutate state, expiry is the sweeper's job.
func (b *Boundary) Authorize(ctx context.Context, tenantID, artifactID, contractID string) (*AuthorizeReceipt, error) {
	contract, err := b.contracts.GetContract(ctx, tenantID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.ArtifactID != artifactID {
		return nil, fmt.Errorf("contract %s references %s, not %s: %w",
			contractID, contract.ArtifactID, artifactID, domain.ErrContractMismatch)
	}

	switch contract.Status {
	case domain.ContractAuthorized:
		// Idempotent re-submission. Also heal a partial failure where the
		// contract flipped but the artifact transition never landed.
		if err := b.ensureReady(ctx, tenantID, artifactID); err != nil {
			return nil, err
		}
		return &AuthorizeReceipt{Status: domain.ContractAuthorized, ArtifactID: artifactID}, nil

	case domain.ContractExpired:
		return nil, fmt.Errorf("contract %s: %w", contractID, domain.ErrContractExpired)
	}

	if b.now().After(contract.ExpiresAt) {
		// Overdue but not yet swept. Report expiry without mutating.
		return nil, fmt.Errorf("contract %s: %w", contractID, domain.ErrContractExpired)
	}

	won, err := b.contracts.MarkAuthorized(ctx, tenantID, contractID, b.now().UTC())
	if err != nil {
		return nil, err
	}
	if !won {
		// Lost the race. Exactly one caller performs the transition; we
		// observe the terminal state and return the cached outcome.
		current, err := b.contracts.GetContract(ctx, tenantID, contractID)
		if err != nil {
			return nil, err
		}
		if current.Status != domain.ContractAuthorized {
			return nil, fmt.Errorf("contract %s: %w", contractID, domain.ErrContractExpired)
		}
		if err := b.ensureReady(ctx, tenantID, artifactID); err != nil {
			return nil, err
		}
		return &AuthorizeReceipt{Status: domain.ContractAuthorized, ArtifactID: artifactID}, nil
	}

	if err := b.ensureReady(ctx, tenantID, artifactID); err != nil {
		return nil, err
	}

	if b.hooks.OnContractAuthorized != nil {
		// Declared side effect: a follow-on action becomes eligible here.
		// Scheduling only — nothing is executed on this path.
		b.hooks.OnContractAuthorized(ctx, &domain.ContractEvent{
			ContractID: contractID,
			ArtifactID: artifactID,
			TenantID:   tenantID,
		})
	}

	b.logger.Info("contract authorized",
		"boundary_contract_id", contractID,
		"artifact_id", artifactID,
		"tenant_id", tenantID,
	)
	return &AuthorizeReceipt{Status: domain.ContractAuthorized, ArtifactID: artifactID}, nil
}

// ensureReady transitions the artifact to Ready if it is still Pending.
// Safe to call repeatedly: an already-Ready artifact is left untouched.
func (b *Boundary) ensureReady(ctx context.Context, tenantID, artifactID string) error {
	current, err := b.artifacts.Resolve(ctx, tenantID, artifactID)
	if err != nil {
		return err
	}
	if current.LifecycleState != domain.LifecyclePending {
		return nil
	}
	err = b.artifacts.Transition(ctx, tenantID, artifactID, domain.LifecycleReady)
	if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
		return err
	}
	return nil
}
