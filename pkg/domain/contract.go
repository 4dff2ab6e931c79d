package domain

import "time"

// ContractStatus is the boundary contract lifecycle. Authorized and Expired
// are both terminal.
type ContractStatus string

const (
	ContractPendingAuthorization ContractStatus = "pending_authorization"
	ContractAuthorized           ContractStatus = "authorized"
	ContractExpired              ContractStatus = "expired"
)

// BoundaryContract links an ingested-but-uncommitted artifact to the
// explicit act that commits it. One contract authorizes exactly one
// materialization transition; contracts are never reused across artifacts.
type BoundaryContract struct {
	ContractID string         `json:"boundary_contract_id"`
	ArtifactID string         `json:"artifact_id"`
	TenantID   string         `json:"tenant_id"`
	Status     ContractStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`

	// AuthorizedAt is set exactly once, by the winning authorize call.
	AuthorizedAt *time.Time `json:"authorized_at,omitempty"`
}
