// Package ports defines the driven-port interfaces of the Graft runtime and
// reusable contract test suites for adapter implementations.
package ports

import (
	"context"
	"time"

	"github.com/aretw0/graft/pkg/domain"
)

// KVStore is the ephemeral tier: low latency, TTL-bounded, acceptable loss.
// Implementations must return domain.ErrKeyNotFound on a miss.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes the value only if the key is absent and reports whether
	// the write happened. This is the atomic check-and-set primitive the
	// idempotency guard is built on.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error
}

// RecordStore is the durable tier for opaque JSON documents, keyed by a
// record kind plus a key. Writes must survive store restarts.
type RecordStore interface {
	PutRecord(ctx context.Context, kind, key string, value []byte) error
	GetRecord(ctx context.Context, kind, key string) ([]byte, error)
}

// ArtifactStore persists artifact records and the secondary discovery
// index. The primary record (PutArtifact/GetArtifact) is authoritative;
// the index (UpdateIndex/ListArtifacts) only serves discovery and may lag.
type ArtifactStore interface {
	PutArtifact(ctx context.Context, artifact *domain.Artifact) error
	GetArtifact(ctx context.Context, tenantID, artifactID string) (*domain.Artifact, error)
	UpdateIndex(ctx context.Context, artifact *domain.Artifact) error
	ListArtifacts(ctx context.Context, filter domain.ArtifactFilter) ([]*domain.Artifact, error)
}

// ContractStore persists boundary contracts. MarkAuthorized is the atomic
// check-and-set for the authorize race: it flips the contract from
// pending_authorization to authorized and reports whether this call won.
type ContractStore interface {
	PutContract(ctx context.Context, contract *domain.BoundaryContract) error
	GetContract(ctx context.Context, tenantID, contractID string) (*domain.BoundaryContract, error)
	MarkAuthorized(ctx context.Context, tenantID, contractID string, at time.Time) (bool, error)

	// ExpireOverdue transitions every pending contract whose deadline has
	// passed to expired and returns how many it touched. Called by the
	// background sweep only; read paths never mutate.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyGuard deduplicates intent submissions within a retention
// window. CheckOrRecord atomically records executionID under fingerprint;
// if the fingerprint is already held, it returns the prior execution ID
// and isDuplicate=true. A store failure must surface as an error wrapping
// domain.ErrDependencyUnavailable — never as "not a duplicate".
//
// Release undoes a recording when the execution it points at cannot serve
// as a dedup answer (it failed, or its record never persisted). It must be
// a no-op if the fingerprint has since been re-claimed by another
// execution ID.
type IdempotencyGuard interface {
	CheckOrRecord(ctx context.Context, fingerprint, executionID string) (prior string, isDuplicate bool, err error)
	Release(ctx context.Context, fingerprint, executionID string) error
}
