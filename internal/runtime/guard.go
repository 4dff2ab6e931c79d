package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/ports"
)

// DefaultRetentionWindow bounds how long a fingerprint dedups. It must
// exceed the slowest expected end-to-end execution plus a safety margin,
// otherwise a slow-but-successful execution could be duplicated by a
// client retry that lands after expiry.
const DefaultRetentionWindow = time.Hour

// Guard implements ports.IdempotencyGuard on any KVStore with an atomic
// SetNX. Redis SET NX is the production primitive; the in-memory store
// serves tests and zero-infra embedders.
type Guard struct {
	kv     ports.KVStore
	prefix string
	window time.Duration
}

// GuardOption configures the Guard.
type GuardOption func(*Guard)

// WithRetentionWindow overrides the dedup window.
func WithRetentionWindow(window time.Duration) GuardOption {
	return func(g *Guard) {
		g.window = window
	}
}

// NewGuard creates a Guard over the given store.
func NewGuard(kv ports.KVStore, opts ...GuardOption) *Guard {
	g := &Guard{
		kv:     kv,
		prefix: "fingerprint:",
		window: DefaultRetentionWindow,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckOrRecord atomically records executionID under the fingerprint. If
// another execution already holds the fingerprint, its ID is returned with
// isDuplicate=true. Store failures are never treated as "not a duplicate";
// they surface as DependencyUnavailable so the caller can retry safely.
func (g *Guard) CheckOrRecord(ctx context.Context, fingerprint, executionID string) (string, bool, error) {
	key := g.prefix + fingerprint

	won, err := g.kv.SetNX(ctx, key, []byte(executionID), g.window)
	if err != nil {
		return "", false, guardErr("check-and-set", err)
	}
	if won {
		return executionID, false, nil
	}

	prior, err := g.kv.Get(ctx, key)
	if err != nil {
		// Losing the race and then missing the key (expiry in between, or
		// a store hiccup) is an inconsistency, not a green light.
		return "", false, guardErr("read prior", err)
	}
	return string(prior), true, nil
}

// Release frees the fingerprint if it still maps to executionID, letting a
// later submission contend for it again. Used when the recorded execution
// failed or its pending record never persisted; a fingerprint that has
// already been re-claimed by someone else is left alone.
func (g *Guard) Release(ctx context.Context, fingerprint, executionID string) error {
	key := g.prefix + fingerprint

	current, err := g.kv.Get(ctx, key)
	if errors.Is(err, domain.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return guardErr("read before release", err)
	}
	if string(current) != executionID {
		return nil
	}
	if err := g.kv.Delete(ctx, key); err != nil {
		return guardErr("release", err)
	}
	return nil
}

func guardErr(op string, err error) error {
	if errors.Is(err, domain.ErrDependencyUnavailable) {
		return fmt.Errorf("idempotency guard %s: %w", op, err)
	}
	return fmt.Errorf("idempotency guard %s: %w", op, errors.Join(domain.ErrDependencyUnavailable, err))
}
