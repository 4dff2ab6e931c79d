// Package state implements the State Surface: the single authorized path to
// read and write session-scoped and execution-scoped state.
//
// The surface fronts two tiers. The durable tier is authoritative; the hot
// tier is a TTL-bounded accelerator for immediate-subsequent polling. A hot
// miss always falls back to the durable tier, and a hot failure never fails
// the calling operation.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/graft/internal/logging"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/ports"
)

const (
	kindExecution = "execution"
	kindSession   = "session"

	defaultHotTTL = 5 * time.Minute
)

// Surface is the two-tier state facade.
type Surface struct {
	hot     ports.KVStore
	durable ports.RecordStore
	hotTTL  time.Duration
	logger  *slog.Logger
}

// Option configures the Surface.
type Option func(*Surface)

// WithHotTTL sets the expiry for hot copies of durable records.
func WithHotTTL(ttl time.Duration) Option {
	return func(s *Surface) {
		s.hotTTL = ttl
	}
}

// WithLogger configures a logger for deferred (non-fatal) errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Surface) {
		s.logger = logger
	}
}

// NewSurface creates a Surface over the given tiers.
func NewSurface(hot ports.KVStore, durable ports.RecordStore, opts ...Option) *Surface {
	s := &Surface{
		hot:     hot,
		durable: durable,
		hotTTL:  defaultHotTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func execKey(executionID string) string {
	return "exec:" + executionID
}

func sessionKey(tenantID, sessionID string) string {
	// Tenant isolation is enforced here: every session key carries the
	// tenant, so one tenant can never address another's state.
	return "session:" + tenantID + ":" + sessionID
}

// SaveExecution persists an execution result. Execution results are always
// durable; a durable-store failure fails the operation outright, because
// hot storage alone cannot honor the retention contract.
func (s *Surface) SaveExecution(ctx context.Context, result *domain.ExecutionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal execution result: %w", err)
	}
	return s.writeDurable(ctx, kindExecution, result.ExecutionID, execKey(result.ExecutionID), data)
}

// LoadExecution reads an execution result, hot tier first.
func (s *Surface) LoadExecution(ctx context.Context, executionID string) (*domain.ExecutionResult, error) {
	data, err := s.readThrough(ctx, kindExecution, executionID, execKey(executionID))
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, err
	}

	var result domain.ExecutionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
	}
	return &result, nil
}

// SaveSession persists session state. Sessions are durable as well: they
// outlive the hot tier's TTL by design.
func (s *Surface) SaveSession(ctx context.Context, tenantID, sessionID string, sessionState map[string]any) error {
	data, err := json.Marshal(sessionState)
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}
	durableKey := tenantID + "/" + sessionID
	return s.writeDurable(ctx, kindSession, durableKey, sessionKey(tenantID, sessionID), data)
}

// LoadSession reads session state, hot tier first.
func (s *Surface) LoadSession(ctx context.Context, tenantID, sessionID string) (map[string]any, error) {
	durableKey := tenantID + "/" + sessionID
	data, err := s.readThrough(ctx, kindSession, durableKey, sessionKey(tenantID, sessionID))
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	var sessionState map[string]any
	if err := json.Unmarshal(data, &sessionState); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session state: %w", err)
	}
	return sessionState, nil
}

// writeDurable writes the authoritative copy, then mirrors a hot copy.
func (s *Surface) writeDurable(ctx context.Context, kind, durableKey, hotKey string, data []byte) error {
	if err := s.durable.PutRecord(ctx, kind, durableKey, data); err != nil {
		return errors.Join(domain.ErrDependencyUnavailable, err)
	}

	// The hot copy is an optimization. If it fails, durability is already
	// guaranteed; log and continue.
	if err := s.hot.Set(ctx, hotKey, data, s.hotTTL); err != nil {
		s.logger.Warn("hot tier write failed, durable copy is authoritative",
			"kind", kind,
			"key", durableKey,
			"err", err,
		)
	}
	return nil
}

// readThrough tries the hot tier, falls back to durable, and repopulates
// the hot copy on a durable hit.
func (s *Surface) readThrough(ctx context.Context, kind, durableKey, hotKey string) ([]byte, error) {
	data, err := s.hot.Get(ctx, hotKey)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, domain.ErrKeyNotFound) {
		// A hot-tier outage is retryable for reads; the durable tier still
		// has the answer.
		s.logger.Warn("hot tier read failed, falling back to durable",
			"kind", kind,
			"key", durableKey,
			"err", err,
		)
	}

	data, err = s.durable.GetRecord(ctx, kind, durableKey)
	if err != nil {
		if errors.Is(err, domain.ErrKeyNotFound) {
			return nil, domain.ErrKeyNotFound
		}
		return nil, errors.Join(domain.ErrDependencyUnavailable, err)
	}

	if err := s.hot.Set(ctx, hotKey, data, s.hotTTL); err != nil {
		s.logger.Warn("hot tier repopulation failed",
			"kind", kind,
			"key", durableKey,
			"err", err,
		)
	}
	return data, nil
}
