package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/graft/internal/logging"
	"github.com/aretw0/graft/pkg/ports"
)

// DefaultSweepInterval is how often the sweeper looks for overdue contracts.
const DefaultSweepInterval = 30 * time.Second

// Sweeper expires overdue boundary contracts in the background. Expiry
// happens here and only here: read paths report overdue contracts but
// never mutate them.
type Sweeper struct {
	contracts ports.ContractStore
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	// onExpired, when set, receives the count of each non-empty sweep.
	// Used to feed metrics without coupling this package to prometheus.
	onExpired func(count int64)
}

// SweeperOption configures the Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the sweep cadence.
func WithSweepInterval(interval time.Duration) SweeperOption {
	return func(s *Sweeper) {
		s.interval = interval
	}
}

// WithSweeperLogger sets a structured logger.
func WithSweeperLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithExpiredCallback registers a callback fired after each sweep that
// expired at least one contract.
func WithExpiredCallback(fn func(count int64)) SweeperOption {
	return func(s *Sweeper) {
		s.onExpired = fn
	}
}

// WithSweeperClock overrides the time source. Used by tests.
func WithSweeperClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

// NewSweeper creates a Sweeper over the contract store.
func NewSweeper(contracts ports.ContractStore, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		contracts: contracts,
		interval:  DefaultSweepInterval,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, sweeping on the configured interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single expiry pass. Exported so tests and cron-style
// embedders can drive it directly.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	count, err := s.contracts.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		s.logger.Warn("contract sweep failed, will retry next interval", "err", err)
		return
	}
	if count > 0 {
		s.logger.Info("expired overdue contracts", "count", count)
		if s.onExpired != nil {
			s.onExpired(count)
		}
	}
}
