package graft

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/graft/internal/adapters/memory"
	"github.com/aretw0/graft/internal/adapters/sqlite"
	"github.com/aretw0/graft/internal/runtime"
	"github.com/aretw0/graft/pkg/artifact"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/intent"
	"github.com/aretw0/graft/pkg/ports"
	"github.com/aretw0/graft/pkg/state"
)

// Version is the library version.
const Version = "0.1.0"

// Runtime is the high-level entry point for the Graft library. It wires the
// stores, the idempotency guard, the execution engine and the boundary
// protocol behind one handle so embedders don't assemble the internals by
// hand.
type Runtime struct {
	intents   *intent.Registry
	surface   *state.Surface
	artifacts *artifact.Registry
	engine    *runtime.Engine
	boundary  *runtime.Boundary
	sweeper   *runtime.Sweeper
	store     *sqlite.Store

	hot               ports.KVStore
	logger            *slog.Logger
	hooks             domain.LifecycleHooks
	executionTimeout  time.Duration
	idempotencyWindow time.Duration
	contractTTL       time.Duration
	sweepInterval     time.Duration
	hotStateTTL       time.Duration
	onExpired         func(count int64)
}

// Option defines a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithHotStore injects the ephemeral tier, typically the Redis adapter.
// Defaults to an in-process store.
func WithHotStore(kv ports.KVStore) Option {
	return func(r *Runtime) {
		r.hot = kv
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runtime) {
		r.hooks = hooks
	}
}

// WithExecutionTimeout sets the wall-clock budget per execution.
func WithExecutionTimeout(timeout time.Duration) Option {
	return func(r *Runtime) {
		r.executionTimeout = timeout
	}
}

// WithIdempotencyWindow sets how long submission fingerprints dedup.
func WithIdempotencyWindow(window time.Duration) Option {
	return func(r *Runtime) {
		r.idempotencyWindow = window
	}
}

// WithContractTTL sets the authorization deadline for ingested artifacts.
func WithContractTTL(ttl time.Duration) Option {
	return func(r *Runtime) {
		r.contractTTL = ttl
	}
}

// WithSweepInterval sets how often the expiry sweeper runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(r *Runtime) {
		r.sweepInterval = interval
	}
}

// WithHotStateTTL sets the freshness window of the ephemeral tier.
func WithHotStateTTL(ttl time.Duration) Option {
	return func(r *Runtime) {
		r.hotStateTTL = ttl
	}
}

// WithExpiryCallback is invoked with the number of contracts each sweep
// expired, when greater than zero.
func WithExpiryCallback(fn func(count int64)) Option {
	return func(r *Runtime) {
		r.onExpired = fn
	}
}

// New initializes a Runtime over a SQLite file at dbPath. The ephemeral
// tier defaults to an in-process store; pass WithHotStore to use Redis.
func New(dbPath string, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		executionTimeout:  runtime.DefaultExecutionTimeout,
		idempotencyWindow: runtime.DefaultRetentionWindow,
		contractTTL:       runtime.DefaultContractTTL,
		sweepInterval:     runtime.DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.hot == nil {
		r.hot = memory.NewStore()
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, err
	}
	r.store = store

	surfaceOpts := []state.Option{}
	if r.logger != nil {
		surfaceOpts = append(surfaceOpts, state.WithLogger(r.logger))
	}
	if r.hotStateTTL > 0 {
		surfaceOpts = append(surfaceOpts, state.WithHotTTL(r.hotStateTTL))
	}
	r.surface = state.NewSurface(r.hot, store, surfaceOpts...)

	registryOpts := []artifact.Option{artifact.WithLifecycleHooks(r.hooks)}
	if r.logger != nil {
		registryOpts = append(registryOpts, artifact.WithLogger(r.logger))
	}
	r.artifacts = artifact.NewRegistry(store, registryOpts...)

	r.intents = intent.NewRegistry()

	guard := runtime.NewGuard(r.hot, runtime.WithRetentionWindow(r.idempotencyWindow))

	engineOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(r.hooks),
		runtime.WithExecutionTimeout(r.executionTimeout),
	}
	if r.logger != nil {
		engineOpts = append(engineOpts, runtime.WithLogger(r.logger))
	}
	r.engine = runtime.NewEngine(r.intents, r.surface, r.artifacts, guard, engineOpts...)

	boundaryOpts := []runtime.BoundaryOption{
		runtime.WithBoundaryHooks(r.hooks),
		runtime.WithContractTTL(r.contractTTL),
	}
	if r.logger != nil {
		boundaryOpts = append(boundaryOpts, runtime.WithBoundaryLogger(r.logger))
	}
	r.boundary = runtime.NewBoundary(r.artifacts, store, boundaryOpts...)

	sweeperOpts := []runtime.SweeperOption{
		runtime.WithSweepInterval(r.sweepInterval),
	}
	if r.logger != nil {
		sweeperOpts = append(sweeperOpts, runtime.WithSweeperLogger(r.logger))
	}
	if r.onExpired != nil {
		sweeperOpts = append(sweeperOpts, runtime.WithExpiredCallback(r.onExpired))
	}
	r.sweeper = runtime.NewSweeper(store, sweeperOpts...)

	return r, nil
}

// Close releases the durable store.
func (r *Runtime) Close() error {
	return r.store.Close()
}

// RegisterIntent binds a handler to an intent type. Registering the same
// type twice replaces the handler.
func (r *Runtime) RegisterIntent(intentType string, handler intent.Handler) {
	r.intents.Register(intentType, handler)
}

// Execute runs an intent to completion and returns its terminal result.
func (r *Runtime) Execute(ctx context.Context, in domain.Intent) (*domain.ExecutionResult, error) {
	return r.engine.Execute(ctx, in)
}

// Submit starts an intent asynchronously and returns the execution ID.
func (r *Runtime) Submit(ctx context.Context, in domain.Intent) (string, error) {
	return r.engine.Submit(ctx, in)
}

// Status returns the current result for an execution.
func (r *Runtime) Status(ctx context.Context, executionID string) (*domain.ExecutionResult, error) {
	return r.engine.Status(ctx, executionID)
}

// Ingest accepts an externally materialized payload and opens its boundary
// contract.
func (r *Runtime) Ingest(ctx context.Context, req runtime.IngestRequest) (*runtime.IngestReceipt, error) {
	return r.boundary.Ingest(ctx, req)
}

// Authorize commits a previously ingested artifact.
func (r *Runtime) Authorize(ctx context.Context, tenantID, artifactID, contractID string) (*runtime.AuthorizeReceipt, error) {
	return r.boundary.Authorize(ctx, tenantID, artifactID, contractID)
}

// ResolveArtifact returns one artifact within a tenant.
func (r *Runtime) ResolveArtifact(ctx context.Context, tenantID, artifactID string) (*domain.Artifact, error) {
	return r.artifacts.Resolve(ctx, tenantID, artifactID)
}

// ListArtifacts returns artifacts matching the filter, tenant-scoped.
func (r *Runtime) ListArtifacts(ctx context.Context, filter domain.ArtifactFilter) ([]*domain.Artifact, error) {
	return r.artifacts.List(ctx, filter)
}

// State exposes the session and execution state surface to embedders.
func (r *Runtime) State() *state.Surface {
	return r.surface
}

// Engine exposes the execution engine, e.g. for the HTTP adapter.
func (r *Runtime) Engine() *runtime.Engine {
	return r.engine
}

// Boundary exposes the ingest/authorize protocol.
func (r *Runtime) Boundary() *runtime.Boundary {
	return r.boundary
}

// Artifacts exposes the artifact registry.
func (r *Runtime) Artifacts() *artifact.Registry {
	return r.artifacts
}

// StartSweeper runs the contract expiry sweeper until ctx is canceled.
// Call it on its own goroutine.
func (r *Runtime) StartSweeper(ctx context.Context) {
	r.sweeper.Run(ctx)
}
