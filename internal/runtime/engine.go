// Package runtime contains the orchestration core of Graft: the execution
// lifecycle engine, the idempotency guard, the boundary contract protocol
// and the contract expiry sweeper.
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
	"github.com/aretw0/graft/pkg/intent"
	"github.com/aretw0/graft/pkg/ports"
	"github.com/aretw0/graft/pkg/state"
	"github.com/google/uuid"
)

// DefaultExecutionTimeout is the wall-clock budget per handler invocation.
const DefaultExecutionTimeout = 5 * time.Minute

// Engine is the Execution Lifecycle Manager: the only component allowed to
// write execution status. It receives an intent, consults the idempotency
// guard, resolves and invokes the handler, and persists the outcome.
type Engine struct {
	intents   *intent.Registry
	state     *state.Surface
	artifacts *artifact.Registry
	guard     ports.IdempotencyGuard

	hooks   domain.LifecycleHooks
	logger  *slog.Logger
	timeout time.Duration
	newID   func(prefix string) string
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithExecutionTimeout sets the wall-clock budget per execution.
func WithExecutionTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

// WithIDGenerator overrides ID generation. Used by tests.
func WithIDGenerator(newID func(prefix string) string) EngineOption {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates an Engine with its collaborators.
func NewEngine(intents *intent.Registry, surface *state.Surface, artifacts *artifact.Registry, guard ports.IdempotencyGuard, opts ...EngineOption) *Engine {
	e := &Engine{
		intents:   intents,
		state:     surface,
		artifacts: artifacts,
		guard:     guard,
		logger:    logging.NewNop(),
		timeout:   DefaultExecutionTimeout,
		newID:     defaultID,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func defaultID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// preparation is the synchronous half of an execution: validation plus the
// guard decision. It is shared by Execute and Submit so duplicate submits
// agree on the execution ID regardless of entry point.
type preparation struct {
	result    *domain.ExecutionResult
	handler   intent.Handler
	duplicate bool
}

func (e *Engine) prepare(ctx context.Context, in domain.Intent) (*preparation, error) {
	// Fail fast, before any side effects.
	if err := in.Validate(); err != nil {
		return nil, err
	}
	handler, err := e.intents.Resolve(in.Type)
	if err != nil {
		return nil, err
	}

	executionID := e.newID("exc")
	fp := Fingerprint(in)
	prior, duplicate, err := e.guard.CheckOrRecord(ctx, fp, executionID)
	if err != nil {
		return nil, err
	}

	if duplicate {
		result, err := e.state.LoadExecution(ctx, prior)
		if errors.Is(err, domain.ErrExecutionNotFound) {
			// The winning submission recorded the fingerprint but has not
			// persisted its pending result yet. Hand the caller the prior
			// ID to poll; the record appears as soon as the winner lands.
			result = domain.NewExecutionResult(prior, in)
			return &preparation{result: result, duplicate: true}, nil
		}
		if err != nil {
			return nil, err
		}

		if result.Status != domain.ExecutionFailed {
			e.fireDuplicate(ctx, in, result)
			return &preparation{result: result, duplicate: true}, nil
		}

		// A Failed outcome does not dedup: a retryable error is only
		// retryable if the retry actually re-runs the handler. Free the
		// fingerprint and contend for it again; exactly one retry wins.
		if err := e.guard.Release(ctx, fp, prior); err != nil {
			return nil, err
		}
		prior, duplicate, err = e.guard.CheckOrRecord(ctx, fp, executionID)
		if err != nil {
			return nil, err
		}
		if duplicate {
			// Another retry claimed the fingerprint first; report theirs.
			result, err := e.state.LoadExecution(ctx, prior)
			if errors.Is(err, domain.ErrExecutionNotFound) {
				result = domain.NewExecutionResult(prior, in)
			} else if err != nil {
				return nil, err
			} else {
				e.fireDuplicate(ctx, in, result)
			}
			return &preparation{result: result, duplicate: true}, nil
		}
	}

	result := domain.NewExecutionResult(executionID, in)
	if err := e.state.SaveExecution(ctx, result); err != nil {
		// Free the fingerprint: leaving it pointed at an execution whose
		// record never landed would trap every retry in the duplicate
		// branch for the whole retention window.
		if rerr := e.guard.Release(ctx, fp, executionID); rerr != nil {
			e.logger.Warn("failed to release fingerprint after persist failure",
				"execution_id", executionID,
				"err", rerr,
			)
		}
		return nil, err
	}
	return &preparation{result: result, handler: handler}, nil
}

func (e *Engine) fireDuplicate(ctx context.Context, in domain.Intent, result *domain.ExecutionResult) {
	if e.hooks.OnExecutionEnd == nil {
		return
	}
	e.hooks.OnExecutionEnd(ctx, &domain.ExecutionEvent{
		ExecutionID: result.ExecutionID,
		IntentType:  in.Type,
		TenantID:    in.TenantID,
		Status:      result.Status,
		Duplicate:   true,
	})
}

// Execute runs an intent to completion and returns its terminal result.
// Handler failures and timeouts are not Go errors here: they come back as
// a Failed result with structured ErrorInfo. The returned error is
// reserved for fail-fast rejections (validation, unknown intent) and
// store unavailability.
func (e *Engine) Execute(ctx context.Context, in domain.Intent) (*domain.ExecutionResult, error) {
	prep, err := e.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	if prep.duplicate {
		return prep.result, nil
	}
	return e.run(ctx, in, prep)
}

// Submit starts an intent asynchronously and returns the execution ID for
// polling. Duplicate submissions return the prior execution's ID without
// invoking the handler again.
func (e *Engine) Submit(ctx context.Context, in domain.Intent) (string, error) {
	prep, err := e.prepare(ctx, in)
	if err != nil {
		return "", err
	}
	if prep.duplicate {
		return prep.result.ExecutionID, nil
	}

	// Detach from the caller's context: an abandoned HTTP request must not
	// cancel an execution that has already been accepted.
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.run(bg, in, prep); err != nil {
			e.logger.Error("async execution failed to persist",
				"execution_id", prep.result.ExecutionID,
				"intent_type", in.Type,
				"err", err,
			)
		}
	}()
	return prep.result.ExecutionID, nil
}

// Status returns the current result for an execution.
func (e *Engine) Status(ctx context.Context, executionID string) (*domain.ExecutionResult, error) {
	return e.state.LoadExecution(ctx, executionID)
}

// run invokes the handler and persists the terminal result. It is the sole
// writer for its execution ID, so all state writes are sequential.
func (e *Engine) run(ctx context.Context, in domain.Intent, prep *preparation) (*domain.ExecutionResult, error) {
	result := prep.result
	started := time.Now()

	result.Status = domain.ExecutionRunning
	if err := e.state.SaveExecution(ctx, result); err != nil {
		return nil, err
	}

	if e.hooks.OnExecutionStart != nil {
		e.hooks.OnExecutionStart(ctx, &domain.ExecutionEvent{
			ExecutionID: result.ExecutionID,
			IntentType:  in.Type,
			TenantID:    in.TenantID,
			Status:      result.Status,
		})
	}

	ec := &intent.ExecutionContext{
		ExecutionID: result.ExecutionID,
		IntentType:  in.Type,
		TenantID:    in.TenantID,
		SessionID:   in.SessionID,
		Parameters:  in.Parameters,
		Metadata:    in.Metadata,
		State:       e.state,
		Artifacts:   e.artifacts,
	}

	output, handlerErr := e.invoke(ctx, prep.handler, ec)

	switch {
	case handlerErr != nil:
		// Recorded verbatim; the engine never swallows or reinterprets a
		// handler error. Artifacts registered before the failure stay:
		// registration is append-only and safe to leave.
		result.Status = domain.ExecutionFailed
		result.Error = domain.ClassifyError(handlerErr)
	default:
		if err := e.collectArtifacts(ctx, in, result, output); err != nil {
			result.Status = domain.ExecutionFailed
			result.Error = domain.ClassifyError(err)
		} else {
			result.Status = domain.ExecutionCompleted
			result.Events = append(result.Events, output.Events...)
		}
	}

	completedAt := time.Now().UTC()
	result.CompletedAt = &completedAt
	if err := e.state.SaveExecution(ctx, result); err != nil {
		// The outcome could not be recorded; surface a retryable error
		// rather than an ambiguous "maybe succeeded".
		return nil, err
	}

	if e.hooks.OnExecutionEnd != nil {
		e.hooks.OnExecutionEnd(ctx, &domain.ExecutionEvent{
			ExecutionID: result.ExecutionID,
			IntentType:  in.Type,
			TenantID:    in.TenantID,
			Status:      result.Status,
			Duration:    time.Since(started),
		})
	}

	e.logger.Info("execution finished",
		"execution_id", result.ExecutionID,
		"intent_type", in.Type,
		"tenant_id", in.TenantID,
		"status", result.Status,
		"duration", time.Since(started),
	)
	return result, nil
}

// invoke runs the handler under the wall-clock budget. On timeout the
// engine stops waiting; the handler goroutine is expected to honor context
// cancellation but is not force-killed.
func (e *Engine) invoke(ctx context.Context, handler intent.Handler, ec *intent.ExecutionContext) (*domain.HandlerOutput, error) {
	hctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		output *domain.HandlerOutput
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		output, err := handler(hctx, ec)
		done <- outcome{output: output, err: err}
	}()

	select {
	case <-hctx.Done():
		return nil, &domain.HandlerError{
			Kind:      domain.KindTimeout,
			Message:   fmt.Sprintf("execution exceeded budget of %s", e.timeout),
			Retryable: true,
		}
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		if o.output == nil {
			o.output = &domain.HandlerOutput{}
		}
		return o.output, nil
	}
}

// collectArtifacts registers every artifact the handler declared, in
// Pending state, and records the refs on the result.
func (e *Engine) collectArtifacts(ctx context.Context, in domain.Intent, result *domain.ExecutionResult, output *domain.HandlerOutput) error {
	for name, payload := range output.Artifacts {
		registered, err := e.artifacts.Register(ctx, artifact.Registration{
			ArtifactID:   e.newID("art"),
			ArtifactType: payload.ArtifactType,
			TenantID:     in.TenantID,
			ProducedBy:   domain.ProducedBy{IntentType: in.Type, ExecutionID: result.ExecutionID},
			Descriptor:   payload.Descriptor,
			ParentIDs:    payload.ParentIDs,
		})
		if err != nil {
			return fmt.Errorf("failed to register artifact %q: %w", name, err)
		}

		if payload.Materialization != nil {
			m := *payload.Materialization
			if m.MaterializationID == "" {
				m.MaterializationID = e.newID("mat")
			}
			if err := e.artifacts.AddMaterialization(ctx, in.TenantID, registered.ArtifactID, m); err != nil {
				return fmt.Errorf("failed to materialize artifact %q: %w", name, err)
			}
		}

		result.Artifacts[name] = domain.ArtifactRef{
			ArtifactID:   registered.ArtifactID,
			ArtifactType: registered.ArtifactType,
		}
	}
	return nil
}
