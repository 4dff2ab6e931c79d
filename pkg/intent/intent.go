// Package intent defines the handler contract and the boot-time registry
// that maps intent type names to handlers.
package intent

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/graft/pkg/artifact"
	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/state"
	"github.com/mitchellh/mapstructure"
)

// ExecutionContext is the vehicle a handler uses to reach state. It is
// built fresh per execution attempt and never persisted.
type ExecutionContext struct {
	ExecutionID string
	IntentType  string
	TenantID    string
	SessionID   string
	Parameters  map[string]any
	Metadata    map[string]any

	// State and Artifacts are the only state handles a handler gets.
	// There is no ambient/global lookup.
	State     *state.Surface
	Artifacts *artifact.Registry
}

// DecodeParameters decodes the raw parameter map into a typed struct using
// mapstructure tags. Handlers own parameter semantics; this is just the
// plumbing.
func (ec *ExecutionContext) DecodeParameters(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("failed to build parameter decoder: %w", err)
	}
	if err := decoder.Decode(ec.Parameters); err != nil {
		return &domain.ValidationError{Field: "parameters", Reason: err.Error()}
	}
	return nil
}

// Handler is the uniform functional interface every domain realm
// implements. It either returns artifacts plus events, or an error
// (ideally a *domain.HandlerError carrying its own retryable flag).
type Handler func(ctx context.Context, ec *ExecutionContext) (*domain.HandlerOutput, error)

// Registry manages the available handlers. It is populated once at boot;
// the lock exists for the rare hot-reload embedder, not for the execution
// fast path.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for the intent type.
// If a handler with the same name exists, it is overwritten.
func (r *Registry) Register(intentType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[intentType] = h
}

// Resolve looks up the handler for an intent type.
func (r *Registry) Resolve(intentType string) (Handler, error) {
	r.mu.RLock()
	h, ok := r.handlers[intentType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%q: %w", intentType, domain.ErrIntentNotFound)
	}
	return h, nil
}

// Types returns the registered intent type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		types = append(types, name)
	}
	return types
}
