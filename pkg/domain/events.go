package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventExecutionStart     EventType = "execution_start"
	EventExecutionEnd       EventType = "execution_end"
	EventArtifactRegistered EventType = "artifact_registered"
	EventContractAuthorized EventType = "contract_authorized"

	// EventFollowupScheduled records that a follow-on action became
	// eligible after an authorize. Scheduling only; nothing runs here.
	EventFollowupScheduled EventType = "followup_scheduled"
)

// Event is a timestamped record emitted by handlers or the runtime itself.
// Events ride along on the ExecutionResult; they are not a message bus.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType EventType, payload map[string]any) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Payload: payload}
}

// ExecutionEvent describes the start or end of one execution attempt.
type ExecutionEvent struct {
	ExecutionID string
	IntentType  string
	TenantID    string
	Status      ExecutionStatus
	Duration    time.Duration
	Duplicate   bool
}

// ArtifactEvent describes a registration or lifecycle transition.
type ArtifactEvent struct {
	ArtifactID   string
	ArtifactType string
	TenantID     string
	State        LifecycleState
}

// ContractEvent describes a boundary contract authorization.
type ContractEvent struct {
	ContractID string
	ArtifactID string
	TenantID   string
}

// LifecycleHooks defines callbacks for runtime observability. All hooks are
// optional and must not block; they run inline on the execution path.
type LifecycleHooks struct {
	OnExecutionStart     func(context.Context, *ExecutionEvent)
	OnExecutionEnd       func(context.Context, *ExecutionEvent)
	OnArtifactRegistered func(context.Context, *ArtifactEvent)
	OnContractAuthorized func(context.Context, *ContractEvent)
}
