package domain

import "time"

// ExecutionStatus describes where an execution attempt is in its lifecycle.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// ArtifactRef is the caller-visible handle to an artifact produced by an
// execution. Downstream intents reference artifacts by ID; they never
// receive a copy of the artifact record itself.
type ArtifactRef struct {
	ArtifactID   string `json:"artifact_id"`
	ArtifactType string `json:"artifact_type"`
}

// ExecutionResult is the single source of truth for one execution attempt.
// Only the lifecycle engine writes it; everyone else polls.
type ExecutionResult struct {
	ExecutionID string          `json:"execution_id"`
	IntentType  string          `json:"intent_type"`
	TenantID    string          `json:"tenant_id"`
	SessionID   string          `json:"session_id"`
	Status      ExecutionStatus `json:"status"`

	// Artifacts maps the handler's declared output names to artifact refs.
	Artifacts map[string]ArtifactRef `json:"artifacts,omitempty"`
	Events    []Event                `json:"events,omitempty"`
	Error     *ErrorInfo             `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewExecutionResult creates a pending result for a fresh attempt.
func NewExecutionResult(executionID string, intent Intent) *ExecutionResult {
	return &ExecutionResult{
		ExecutionID: executionID,
		IntentType:  intent.Type,
		TenantID:    intent.TenantID,
		SessionID:   intent.SessionID,
		Status:      ExecutionPending,
		Artifacts:   make(map[string]ArtifactRef),
		CreatedAt:   time.Now().UTC(),
	}
}

// HandlerOutput is what a domain handler hands back on success.
type HandlerOutput struct {
	// Artifacts declares new artifacts keyed by an output name chosen by
	// the handler (e.g. "report"). Each is registered in Pending state.
	Artifacts map[string]ArtifactPayload `json:"artifacts,omitempty"`
	Events    []Event                    `json:"events,omitempty"`
}

// ArtifactPayload declares a to-be-registered artifact. The runtime assigns
// the artifact ID and ties lineage to the producing execution.
type ArtifactPayload struct {
	ArtifactType    string           `json:"artifact_type" mapstructure:"artifact_type"`
	Descriptor      map[string]any   `json:"descriptor,omitempty" mapstructure:"descriptor"`
	ParentIDs       []string         `json:"parent_ids,omitempty" mapstructure:"parent_ids"`
	Materialization *Materialization `json:"materialization,omitempty" mapstructure:"materialization"`
}
