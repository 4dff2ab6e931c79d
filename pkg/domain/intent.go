package domain

// Intent is a typed, named request for the runtime to perform one logical
// operation. It is immutable once submitted: the engine reads it, never
// writes it back.
type Intent struct {
	Type       string         `json:"intent_type" yaml:"intent_type" mapstructure:"intent_type"`
	TenantID   string         `json:"tenant_id" yaml:"tenant_id" mapstructure:"tenant_id"`
	SessionID  string         `json:"session_id" yaml:"session_id" mapstructure:"session_id"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" mapstructure:"parameters"`
	Metadata   map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty" mapstructure:"metadata"`
}

// Validate checks the fields every intent must carry before the engine will
// touch it. Parameter semantics belong to the handler, not to us.
func (i Intent) Validate() error {
	if i.Type == "" {
		return &ValidationError{Field: "intent_type", Reason: "must not be empty"}
	}
	if i.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	}
	if i.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "must not be empty"}
	}
	return nil
}
