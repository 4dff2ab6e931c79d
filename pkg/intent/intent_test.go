package intent_test

import (
	"context"
	"testing"

	"github.com/aretw0/graft/pkg/domain"
	"github.com/aretw0/graft/pkg/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterResolve(t *testing.T) {
	registry := intent.NewRegistry()

	registry.Register("generate_report", func(ctx context.Context, ec *intent.ExecutionContext) (*domain.HandlerOutput, error) {
		return &domain.HandlerOutput{}, nil
	})

	h, err := registry.Resolve("generate_report")
	require.NoError(t, err)
	require.NotNil(t, h)

	_, err = registry.Resolve("unknown_intent")
	assert.ErrorIs(t, err, domain.ErrIntentNotFound)

	assert.ElementsMatch(t, []string{"generate_report"}, registry.Types())
}

func TestExecutionContext_DecodeParameters(t *testing.T) {
	ec := &intent.ExecutionContext{
		Parameters: map[string]any{
			"source_artifact": "art_1",
			"depth":           3,
		},
	}

	var params struct {
		SourceArtifact string `mapstructure:"source_artifact"`
		Depth          int    `mapstructure:"depth"`
	}
	require.NoError(t, ec.DecodeParameters(&params))
	assert.Equal(t, "art_1", params.SourceArtifact)
	assert.Equal(t, 3, params.Depth)
}

func TestExecutionContext_DecodeParameters_TypeMismatch(t *testing.T) {
	ec := &intent.ExecutionContext{
		Parameters: map[string]any{"depth": "not-a-number"},
	}

	var params struct {
		Depth int `mapstructure:"depth"`
	}
	err := ec.DecodeParameters(&params)

	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}
