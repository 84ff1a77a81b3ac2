package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateBool(t *testing.T) {
	e := NewEvaluator()

	candidate := map[string]interface{}{
		"name":              "Ada",
		"mutualConnections": 12,
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"threshold met", "${candidate.mutualConnections >= 10}", true},
		{"threshold not met", "${candidate.mutualConnections >= 20}", false},
		{"compound", "${candidate.mutualConnections > 5 && candidate.name.length > 0}", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EvaluateBool(tt.expr, map[string]interface{}{"candidate": candidate})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluatePlainStringPassthrough(t *testing.T) {
	e := NewEvaluator()

	got, err := e.Evaluate("not an expression", nil)
	require.NoError(t, err)
	assert.Equal(t, "not an expression", got)
}

func TestEvaluateBoolErrors(t *testing.T) {
	e := NewEvaluator()

	_, err := e.EvaluateBool("${this is not valid js", nil)
	assert.Error(t, err)

	_, err = e.EvaluateBool("${1 + 1}", nil)
	assert.Error(t, err, "non-boolean result must be rejected")
}
