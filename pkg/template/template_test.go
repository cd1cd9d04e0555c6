package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandkit/strand/pkg/models"
)

func TestRender_CoercesResultTypes(t *testing.T) {
	data := map[string]any{
		"input": map[string]any{
			"count":  float64(3),
			"name":   "alice",
			"active": true,
		},
	}

	tests := []struct {
		name     string
		template string
		expected any
	}{
		{"string passthrough", "hello {{ .input.name }}", "hello alice"},
		{"numeric coercion", "{{ .input.count }}", float64(3)},
		{"boolean coercion", "{{ .input.active }}", true},
		{"json object decode", `{"user": "{{ .input.name }}"}`, map[string]any{"user": "alice"}},
		{"json array decode", `[1, 2]`, []any{float64(1), float64(2)}},
		{"upper func", "{{ upper .input.name }}", "ALICE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Render(tt.template, data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("{{ .input.", nil)

	assert.Error(t, err)
}

func TestRenderWithContext_ExposesExecutionScope(t *testing.T) {
	ec := &models.ExecutionContext{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Input:       map[string]any{"score": float64(70)},
		Variables:   map[string]any{"threshold": float64(50)},
	}

	result, err := RenderWithContext("{{ gt .input.score .vars.threshold }}", ec)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	id, err := RenderWithContext("{{ .execution.id }}", ec)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{"true bool", true, true},
		{"false bool", false, false},
		{"bool string", "true", true},
		{"false string", "false", false},
		{"non-empty string", "yes please", true},
		{"empty string", "", false},
		{"zero float", float64(0), false},
		{"non-zero float", 0.5, true},
		{"nil", nil, false},
		{"empty slice", []any{}, false},
		{"populated map", map[string]any{"k": "v"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Truthy(tt.value))
		})
	}
}
