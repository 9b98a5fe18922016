package templates

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishiki-ai/tapestry/internal/workflow"
)

func TestVariables(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []string
	}{
		{"none", "plain text", nil},
		{"single", "Outline: {{user_request}}", []string{"user_request"}},
		{"multiple", "{{a}} then {{b}} then {{a}}", []string{"a", "b"}},
		{"underscore and digits", "{{task_1}} {{_x2}}", []string{"task_1", "_x2"}},
		{"unterminated", "broken {{abc", nil},
		{"empty braces", "{{}} {{ok}}", []string{"ok"}},
		{"bad first char", "{{1abc}} {{ok}}", []string{"ok"}},
		{"space inside", "{{not ok}} {{ok}}", []string{"ok"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Variables(tt.template))
		})
	}
}

func TestRender(t *testing.T) {
	vars := map[string]string{
		"user_request": "Distributed systems",
		"outline":      "1. Intro",
	}

	out, err := Render("draft", "Write based on {{outline}} for: {{user_request}}", vars)
	require.NoError(t, err)
	assert.Equal(t, "Write based on 1. Intro for: Distributed systems", out)
}

func TestRenderLeavesLiteralBraces(t *testing.T) {
	out, err := Render("t", "json like {{\"k\": 1}} and {{v}}", map[string]string{"v": "x"})
	require.NoError(t, err)
	assert.Equal(t, "json like {{\"k\": 1}} and x", out)
}

func TestRenderUnresolved(t *testing.T) {
	_, err := Render("draft", "Use {{ghost}}", map[string]string{"other": "y"})
	require.Error(t, err)

	var terr *workflow.TemplateError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "draft", terr.TaskName)
	assert.Equal(t, "ghost", terr.Variable)
}

func TestRenderEmptyValueIsResolved(t *testing.T) {
	out, err := Render("t", "[{{v}}]", map[string]string{"v": ""})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}
