package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nishiki-ai/tapestry/internal/memory"
)

type stubProvider struct {
	reply string
	err   error
	calls int
	last  string
}

func (p *stubProvider) Generate(_ context.Context, prompt string) (string, error) {
	p.calls++
	p.last = prompt
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *stubProvider) Name() string  { return "stub" }
func (p *stubProvider) Model() string { return "stub-1" }

func TestSubAgentExecuteSuccess(t *testing.T) {
	store := memory.NewInMemoryStore(20)
	provider := &stubProvider{reply: "a haiku"}
	a := New("poet", "You write poetry.", provider, store, zaptest.NewLogger(t))

	result := a.Execute(context.Background(), ExecutionInput{Content: "write about autumn"})
	require.True(t, result.Success)
	assert.Equal(t, "a haiku", result.Output)
	assert.Empty(t, result.Error)

	// System prompt is prepended to the input.
	assert.Equal(t, "You write poetry.\n\nwrite about autumn", provider.last)

	// The exchange was appended to the agent's memory.
	entries, err := a.Memory(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], "write about autumn")
	assert.Contains(t, entries[0], "a haiku")
}

func TestSubAgentExecuteWithoutSystemPrompt(t *testing.T) {
	provider := &stubProvider{reply: "ok"}
	a := New("plain", "", provider, memory.NewInMemoryStore(20), zaptest.NewLogger(t))

	result := a.Execute(context.Background(), ExecutionInput{Content: "hello"})
	require.True(t, result.Success)
	assert.Equal(t, "hello", provider.last)
}

func TestSubAgentExecuteProviderFailure(t *testing.T) {
	store := memory.NewInMemoryStore(20)
	provider := &stubProvider{err: errors.New("model overloaded")}
	a := New("poet", "You write poetry.", provider, store, zaptest.NewLogger(t))

	result := a.Execute(context.Background(), ExecutionInput{Content: "write about autumn"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "model overloaded")
	assert.Equal(t, 1, provider.calls, "failures are not retried at the agent layer")

	// Nothing is remembered for failed executions.
	entries, err := a.Memory(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImplicitName(t *testing.T) {
	a := ImplicitName("writer")
	b := ImplicitName("writer")
	assert.True(t, strings.HasPrefix(a, "writer-"))
	assert.True(t, strings.HasPrefix(b, "writer-"))
	assert.NotEqual(t, a, b)
}

func TestRegistry(t *testing.T) {
	store := memory.NewInMemoryStore(20)
	logger := zaptest.NewLogger(t)
	reg := NewRegistry()

	writer := New("writer", "", &stubProvider{reply: "x"}, store, logger)
	editor := New("editor", "", &stubProvider{reply: "y"}, store, logger)
	require.NoError(t, reg.Register(writer))
	require.NoError(t, reg.Register(editor))

	err := reg.Register(New("writer", "", &stubProvider{}, store, logger))
	assert.Error(t, err)

	got, ok := reg.Get("editor")
	require.True(t, ok)
	assert.Same(t, editor, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"editor", "writer"}, reg.Names())
}
