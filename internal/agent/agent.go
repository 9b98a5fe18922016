// Package agent implements sub-agents: a named binding of one LM
// provider, one system prompt, and a memory store.
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nishiki-ai/tapestry/internal/llm"
	"github.com/nishiki-ai/tapestry/internal/memory"
)

// ExecutionInput carries the content handed to a sub-agent for one
// execution, plus optional caller metadata.
type ExecutionInput struct {
	Content  string
	Metadata map[string]string
}

// ExecutionResult reports the outcome of one execution. Exactly one of
// Output and Error is meaningful, selected by Success.
type ExecutionResult struct {
	Success bool
	Output  string
	Error   string
}

// SubAgent executes prompts against a single provider under a stable
// name. The name scopes the agent's memory; two agents with distinct
// names never share history.
type SubAgent struct {
	name         string
	systemPrompt string
	provider     llm.Provider
	store        memory.Store
	logger       *zap.Logger
}

// New constructs a sub-agent. systemPrompt may be empty; the input is
// then sent to the provider verbatim.
func New(name, systemPrompt string, provider llm.Provider, store memory.Store, logger *zap.Logger) *SubAgent {
	return &SubAgent{
		name:         name,
		systemPrompt: systemPrompt,
		provider:     provider,
		store:        store,
		logger:       logger,
	}
}

// Name returns the agent's memory-scoping name.
func (a *SubAgent) Name() string { return a.name }

// Execute sends the combined system prompt and input to the provider
// and, on success, appends the exchange to the agent's memory. Provider
// failures are reported, not retried; the provider layer already
// retried transient ones.
func (a *SubAgent) Execute(ctx context.Context, input ExecutionInput) ExecutionResult {
	prompt := input.Content
	if a.systemPrompt != "" {
		prompt = a.systemPrompt + "\n\n" + input.Content
	}

	output, err := a.provider.Generate(ctx, prompt)
	if err != nil {
		a.logger.Warn("sub-agent execution failed",
			zap.String("agent", a.name),
			zap.String("provider", a.provider.Name()),
			zap.Error(err),
		)
		return ExecutionResult{Success: false, Error: err.Error()}
	}

	entry := fmt.Sprintf("input: %s\noutput: %s", input.Content, output)
	if err := a.store.AppendAgentMemory(ctx, a.name, entry); err != nil {
		a.logger.Warn("agent memory append failed",
			zap.String("agent", a.name),
			zap.Error(err),
		)
		return ExecutionResult{Success: false, Error: err.Error()}
	}

	return ExecutionResult{Success: true, Output: output}
}

// Memory returns the agent's retained history, oldest-first.
func (a *SubAgent) Memory(ctx context.Context, limit int) ([]string, error) {
	return a.store.LoadAgentMemory(ctx, a.name, limit)
}

// ImplicitName derives a unique agent name from a hint. Implicit agents
// are created per task so their memory never collides across tasks.
func ImplicitName(nameHint string) string {
	return nameHint + "-" + uuid.NewString()
}
