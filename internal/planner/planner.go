// Package planner turns a user request into an executable plan by
// prompting a planner LM for a JSON task array and parsing its reply.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nishiki-ai/tapestry/internal/llm"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

const metaPrompt = `You are a planning assistant. Decompose the request below into a plan of tasks.

Respond with ONLY a JSON array, no prose before or after it. Each element must be an object with exactly these keys:
  "name": a short snake_case identifier, unique within the plan
  "description": one sentence describing the task
  "promptTemplate": the prompt for the task; it may reference {{user_request}} or the output of another task as {{task_name}}

Reference a task's output only when the task genuinely depends on it; independent tasks run in parallel.

Request:
%s`

// Maker produces plans with a planner LM provider.
type Maker struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewMaker binds the planner to its LM provider.
func NewMaker(provider llm.Provider, logger *zap.Logger) *Maker {
	return &Maker{provider: provider, logger: logger}
}

// MakePlan asks the planner LM to decompose userRequest and parses the
// reply. An empty JSON array is a valid, empty plan.
func (m *Maker) MakePlan(ctx context.Context, userRequest string) (workflow.Plan, error) {
	raw, err := m.provider.Generate(ctx, fmt.Sprintf(metaPrompt, userRequest))
	if err != nil {
		return nil, fmt.Errorf("planner call: %w", err)
	}

	plan, err := ParsePlan(raw)
	if err != nil {
		return nil, err
	}

	m.logger.Info("plan created",
		zap.Int("tasks", len(plan)),
		zap.Strings("task_names", plan.TaskNames()),
	)
	return plan, nil
}

// ParsePlan extracts the task array from raw model output. Models often
// wrap the JSON in prose, so parsing takes the substring between the
// first '[' and the last ']'.
func ParsePlan(raw string) (workflow.Plan, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return nil, &workflow.PlanParseError{
			RawOutput: raw,
			Err:       errors.New("no JSON array found in model output"),
		}
	}

	var elements []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &elements); err != nil {
		return nil, &workflow.PlanParseError{RawOutput: raw, Err: err}
	}

	plan := make(workflow.Plan, 0, len(elements))
	seen := make(map[string]bool, len(elements))
	for i, element := range elements {
		task, err := parseTask(element)
		if err != nil {
			return nil, &workflow.PlanParseError{
				RawOutput: raw,
				Err:       fmt.Errorf("task %d: %w", i, err),
			}
		}
		if seen[task.Name] {
			return nil, &workflow.PlanParseError{
				RawOutput: raw,
				Err:       fmt.Errorf("duplicate task name %q", task.Name),
			}
		}
		seen[task.Name] = true
		plan = append(plan, task)
	}
	return plan, nil
}

func parseTask(element map[string]json.RawMessage) (workflow.TaskDefinition, error) {
	var task workflow.TaskDefinition
	for key, field := range map[string]*string{
		"name":           &task.Name,
		"description":    &task.Description,
		"promptTemplate": &task.PromptTemplate,
	} {
		raw, ok := element[key]
		if !ok {
			return task, fmt.Errorf("missing key %q", key)
		}
		if err := json.Unmarshal(raw, field); err != nil {
			return task, fmt.Errorf("key %q: %w", key, err)
		}
	}
	if task.Name == "" {
		return task, errors.New("empty task name")
	}
	return task, nil
}
