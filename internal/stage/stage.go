// Package stage implements a linear workflow driver: stages run one
// after another in declaration order, each seeing the outputs of the
// stages before it. It trades the planner and dependency analysis for
// predictability; {{prev_output}} templates are its native mode.
package stage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nishiki-ai/tapestry/internal/agent"
	"github.com/nishiki-ai/tapestry/internal/llm"
	"github.com/nishiki-ai/tapestry/internal/memory"
	"github.com/nishiki-ai/tapestry/internal/templates"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

// Validator inspects a stage output. A false result rejects the output
// with a reason and triggers a retry when the stage has retries left.
type Validator func(output string) (valid bool, reason string)

// Stage is one step of a linear workflow. Its template may reference
// {{user_request}}, any earlier stage by name, or {{prev_output}} for
// the immediately preceding stage.
type Stage struct {
	Name           string `yaml:"name"`
	PromptTemplate string `yaml:"promptTemplate"`
	// MaxRetries is the number of re-attempts after a rejected output.
	MaxRetries int       `yaml:"maxRetries"`
	Validator  Validator `yaml:"-"`
}

// Result reports one stage's outcome, including how many attempts the
// validator consumed.
type Result struct {
	Stage    string
	Success  bool
	Output   string
	Error    string
	Attempts int
}

// Engine executes stage lists against one provider and store.
type Engine struct {
	provider llm.Provider
	store    memory.Store
	logger   *zap.Logger

	// ContinueOnError keeps executing later stages after a failure
	// instead of stopping. Failed stages contribute no variables.
	ContinueOnError bool
}

// NewEngine binds the engine to its provider and store.
func NewEngine(provider llm.Provider, store memory.Store, logger *zap.Logger) *Engine {
	return &Engine{provider: provider, store: store, logger: logger}
}

// Run executes the stages in order and returns one result per stage.
// By default the first terminal failure stops the run and is returned
// as the error; results for the stages that did run are still returned.
func (e *Engine) Run(ctx context.Context, userRequest string, stages []Stage) ([]Result, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}

	vars := map[string]string{workflow.UserRequestVar: userRequest}
	results := make([]Result, 0, len(stages))

	for _, stage := range stages {
		result := e.runStage(ctx, stage, vars)
		results = append(results, result)
		if !result.Success {
			if e.ContinueOnError {
				e.logger.Warn("stage failed, continuing",
					zap.String("stage", stage.Name),
					zap.String("error", result.Error),
				)
				continue
			}
			return results, fmt.Errorf("stage %q failed: %s", stage.Name, result.Error)
		}
		vars[stage.Name] = result.Output
		vars[workflow.PrevOutputVar] = result.Output
	}
	return results, nil
}

func (e *Engine) runStage(ctx context.Context, stage Stage, vars map[string]string) Result {
	prompt, err := templates.Render(stage.Name, stage.PromptTemplate, vars)
	if err != nil {
		return Result{Stage: stage.Name, Error: err.Error()}
	}

	sub := agent.New(agent.ImplicitName(stage.Name), "", e.provider, e.store, e.logger)
	attempts := 0
	for {
		attempts++
		execResult := sub.Execute(ctx, agent.ExecutionInput{Content: prompt})
		if !execResult.Success {
			return Result{Stage: stage.Name, Error: execResult.Error, Attempts: attempts}
		}

		if stage.Validator != nil {
			valid, reason := stage.Validator(execResult.Output)
			if !valid {
				if attempts <= stage.MaxRetries {
					e.logger.Info("stage output rejected, retrying",
						zap.String("stage", stage.Name),
						zap.String("reason", reason),
						zap.Int("attempt", attempts),
					)
					continue
				}
				return Result{
					Stage:    stage.Name,
					Error:    fmt.Sprintf("output rejected after %d attempts: %s", attempts, reason),
					Attempts: attempts,
				}
			}
		}
		return Result{Stage: stage.Name, Success: true, Output: execResult.Output, Attempts: attempts}
	}
}

func validateStages(stages []Stage) error {
	if len(stages) == 0 {
		return errors.New("no stages defined")
	}
	seen := make(map[string]bool, len(stages))
	for i, stage := range stages {
		if stage.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if seen[stage.Name] {
			return fmt.Errorf("duplicate stage name %q", stage.Name)
		}
		seen[stage.Name] = true
		if stage.PromptTemplate == "" {
			return fmt.Errorf("stage %q has no prompt template", stage.Name)
		}
	}
	return nil
}
