// Package executor runs plan batches on a bounded worker pool, skipping
// tasks whose outputs are already persisted so interrupted workflows
// resume without repeating finished work.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nishiki-ai/tapestry/internal/agent"
	"github.com/nishiki-ai/tapestry/internal/memory"
	"github.com/nishiki-ai/tapestry/internal/metrics"
	"github.com/nishiki-ai/tapestry/internal/templates"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

const (
	defaultWorkers     = 4
	defaultTaskTimeout = 30 * time.Second
)

// AgentFactory builds the sub-agent that will execute a task.
type AgentFactory func(task workflow.TaskDefinition) *agent.SubAgent

// Executor fans each batch out to a bounded pool. Batches run strictly
// in order: no task of batch N+1 starts before batch N has completed.
type Executor struct {
	store       memory.Store
	workers     int
	taskTimeout time.Duration
	logger      *zap.Logger
}

// New constructs an executor. workers <= 0 and taskTimeout <= 0 fall
// back to the defaults (4 workers, 30s per task).
func New(store memory.Store, workers int, taskTimeout time.Duration, logger *zap.Logger) *Executor {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}
	return &Executor{store: store, workers: workers, taskTimeout: taskTimeout, logger: logger}
}

// Run executes the batches and returns one result per plan task, in
// plan order. The first task failure cancels the remaining in-flight
// tasks of its batch and fails the run with an ExecutionError; outputs
// persisted before the failure stay in the store for resume.
func (e *Executor) Run(
	ctx context.Context,
	workflowID, userRequest string,
	plan workflow.Plan,
	batches [][]workflow.TaskDefinition,
	factory AgentFactory,
) ([]agent.ExecutionResult, error) {
	outputs, err := e.store.LoadTaskOutputs(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load task outputs: %w", err)
	}

	planIndex := make(map[string]int, len(plan))
	for i, task := range plan {
		planIndex[task.Name] = i
	}

	var mu sync.Mutex
	results := make(map[string]agent.ExecutionResult, len(plan))

	for batchNum, batch := range batches {
		metrics.BatchSize.Observe(float64(len(batch)))
		e.logger.Debug("executing batch",
			zap.String("workflow_id", workflowID),
			zap.Int("batch", batchNum),
			zap.Int("tasks", len(batch)),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.workers)
		for _, task := range batch {
			g.Go(func() error {
				return e.runTask(gctx, workflowID, userRequest, task, planIndex, plan, outputs, results, &mu, factory)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	ordered := make([]agent.ExecutionResult, len(plan))
	for i, task := range plan {
		ordered[i] = results[task.Name]
	}
	return ordered, nil
}

func (e *Executor) runTask(
	ctx context.Context,
	workflowID, userRequest string,
	task workflow.TaskDefinition,
	planIndex map[string]int,
	plan workflow.Plan,
	outputs map[string]string,
	results map[string]agent.ExecutionResult,
	mu *sync.Mutex,
	factory AgentFactory,
) error {
	mu.Lock()
	if cached, ok := outputs[task.Name]; ok {
		results[task.Name] = agent.ExecutionResult{Success: true, Output: cached}
		mu.Unlock()
		metrics.TasksCached.Inc()
		e.logger.Debug("task output cached, skipping",
			zap.String("workflow_id", workflowID),
			zap.String("task", task.Name),
		)
		return nil
	}
	vars := make(map[string]string, len(outputs)+2)
	for name, output := range outputs {
		vars[name] = output
	}
	mu.Unlock()

	vars[workflow.UserRequestVar] = userRequest
	// Stage-style templates address the preceding task as prev_output.
	if i := planIndex[task.Name]; i > 0 {
		if prev, ok := vars[plan[i-1].Name]; ok {
			vars[workflow.PrevOutputVar] = prev
		}
	}

	rendered, err := templates.Render(task.Name, task.PromptTemplate, vars)
	if err != nil {
		return err
	}

	taskCtx, cancel := context.WithTimeout(ctx, e.taskTimeout)
	defer cancel()

	start := time.Now()
	result := factory(task).Execute(taskCtx, agent.ExecutionInput{Content: rendered})
	metrics.TaskDuration.Observe(time.Since(start).Seconds())
	if !result.Success {
		return &workflow.ExecutionError{
			WorkflowID: workflowID,
			TaskName:   task.Name,
			Err:        errors.New(result.Error),
		}
	}

	if err := e.store.SaveTaskOutput(ctx, workflowID, task.Name, result.Output); err != nil {
		return &workflow.ExecutionError{WorkflowID: workflowID, TaskName: task.Name, Err: err}
	}

	mu.Lock()
	outputs[task.Name] = result.Output
	results[task.Name] = result
	mu.Unlock()

	metrics.TasksExecuted.Inc()
	e.logger.Info("task completed",
		zap.String("workflow_id", workflowID),
		zap.String("task", task.Name),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
