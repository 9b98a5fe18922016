// Package orchestrator is the public entry point: it plans a user
// request with one LM provider, persists the plan, and executes it with
// another, resuming from stored task outputs on re-invocation.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nishiki-ai/tapestry/internal/agent"
	"github.com/nishiki-ai/tapestry/internal/dag"
	"github.com/nishiki-ai/tapestry/internal/executor"
	"github.com/nishiki-ai/tapestry/internal/llm"
	"github.com/nishiki-ai/tapestry/internal/memory"
	"github.com/nishiki-ai/tapestry/internal/metrics"
	"github.com/nishiki-ai/tapestry/internal/planner"
	"github.com/nishiki-ai/tapestry/internal/tracing"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

// State is the workflow lifecycle position, inferred from store
// contents rather than materialized.
type State string

const (
	// StateNew means no plan has been saved for the workflow ID.
	StateNew State = "NEW"
	// StatePlanned means a plan exists and at least one task output is
	// still missing.
	StatePlanned State = "PLANNED"
	// StateComplete means every plan task has a stored output.
	StateComplete State = "COMPLETE"
)

// Orchestrator drives workflows against one durable store.
type Orchestrator struct {
	store    memory.Store
	executor *executor.Executor
	logger   *zap.Logger
}

// New constructs an orchestrator. workers and taskTimeout configure the
// batch executor; zero values use its defaults.
func New(store memory.Store, workers int, taskTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		executor: executor.New(store, workers, taskTimeout, logger),
		logger:   logger,
	}
}

// RunWorkflow plans and executes, or resumes when a plan is already
// stored under workflowID. Results are ordered by the plan.
func (o *Orchestrator) RunWorkflow(
	ctx context.Context,
	workflowID, userRequest string,
	plannerProvider, workerProvider llm.Provider,
) ([]agent.ExecutionResult, error) {
	if err := validateArgs(workflowID, userRequest, workerProvider); err != nil {
		return nil, err
	}
	if plannerProvider == nil {
		return nil, &workflow.ValidationError{Field: "plannerProvider", Reason: "must not be nil"}
	}

	ctx, span := tracing.StartWorkflowSpan(ctx, "run_workflow", workflowID)
	defer span.End()

	plan, ok, err := o.store.LoadPlan(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if ok {
		o.logger.Info("resuming stored plan",
			zap.String("workflow_id", workflowID),
			zap.Int("tasks", len(plan)),
		)
		return o.execute(ctx, "resume", workflowID, userRequest, plan, workerProvider)
	}

	plan, err = o.makeAndSavePlan(ctx, workflowID, userRequest, plannerProvider)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, "plan", workflowID, userRequest, plan, workerProvider)
}

// PlanAndExecute forces fresh planning. It fails when a plan is already
// stored under workflowID.
func (o *Orchestrator) PlanAndExecute(
	ctx context.Context,
	workflowID, userRequest string,
	plannerProvider, workerProvider llm.Provider,
) ([]agent.ExecutionResult, error) {
	if err := validateArgs(workflowID, userRequest, workerProvider); err != nil {
		return nil, err
	}
	if plannerProvider == nil {
		return nil, &workflow.ValidationError{Field: "plannerProvider", Reason: "must not be nil"}
	}

	ctx, span := tracing.StartWorkflowSpan(ctx, "plan_and_execute", workflowID)
	defer span.End()

	// Check up front so an existing plan fails before spending a
	// planner call.
	if _, ok, err := o.store.LoadPlan(ctx, workflowID); err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	} else if ok {
		return nil, fmt.Errorf("%w: %s", memory.ErrPlanExists, workflowID)
	}

	plan, err := o.makeAndSavePlan(ctx, workflowID, userRequest, plannerProvider)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, "plan", workflowID, userRequest, plan, workerProvider)
}

// ResumeWorkflow executes with the given plan, or with the stored plan
// when plan is nil. It fails when neither is available. No planner
// provider is involved; resume never re-plans.
func (o *Orchestrator) ResumeWorkflow(
	ctx context.Context,
	workflowID, userRequest string,
	workerProvider llm.Provider,
	plan workflow.Plan,
) ([]agent.ExecutionResult, error) {
	if err := validateArgs(workflowID, userRequest, workerProvider); err != nil {
		return nil, err
	}

	ctx, span := tracing.StartWorkflowSpan(ctx, "resume_workflow", workflowID)
	defer span.End()

	if plan == nil {
		stored, ok, err := o.store.LoadPlan(ctx, workflowID)
		if err != nil {
			return nil, fmt.Errorf("load plan: %w", err)
		}
		if !ok {
			return nil, &workflow.ValidationError{
				Field:  "plan",
				Reason: fmt.Sprintf("no plan provided and none stored for workflow %s", workflowID),
			}
		}
		plan = stored
	}
	return o.execute(ctx, "resume", workflowID, userRequest, plan, workerProvider)
}

// WorkflowState infers the workflow's lifecycle position from the
// store: NEW without a plan, COMPLETE when every plan task has an
// output, PLANNED otherwise.
func (o *Orchestrator) WorkflowState(ctx context.Context, workflowID string) (State, error) {
	plan, ok, err := o.store.LoadPlan(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("load plan: %w", err)
	}
	if !ok {
		return StateNew, nil
	}

	outputs, err := o.store.LoadTaskOutputs(ctx, workflowID)
	if err != nil {
		return "", fmt.Errorf("load task outputs: %w", err)
	}
	for _, task := range plan {
		if _, ok := outputs[task.Name]; !ok {
			return StatePlanned, nil
		}
	}
	return StateComplete, nil
}

func (o *Orchestrator) makeAndSavePlan(
	ctx context.Context,
	workflowID, userRequest string,
	plannerProvider llm.Provider,
) (workflow.Plan, error) {
	plan, err := planner.NewMaker(plannerProvider, o.logger).MakePlan(ctx, userRequest)
	if err != nil {
		return nil, err
	}
	if err := o.store.SavePlan(ctx, workflowID, plan); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	return plan, nil
}

func (o *Orchestrator) execute(
	ctx context.Context,
	mode, workflowID, userRequest string,
	plan workflow.Plan,
	workerProvider llm.Provider,
) ([]agent.ExecutionResult, error) {
	metrics.WorkflowsStarted.WithLabelValues(mode).Inc()
	start := time.Now()

	analysis, err := dag.Analyze(plan)
	if err != nil {
		metrics.WorkflowsCompleted.WithLabelValues(mode, "failed").Inc()
		return nil, err
	}
	report := dag.AnalyzeParallelismBenefit(analysis.Batches)
	o.logger.Info("plan analyzed",
		zap.String("workflow_id", workflowID),
		zap.Int("total_tasks", report.TotalTasks),
		zap.Int("batches", report.BatchCount),
		zap.Int("max_batch_size", report.MaxBatchSize),
		zap.Float64("speedup_potential", report.SpeedupPotential),
	)

	factory := func(task workflow.TaskDefinition) *agent.SubAgent {
		return agent.New(agent.ImplicitName(task.Name), task.Description, workerProvider, o.store, o.logger)
	}

	results, err := o.executor.Run(ctx, workflowID, userRequest, plan, analysis.Batches, factory)
	if err != nil {
		metrics.WorkflowsCompleted.WithLabelValues(mode, "failed").Inc()
		return nil, err
	}

	metrics.WorkflowsCompleted.WithLabelValues(mode, "succeeded").Inc()
	metrics.WorkflowDuration.Observe(time.Since(start).Seconds())
	o.logger.Info("workflow completed",
		zap.String("workflow_id", workflowID),
		zap.String("mode", mode),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

func validateArgs(workflowID, userRequest string, workerProvider llm.Provider) error {
	if strings.TrimSpace(workflowID) == "" {
		return &workflow.ValidationError{Field: "workflowID", Reason: "must not be blank"}
	}
	if strings.TrimSpace(userRequest) == "" {
		return &workflow.ValidationError{Field: "userRequest", Reason: "must not be blank"}
	}
	if workerProvider == nil {
		return &workflow.ValidationError{Field: "workerProvider", Reason: "must not be nil"}
	}
	return nil
}
