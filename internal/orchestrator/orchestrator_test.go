package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nishiki-ai/tapestry/internal/memory"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

const plannerReply = `Here is the plan:
[
  {"name": "outline", "description": "outline the guide", "promptTemplate": "Outline a guide for: {{user_request}}"},
  {"name": "draft", "description": "write the guide", "promptTemplate": "Write the guide from this outline: {{outline}}"}
]`

type countingProvider struct {
	reply string
	calls int32
}

func (p *countingProvider) Generate(_ context.Context, prompt string) (string, error) {
	atomic.AddInt32(&p.calls, 1)
	return p.reply, nil
}

func (p *countingProvider) Name() string  { return "counting" }
func (p *countingProvider) Model() string { return "counting-1" }

func newOrchestrator(t *testing.T) (*Orchestrator, *memory.InMemoryStore) {
	t.Helper()
	store := memory.NewInMemoryStore(20)
	return New(store, 4, time.Minute, zaptest.NewLogger(t)), store
}

func TestRunWorkflowPlansAndExecutes(t *testing.T) {
	o, store := newOrchestrator(t)
	plannerLM := &countingProvider{reply: plannerReply}
	workerLM := &countingProvider{reply: "worker output"}

	results, err := o.RunWorkflow(context.Background(), "wf-1", "visiting Kyoto", plannerLM, workerLM)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&plannerLM.calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&workerLM.calls))

	// Plan and outputs were persisted.
	plan, ok, err := store.LoadPlan(context.Background(), "wf-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"outline", "draft"}, plan.TaskNames())

	state, err := o.WorkflowState(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StateComplete, state)
}

func TestRunWorkflowIdempotentResume(t *testing.T) {
	o, _ := newOrchestrator(t)
	plannerLM := &countingProvider{reply: plannerReply}
	workerLM := &countingProvider{reply: "worker output"}

	first, err := o.RunWorkflow(context.Background(), "wf-1", "visiting Kyoto", plannerLM, workerLM)
	require.NoError(t, err)

	// Second invocation with the same ID: no planner call, no worker
	// calls, identical results from cache.
	second, err := o.RunWorkflow(context.Background(), "wf-1", "visiting Kyoto", plannerLM, workerLM)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&plannerLM.calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&workerLM.calls))
}

func TestRunWorkflowPartialResume(t *testing.T) {
	o, store := newOrchestrator(t)
	plannerLM := &countingProvider{reply: plannerReply}
	workerLM := &countingProvider{reply: "worker output"}

	// Simulate a prior run that planned and finished only "outline".
	plan, _, err := o.store.LoadPlan(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Nil(t, plan)
	_, err = o.PlanAndExecute(context.Background(), "wf-1", "visiting Kyoto", plannerLM, workerLM)
	require.NoError(t, err)

	// Reset to a half-done state: keep the plan, drop "draft".
	store2 := memory.NewInMemoryStore(20)
	storedPlan, ok, err := store.LoadPlan(context.Background(), "wf-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store2.SavePlan(context.Background(), "wf-1", storedPlan))
	require.NoError(t, store2.SaveTaskOutput(context.Background(), "wf-1", "outline", "stored outline"))

	o2 := New(store2, 4, time.Minute, zaptest.NewLogger(t))
	worker2 := &countingProvider{reply: "fresh draft"}

	state, err := o2.WorkflowState(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StatePlanned, state)

	results, err := o2.ResumeWorkflow(context.Background(), "wf-1", "visiting Kyoto", worker2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "stored outline", results[0].Output)
	assert.Equal(t, "fresh draft", results[1].Output)
	assert.Equal(t, int32(1), atomic.LoadInt32(&worker2.calls), "only the missing task runs")
}

func TestPlanAndExecuteRejectsExistingPlan(t *testing.T) {
	o, store := newOrchestrator(t)
	require.NoError(t, store.SavePlan(context.Background(), "wf-1", workflow.Plan{}))

	plannerLM := &countingProvider{reply: plannerReply}
	_, err := o.PlanAndExecute(context.Background(), "wf-1", "anything", plannerLM, &countingProvider{})
	assert.ErrorIs(t, err, memory.ErrPlanExists)
	assert.Zero(t, atomic.LoadInt32(&plannerLM.calls), "no planner call for a rejected run")
}

func TestResumeWorkflowWithExplicitPlan(t *testing.T) {
	o, _ := newOrchestrator(t)
	workerLM := &countingProvider{reply: "done"}
	plan := workflow.Plan{
		{Name: "solo", Description: "one task", PromptTemplate: "Do: {{user_request}}"},
	}

	results, err := o.ResumeWorkflow(context.Background(), "wf-1", "req", workerLM, plan)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "done", results[0].Output)
}

func TestResumeWorkflowWithoutAnyPlan(t *testing.T) {
	o, _ := newOrchestrator(t)
	_, err := o.ResumeWorkflow(context.Background(), "wf-1", "req", &countingProvider{}, nil)
	var valErr *workflow.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "plan", valErr.Field)
}

func TestEmptyPlanYieldsEmptyResults(t *testing.T) {
	o, _ := newOrchestrator(t)
	plannerLM := &countingProvider{reply: "nothing to do: []"}
	workerLM := &countingProvider{reply: "unused"}

	results, err := o.RunWorkflow(context.Background(), "wf-1", "noop request", plannerLM, workerLM)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, atomic.LoadInt32(&workerLM.calls))

	state, err := o.WorkflowState(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, StateComplete, state, "an empty plan has no missing outputs")
}

func TestValidation(t *testing.T) {
	o, _ := newOrchestrator(t)
	p := &countingProvider{}

	tests := []struct {
		name  string
		field string
		run   func() error
	}{
		{"blank workflow id", "workflowID", func() error {
			_, err := o.RunWorkflow(context.Background(), "  ", "req", p, p)
			return err
		}},
		{"blank request", "userRequest", func() error {
			_, err := o.RunWorkflow(context.Background(), "wf", "", p, p)
			return err
		}},
		{"nil worker provider", "workerProvider", func() error {
			_, err := o.RunWorkflow(context.Background(), "wf", "req", p, nil)
			return err
		}},
		{"nil planner provider", "plannerProvider", func() error {
			_, err := o.RunWorkflow(context.Background(), "wf", "req", nil, p)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var valErr *workflow.ValidationError
			require.ErrorAs(t, tt.run(), &valErr)
			assert.Equal(t, tt.field, valErr.Field)
		})
	}
}
