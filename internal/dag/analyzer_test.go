package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishiki-ai/tapestry/internal/workflow"
)

func names(batch []workflow.TaskDefinition) []string {
	out := make([]string, len(batch))
	for i, t := range batch {
		out[i] = t.Name
	}
	return out
}

func TestAnalyzeLinearPlan(t *testing.T) {
	plan := workflow.Plan{
		{Name: "A", PromptTemplate: "Outline: {{user_request}}"},
		{Name: "B", PromptTemplate: "Write based on: {{A}}"},
		{Name: "C", PromptTemplate: "Edit: {{B}}"},
	}

	a, err := Analyze(plan)
	require.NoError(t, err)
	require.Len(t, a.Batches, 3)
	assert.Equal(t, []string{"A"}, names(a.Batches[0]))
	assert.Equal(t, []string{"B"}, names(a.Batches[1]))
	assert.Equal(t, []string{"C"}, names(a.Batches[2]))

	r := AnalyzeParallelismBenefit(a.Batches)
	assert.Equal(t, 3, r.TotalTasks)
	assert.Equal(t, 1, r.MaxBatchSize)
	assert.Equal(t, 1.0, r.SpeedupPotential)
}

func TestAnalyzeFanIn(t *testing.T) {
	plan := workflow.Plan{
		{Name: "A", PromptTemplate: "{{user_request}}"},
		{Name: "B", PromptTemplate: "{{user_request}}"},
		{Name: "C", PromptTemplate: "merge {{A}} and {{B}}"},
		{Name: "D", PromptTemplate: "polish {{C}}"},
	}

	a, err := Analyze(plan)
	require.NoError(t, err)
	require.Len(t, a.Batches, 3)
	assert.Equal(t, []string{"A", "B"}, names(a.Batches[0]))
	assert.Equal(t, []string{"C"}, names(a.Batches[1]))
	assert.Equal(t, []string{"D"}, names(a.Batches[2]))

	r := AnalyzeParallelismBenefit(a.Batches)
	assert.InDelta(t, 4.0/3.0, r.SpeedupPotential, 1e-9)
	assert.Equal(t, 2, r.MaxBatchSize)
}

func TestAnalyzeBatchPreservesPlanOrder(t *testing.T) {
	plan := workflow.Plan{
		{Name: "z_first", PromptTemplate: "{{user_request}}"},
		{Name: "a_second", PromptTemplate: "{{user_request}}"},
	}
	a, err := Analyze(plan)
	require.NoError(t, err)
	require.Len(t, a.Batches, 1)
	assert.Equal(t, []string{"z_first", "a_second"}, names(a.Batches[0]))
}

func TestAnalyzeCycle(t *testing.T) {
	plan := workflow.Plan{
		{Name: "X", PromptTemplate: "needs {{Y}}"},
		{Name: "Y", PromptTemplate: "needs {{X}}"},
	}

	_, err := Analyze(plan)
	var cerr *workflow.CyclicDependencyError
	require.True(t, errors.As(err, &cerr))
	assert.ElementsMatch(t, []string{"X", "Y"}, cerr.Cycle)
}

func TestAnalyzeSelfReference(t *testing.T) {
	plan := workflow.Plan{{Name: "X", PromptTemplate: "needs {{X}}"}}

	_, err := Analyze(plan)
	var cerr *workflow.CyclicDependencyError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"X"}, cerr.Cycle)
}

func TestAnalyzeUnknownVariable(t *testing.T) {
	plan := workflow.Plan{{Name: "X", PromptTemplate: "Use {{ghost}}"}}

	_, err := Analyze(plan)
	var verr *workflow.PlanValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "X", verr.TaskName)
	assert.Equal(t, "ghost", verr.Variable)
}

func TestAnalyzePrevOutputForcesSequential(t *testing.T) {
	plan := workflow.Plan{
		{Name: "draft", PromptTemplate: "Draft: {{user_request}}"},
		{Name: "review", PromptTemplate: "Review: {{prev_output}}"},
		{Name: "final", PromptTemplate: "Finalize: {{prev_output}}"},
	}

	a, err := Analyze(plan)
	require.NoError(t, err)
	require.Len(t, a.Batches, 3)
	assert.Equal(t, []string{"draft"}, names(a.Batches[0]))
	assert.Equal(t, []string{"review"}, names(a.Batches[1]))
	assert.Equal(t, []string{"final"}, names(a.Batches[2]))
	assert.Equal(t, []string{"draft"}, a.Dependencies["review"])
}

func TestAnalyzeEmptyPlan(t *testing.T) {
	a, err := Analyze(nil)
	require.NoError(t, err)
	assert.Empty(t, a.Batches)

	r := AnalyzeParallelismBenefit(a.Batches)
	assert.Zero(t, r.TotalTasks)
	assert.Zero(t, r.SpeedupPotential)
}
