// Package dag performs static dependency analysis of prompt templates.
//
// Task templates reference prior outputs as {{taskName}}. Those references
// induce a directed graph over the plan; the analyzer validates it, rejects
// cycles, and partitions the tasks into batches (a topological layering)
// where every task in a batch is independent of the others and may run in
// parallel.
package dag

import (
	"github.com/nishiki-ai/tapestry/internal/templates"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

// Analysis is the result of analyzing one plan.
type Analysis struct {
	// Batches is a topological layering of the plan: batch 0 holds all
	// tasks with no dependencies, batch N+1 holds tasks whose dependencies
	// all sit in batches <= N. Within a batch, plan order is preserved.
	Batches [][]workflow.TaskDefinition

	// Dependencies maps a task name to the names of tasks it depends on,
	// in template-appearance order.
	Dependencies map[string][]string
}

// Report summarizes how much parallelism a plan admits.
type Report struct {
	TotalTasks       int
	BatchCount       int
	MaxBatchSize     int
	SpeedupPotential float64
}

// Analyze validates the plan's template references and computes the batch
// layering. It fails with *workflow.PlanValidationError when a template
// references an unknown name and *workflow.CyclicDependencyError when the
// references form a cycle.
func Analyze(plan workflow.Plan) (*Analysis, error) {
	byName := make(map[string]int, len(plan))
	for i, t := range plan {
		byName[t.Name] = i
	}

	deps := make(map[string][]string, len(plan))
	for i, task := range plan {
		var taskDeps []string
		for _, ref := range templates.Variables(task.PromptTemplate) {
			switch ref {
			case workflow.UserRequestVar:
				// External input, not a dependency.
			case workflow.PrevOutputVar:
				// Stage-style convention: implicit dependency on the
				// immediately preceding task in plan order. For the first
				// task there is nothing to depend on.
				if i > 0 {
					taskDeps = append(taskDeps, plan[i-1].Name)
				}
			default:
				if _, ok := byName[ref]; !ok {
					return nil, &workflow.PlanValidationError{TaskName: task.Name, Variable: ref}
				}
				if ref == task.Name {
					return nil, &workflow.CyclicDependencyError{Cycle: []string{task.Name}}
				}
				taskDeps = append(taskDeps, ref)
			}
		}
		deps[task.Name] = taskDeps
	}

	batches, err := layer(plan, deps)
	if err != nil {
		return nil, err
	}
	return &Analysis{Batches: batches, Dependencies: deps}, nil
}

// layer runs Kahn-style peeling: repeatedly remove the zero-in-degree set.
// If the graph is non-empty but no task has zero in-degree, the remainder
// is cyclic.
func layer(plan workflow.Plan, deps map[string][]string) ([][]workflow.TaskDefinition, error) {
	indegree := make(map[string]int, len(plan))
	for name, d := range deps {
		indegree[name] = len(d)
	}

	placed := make(map[string]bool, len(plan))
	var batches [][]workflow.TaskDefinition
	remaining := len(plan)

	for remaining > 0 {
		var batch []workflow.TaskDefinition
		for _, task := range plan {
			if !placed[task.Name] && indegree[task.Name] == 0 {
				batch = append(batch, task)
			}
		}
		if len(batch) == 0 {
			var cycle []string
			for _, task := range plan {
				if !placed[task.Name] {
					cycle = append(cycle, task.Name)
				}
			}
			return nil, &workflow.CyclicDependencyError{Cycle: cycle}
		}
		for _, task := range batch {
			placed[task.Name] = true
		}
		// Decrement in-degrees for edges out of this batch.
		for name, d := range deps {
			if placed[name] {
				continue
			}
			for _, dep := range d {
				for _, done := range batch {
					if dep == done.Name {
						indegree[name]--
					}
				}
			}
		}
		batches = append(batches, batch)
		remaining -= len(batch)
	}
	return batches, nil
}

// AnalyzeParallelismBenefit reports batch statistics for observability.
// SpeedupPotential is totalTasks/batchCount: 1.0 means fully sequential.
func AnalyzeParallelismBenefit(batches [][]workflow.TaskDefinition) Report {
	r := Report{BatchCount: len(batches)}
	for _, b := range batches {
		r.TotalTasks += len(b)
		if len(b) > r.MaxBatchSize {
			r.MaxBatchSize = len(b)
		}
	}
	if r.BatchCount > 0 {
		r.SpeedupPotential = float64(r.TotalTasks) / float64(r.BatchCount)
	}
	return r
}
