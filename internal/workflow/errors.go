package workflow

import "fmt"

// ValidationError reports bad arguments to the orchestrator API.
// It is fatal and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PlanParseError reports planner LM output that could not be parsed into a
// plan. RawOutput carries the full model response for diagnostics.
type PlanParseError struct {
	RawOutput string
	Err       error
}

func (e *PlanParseError) Error() string {
	return fmt.Sprintf("failed to parse plan from model output: %v", e.Err)
}

func (e *PlanParseError) Unwrap() error { return e.Err }

// PlanValidationError reports a template referencing a name that is neither
// user_request nor a task in the plan.
type PlanValidationError struct {
	TaskName string
	Variable string
}

func (e *PlanValidationError) Error() string {
	return fmt.Sprintf("task %q references unknown variable {{%s}}", e.TaskName, e.Variable)
}

// CyclicDependencyError reports a directed cycle in the task references.
// Cycle lists the task names along the cycle when known.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	if len(e.Cycle) == 0 {
		return "task dependencies form a cycle"
	}
	return fmt.Sprintf("task dependencies form a cycle involving %v", e.Cycle)
}

// TemplateError reports an unsubstituted {{…}} reference at render time.
// The analyzer validates references up front, so hitting this indicates a
// programming error rather than bad user input.
type TemplateError struct {
	TaskName string
	Variable string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("unresolved template variable {{%s}} in task %q", e.Variable, e.TaskName)
}

// ExecutionError wraps a task failure that failed the whole workflow.
// Task outputs persisted before the failure remain durable for resume.
type ExecutionError struct {
	WorkflowID string
	TaskName   string
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("workflow %s: task %q failed: %v", e.WorkflowID, e.TaskName, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
