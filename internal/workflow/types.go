// Package workflow holds the core data model shared by the planner,
// dependency analyzer, executor, and orchestrator.
package workflow

// TaskDefinition is one entry in a plan. Name is unique within a plan and
// doubles as the key under which the task's output is persisted.
// PromptTemplate may reference {{user_request}} and {{<otherTaskName>}}.
type TaskDefinition struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	PromptTemplate string `json:"promptTemplate"`
}

// Plan is an ordered list of task definitions. The order is the canonical
// result order; execution order comes from the dependency analyzer. A plan
// is immutable once saved under a workflow ID.
type Plan []TaskDefinition

// TaskNames returns the task names in plan order.
func (p Plan) TaskNames() []string {
	names := make([]string, len(p))
	for i, t := range p {
		names[i] = t.Name
	}
	return names
}

// Find returns the task with the given name, if present.
func (p Plan) Find(name string) (TaskDefinition, bool) {
	for _, t := range p {
		if t.Name == name {
			return t, true
		}
	}
	return TaskDefinition{}, false
}

// UserRequestVar is the template variable resolved from the workflow's
// user request rather than from another task's output.
const UserRequestVar = "user_request"

// PrevOutputVar is the stage-style convention: a template referencing it
// depends on the immediately preceding task in plan order.
const PrevOutputVar = "prev_output"
