// Package memory provides durable persistence for plans, task outputs,
// and per-agent memory under a workflow identifier. Two backends are
// provided: a SQL store (sqlite or postgres) and a Redis store.
package memory

import (
	"context"
	"errors"

	"github.com/nishiki-ai/tapestry/internal/workflow"
)

var (
	// ErrPlanExists is returned by SavePlan when a plan is already stored
	// under the workflow ID. Plans are immutable once saved.
	ErrPlanExists = errors.New("plan already exists for workflow")

	// ErrUnavailable is returned when the backing store cannot be reached.
	// There is no local fallback.
	ErrUnavailable = errors.New("memory store unavailable")
)

// Store is the durable persistence contract.
//
// Agent memory is an append-only, size-bounded sequence per agent name;
// LoadAgentMemory returns entries oldest-first, and appends beyond the
// store's memory limit trim the oldest entries. SaveTaskOutput is an
// idempotent overwrite; SavePlan is not (a second save fails with
// ErrPlanExists). All methods are safe for concurrent use within one
// process; cross-process coordination is out of scope.
type Store interface {
	SavePlan(ctx context.Context, workflowID string, plan workflow.Plan) error
	// LoadPlan returns the stored plan, or ok=false when none exists.
	LoadPlan(ctx context.Context, workflowID string) (workflow.Plan, bool, error)

	SaveTaskOutput(ctx context.Context, workflowID, taskName, output string) error
	LoadTaskOutputs(ctx context.Context, workflowID string) (map[string]string, error)

	AppendAgentMemory(ctx context.Context, agentName, entry string) error
	// LoadAgentMemory returns up to limit of the newest entries for the
	// agent, ordered oldest-first. limit <= 0 means all retained entries.
	LoadAgentMemory(ctx context.Context, agentName string, limit int) ([]string, error)

	Close() error
}
