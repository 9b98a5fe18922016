package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/nishiki-ai/tapestry/internal/metrics"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

// InMemoryStore keeps all state in process memory. It exists for tests
// and throwaway runs; nothing survives a restart.
type InMemoryStore struct {
	mu          sync.RWMutex
	plans       map[string]workflow.Plan
	outputs     map[string]map[string]string
	agentMemory map[string][]string
	memoryLimit int
}

// NewInMemoryStore returns an empty store retaining at most memoryLimit
// agent-memory entries per agent (<= 0 uses the default of 20).
func NewInMemoryStore(memoryLimit int) *InMemoryStore {
	if memoryLimit <= 0 {
		memoryLimit = 20
	}
	return &InMemoryStore{
		plans:       make(map[string]workflow.Plan),
		outputs:     make(map[string]map[string]string),
		agentMemory: make(map[string][]string),
		memoryLimit: memoryLimit,
	}
}

func (s *InMemoryStore) SavePlan(_ context.Context, workflowID string, plan workflow.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[workflowID]; ok {
		return fmt.Errorf("%w: %s", ErrPlanExists, workflowID)
	}
	s.plans[workflowID] = append(workflow.Plan(nil), plan...)
	return nil
}

func (s *InMemoryStore) LoadPlan(_ context.Context, workflowID string) (workflow.Plan, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	plan, ok := s.plans[workflowID]
	if !ok {
		return nil, false, nil
	}
	return append(workflow.Plan(nil), plan...), true, nil
}

func (s *InMemoryStore) SaveTaskOutput(_ context.Context, workflowID, taskName, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outputs[workflowID] == nil {
		s.outputs[workflowID] = make(map[string]string)
	}
	s.outputs[workflowID][taskName] = output
	return nil
}

func (s *InMemoryStore) LoadTaskOutputs(_ context.Context, workflowID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outputs := make(map[string]string, len(s.outputs[workflowID]))
	for name, output := range s.outputs[workflowID] {
		outputs[name] = output
	}
	return outputs, nil
}

func (s *InMemoryStore) AppendAgentMemory(_ context.Context, agentName, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.agentMemory[agentName], entry)
	if len(entries) > s.memoryLimit {
		entries = entries[len(entries)-s.memoryLimit:]
	}
	s.agentMemory[agentName] = entries
	metrics.AgentMemoryAppends.Inc()
	return nil
}

func (s *InMemoryStore) LoadAgentMemory(_ context.Context, agentName string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.agentMemory[agentName]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	return append([]string(nil), entries[len(entries)-limit:]...), nil
}

func (s *InMemoryStore) Close() error { return nil }
