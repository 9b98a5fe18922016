package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nishiki-ai/tapestry/internal/metrics"
	"github.com/nishiki-ai/tapestry/internal/workflow"
)

// RedisStore persists workflow state in Redis: one string key per plan,
// one hash per workflow's task outputs, one list per agent's memory.
type RedisStore struct {
	client      *redis.Client
	logger      *zap.Logger
	memoryLimit int
}

// RedisConfig holds Redis store configuration.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MemoryLimit int
}

// NewRedisStore connects to Redis and verifies connectivity.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = 20
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping redis: %v", ErrUnavailable, err)
	}

	logger.Info("Redis memory store ready", zap.String("addr", cfg.Addr))
	return &RedisStore{client: client, logger: logger, memoryLimit: cfg.MemoryLimit}, nil
}

func planKey(workflowID string) string    { return "tapestry:plan:" + workflowID }
func outputsKey(workflowID string) string { return "tapestry:outputs:" + workflowID }
func memoryKey(agentName string) string   { return "tapestry:agentmem:" + agentName }

// SavePlan stores the plan with SETNX semantics; an existing plan fails
// with ErrPlanExists.
func (s *RedisStore) SavePlan(ctx context.Context, workflowID string, plan workflow.Plan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	set, err := s.client.SetNX(ctx, planKey(workflowID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: save plan: %v", ErrUnavailable, err)
	}
	if !set {
		return fmt.Errorf("%w: %s", ErrPlanExists, workflowID)
	}
	return nil
}

// LoadPlan returns the stored plan, or ok=false when none exists.
func (s *RedisStore) LoadPlan(ctx context.Context, workflowID string) (workflow.Plan, bool, error) {
	payload, err := s.client.Get(ctx, planKey(workflowID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: load plan: %v", ErrUnavailable, err)
	}
	var plan workflow.Plan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, false, fmt.Errorf("unmarshal plan %s: %w", workflowID, err)
	}
	return plan, true, nil
}

// SaveTaskOutput upserts the output field in the workflow's hash.
func (s *RedisStore) SaveTaskOutput(ctx context.Context, workflowID, taskName, output string) error {
	if err := s.client.HSet(ctx, outputsKey(workflowID), taskName, output).Err(); err != nil {
		return fmt.Errorf("%w: save task output: %v", ErrUnavailable, err)
	}
	return nil
}

// LoadTaskOutputs returns all persisted outputs for the workflow.
func (s *RedisStore) LoadTaskOutputs(ctx context.Context, workflowID string) (map[string]string, error) {
	outputs, err := s.client.HGetAll(ctx, outputsKey(workflowID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load task outputs: %v", ErrUnavailable, err)
	}
	return outputs, nil
}

// AppendAgentMemory pushes the entry and trims the list to the newest
// memoryLimit entries in one pipeline.
func (s *RedisStore) AppendAgentMemory(ctx context.Context, agentName, entry string) error {
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, memoryKey(agentName), entry)
	pipe.LTrim(ctx, memoryKey(agentName), int64(-s.memoryLimit), -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: append agent memory: %v", ErrUnavailable, err)
	}
	metrics.AgentMemoryAppends.Inc()
	return nil
}

// LoadAgentMemory returns up to limit of the newest entries, oldest-first.
func (s *RedisStore) LoadAgentMemory(ctx context.Context, agentName string, limit int) ([]string, error) {
	if limit <= 0 || limit > s.memoryLimit {
		limit = s.memoryLimit
	}
	entries, err := s.client.LRange(ctx, memoryKey(agentName), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load agent memory: %v", ErrUnavailable, err)
	}
	return entries, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
