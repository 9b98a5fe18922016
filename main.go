package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nishiki-ai/tapestry/internal/agent"
	"github.com/nishiki-ai/tapestry/internal/circuitbreaker"
	"github.com/nishiki-ai/tapestry/internal/config"
	"github.com/nishiki-ai/tapestry/internal/llm"
	"github.com/nishiki-ai/tapestry/internal/memory"
	"github.com/nishiki-ai/tapestry/internal/orchestrator"
	"github.com/nishiki-ai/tapestry/internal/tracing"
)

func main() {
	var (
		configPath  = flag.String("config", "", "optional YAML config file")
		workflowID  = flag.String("workflow", "", "workflow ID (generated when empty)")
		request     = flag.String("request", "", "user request to plan and execute")
		resume      = flag.Bool("resume", false, "resume from the stored plan instead of planning")
		metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :2112)")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if *request == "" {
		logger.Fatal("missing -request")
	}
	id := *workflowID
	if id == "" {
		id = uuid.NewString()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if err := tracing.Initialize(cfg.Tracing, logger); err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("Metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("Metrics server listening", zap.String("addr", *metricsAddr))
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open memory store", zap.Error(err))
	}
	defer store.Close() //nolint:errcheck

	plannerLM, workerLM, err := buildProviders(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build LM providers", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(store, cfg.Workers, cfg.TaskTimeout, logger)

	var results []agent.ExecutionResult
	if *resume {
		results, err = orch.ResumeWorkflow(ctx, id, *request, workerLM, nil)
	} else {
		results, err = orch.RunWorkflow(ctx, id, *request, plannerLM, workerLM)
	}
	if err != nil {
		logger.Fatal("Workflow failed",
			zap.String("workflow_id", id),
			zap.Error(err),
		)
	}

	logger.Info("Workflow succeeded",
		zap.String("workflow_id", id),
		zap.Int("tasks", len(results)),
	)
	for i, result := range results {
		fmt.Printf("--- task %d ---\n%s\n", i+1, result.Output)
	}
}

func openStore(cfg *config.Config, logger *zap.Logger) (memory.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		return memory.NewSQLStore(memory.SQLConfig{
			Driver:      "sqlite3",
			DSN:         cfg.Store.DSN,
			MemoryLimit: cfg.MemoryLimit,
		}, logger)
	case "postgres":
		return memory.NewSQLStore(memory.SQLConfig{
			Driver:      "postgres",
			DSN:         cfg.Store.DSN,
			MemoryLimit: cfg.MemoryLimit,
		}, logger)
	case "redis":
		return memory.NewRedisStore(memory.RedisConfig{
			Addr:        cfg.Store.Addr,
			Password:    cfg.Store.Password,
			DB:          cfg.Store.DB,
			MemoryLimit: cfg.MemoryLimit,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildProviders picks vendors from the environment. Both roles share
// one resilient client stack; with both keys set, Anthropic plans and
// OpenAI executes.
func buildProviders(cfg *config.Config, logger *zap.Logger) (plannerLM, workerLM llm.Provider, err error) {
	opts := llm.Options{
		RateCapacity:        cfg.RateCapacity,
		RateRefillPerSecond: cfg.RateRefillPerSecond,
		RateMaxWait:         cfg.RateMaxWait,
		Retry:               cfg.Retry,
		Breakers:            circuitbreaker.NewRegistry(cfg.Breaker, logger),
	}

	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	switch {
	case anthropicKey != "" && openaiKey != "":
		plannerLM = llm.NewAnthropic(anthropicModel(), anthropicKey, opts, logger)
		workerLM = llm.NewOpenAI(openaiModel(), openaiKey, opts, logger)
	case anthropicKey != "":
		plannerLM = llm.NewAnthropic(anthropicModel(), anthropicKey, opts, logger)
		workerLM = plannerLM
	case openaiKey != "":
		plannerLM = llm.NewOpenAI(openaiModel(), openaiKey, opts, logger)
		workerLM = plannerLM
	default:
		return nil, nil, fmt.Errorf("set OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}
	return plannerLM, workerLM, nil
}

func anthropicModel() string {
	if m := os.Getenv("ANTHROPIC_MODEL"); m != "" {
		return m
	}
	return "claude-sonnet-4-20250514"
}

func openaiModel() string {
	if m := os.Getenv("OPENAI_MODEL"); m != "" {
		return m
	}
	return "gpt-4o-mini"
}
