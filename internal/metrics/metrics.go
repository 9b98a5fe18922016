// Package metrics defines the Prometheus instruments exported by the
// orchestrator. Importing the package registers them on the default
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Workflow metrics
	WorkflowsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapestry_workflows_started_total",
			Help: "Total number of workflow runs started",
		},
		[]string{"mode"}, // plan | resume
	)

	WorkflowsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapestry_workflows_completed_total",
			Help: "Total number of workflow runs completed",
		},
		[]string{"mode", "status"},
	)

	WorkflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapestry_workflow_duration_seconds",
			Help:    "End-to-end workflow run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Task metrics
	TasksExecuted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapestry_tasks_executed_total",
			Help: "Total number of tasks executed against a worker model",
		},
	)

	TasksCached = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapestry_tasks_cached_total",
			Help: "Total number of tasks satisfied from persisted outputs",
		},
	)

	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapestry_task_duration_seconds",
			Help:    "Single task execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tapestry_batch_size",
			Help:    "Number of tasks per parallel batch",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
		},
	)

	// Provider metrics
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapestry_provider_calls_total",
			Help: "Total number of provider generate calls",
		},
		[]string{"provider", "model"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapestry_provider_failures_total",
			Help: "Provider generate calls that failed after all retries",
		},
		[]string{"provider", "model", "kind"},
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapestry_provider_retries_total",
			Help: "Retry attempts beyond the first per provider call",
		},
		[]string{"provider", "model"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tapestry_provider_call_duration_seconds",
			Help:    "Successful provider call duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	// Circuit breaker state changes, labeled by breaker key.
	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tapestry_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"key", "to"},
	)

	// Agent memory
	AgentMemoryAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tapestry_agent_memory_appends_total",
			Help: "Total number of agent memory entries appended",
		},
	)
)
