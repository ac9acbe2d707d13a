// Package metrics provides Prometheus instrumentation for poolserve components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for poolserve components.
type Registry struct {
	// Thread Pool Metrics
	JobsSubmitted   *prometheus.CounterVec
	JobsExecuted    *prometheus.CounterVec
	JobsCompleted   *prometheus.CounterVec
	JobsFailed      *prometheus.CounterVec
	JobQueueWait    *prometheus.HistogramVec
	JobDuration     *prometheus.HistogramVec
	PoolSize        *prometheus.GaugeVec
	PoolLiveWorkers *prometheus.GaugeVec
	PoolActive      *prometheus.GaugeVec
	PoolQueued      *prometheus.GaugeVec

	// Server Metrics
	ConnectionsAccepted *prometheus.CounterVec
	ConnectionsRejected *prometheus.CounterVec
	Responses           *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by poolserve components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithNamespace(reg, DefaultNamespace)
}

// NewRegistryWithNamespace is NewRegistry with a custom metric namespace.
func NewRegistryWithNamespace(reg prometheus.Registerer, namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		// Thread Pool Metrics
		JobsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "jobs_submitted_total",
				Help:      "Total number of jobs accepted by the pool",
			},
			[]string{"pool_name"},
		),

		JobsExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "jobs_executed_total",
				Help:      "Total number of jobs that ran on a worker",
			},
			[]string{"pool_name"},
		),

		JobsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "jobs_completed_total",
				Help:      "Total number of jobs that returned normally",
			},
			[]string{"pool_name"},
		),

		JobsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "jobs_failed_total",
				Help:      "Total number of jobs that panicked",
			},
			[]string{"pool_name"},
		),

		JobQueueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "job_queue_wait_seconds",
				Help:      "Time jobs spent queued before a worker picked them up",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "job_duration_seconds",
				Help:      "Time spent executing jobs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),

		PoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "size",
				Help:      "Configured number of workers",
			},
			[]string{"pool_name"},
		),

		PoolLiveWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "live_workers",
				Help:      "Number of workers still consuming jobs",
			},
			[]string{"pool_name"},
		),

		PoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "active_workers",
				Help:      "Number of workers currently executing a job",
			},
			[]string{"pool_name"},
		),

		PoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "threadpool",
				Name:      "queued_jobs",
				Help:      "Number of jobs waiting for a worker",
			},
			[]string{"pool_name"},
		),

		// Server Metrics
		ConnectionsAccepted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "connections_accepted_total",
				Help:      "Total number of accepted connections",
			},
			[]string{"listener"},
		),

		ConnectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "connections_rejected_total",
				Help:      "Total number of connections closed because the pool refused the job",
			},
			[]string{"listener"},
		),

		Responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "server",
				Name:      "responses_total",
				Help:      "Total number of responses written, by status code",
			},
			[]string{"listener", "code"},
		),
	}
}
