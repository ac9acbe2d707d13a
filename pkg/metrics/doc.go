// Package metrics provides Prometheus instrumentation for poolserve components.
//
// # Overview
//
// The metrics package instruments:
//   - Thread pools (jobs submitted, executed, completed, failed, queue wait, job duration)
//   - Pool state (configured size, live workers, active workers, queued jobs)
//   - The connection server (accepted and rejected connections, responses by status code)
//
// # Quick Start
//
// Wrap a pool with metrics:
//
//	pool := threadpool.NewWithMetrics(4, "connections")
//
// or share one Prometheus registry between the pool and the server:
//
//	reg := prometheus.NewRegistry()
//	pool := threadpool.NewWithConfigAndMetrics(
//		threadpool.Config{Size: 4},
//		"connections",
//		metrics.Config{Enabled: true, Registry: reg},
//	)
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Available Metrics
//
// ## Thread Pool Metrics
//
//   - poolserve_threadpool_jobs_submitted_total
//   - poolserve_threadpool_jobs_executed_total
//   - poolserve_threadpool_jobs_completed_total
//   - poolserve_threadpool_jobs_failed_total
//   - poolserve_threadpool_job_queue_wait_seconds
//   - poolserve_threadpool_job_duration_seconds
//   - poolserve_threadpool_size
//   - poolserve_threadpool_live_workers
//   - poolserve_threadpool_active_workers
//   - poolserve_threadpool_queued_jobs
//
// ## Server Metrics
//
//   - poolserve_server_connections_accepted_total
//   - poolserve_server_connections_rejected_total
//   - poolserve_server_responses_total
//
// # Labels
//
//   - pool_name: User-provided name for the pool instance
//   - listener: Address the server is listening on
//   - code: HTTP status code written to the connection
//
// # Runtime Control
//
// Components implementing the Instrumentable interface support runtime control:
//
//	pool.DisableMetrics()
//	pool.EnableMetrics(config)
//	enabled := pool.MetricsEnabled()
package metrics
