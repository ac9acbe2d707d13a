package threadpool

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/poolserve/pkg/metrics"
)

// MetricsPool wraps a Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     *Pool
	name     string
	registry atomic.Pointer[metrics.Registry]
	enabled  atomic.Bool
}

var (
	_ Executor               = (*MetricsPool)(nil)
	_ metrics.Instrumentable = (*MetricsPool)(nil)
)

// NewWithMetrics creates a pool with size workers and metrics recorded in a
// private Prometheus registry. Use NewWithConfigAndMetrics to share a registry.
func NewWithMetrics(size int, name string) *MetricsPool {
	return NewWithConfigAndMetrics(Config{Size: size}, name, metrics.Config{
		Enabled:  true,
		Registry: prometheus.NewRegistry(),
	})
}

// NewWithConfigAndMetrics creates a pool with custom config and metrics.
// It panics if config.Size is not positive.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) *MetricsPool {
	mp := &MetricsPool{
		pool: NewWithConfig(config),
		name: name,
	}

	registry := metrics.DefaultRegistry
	if metricsConfig.Registry != nil {
		registry = metrics.NewRegistryWithNamespace(metricsConfig.Registry, metricsConfig.Namespace)
	}
	mp.registry.Store(registry)
	mp.enabled.Store(metricsConfig.Enabled)

	mp.updateMetrics()
	return mp
}

// Pool returns the wrapped pool.
func (mp *MetricsPool) Pool() *Pool {
	return mp.pool
}

// Registry returns the metric set the pool records into. Other components
// serving the same pool can record into it instead of registering their own.
func (mp *MetricsPool) Registry() *metrics.Registry {
	return mp.registry.Load()
}

// updateMetrics updates the current state gauges.
func (mp *MetricsPool) updateMetrics() {
	if !mp.enabled.Load() {
		return
	}

	registry := mp.registry.Load()
	registry.PoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	registry.PoolLiveWorkers.WithLabelValues(mp.name).Set(float64(mp.pool.LiveWorkers()))
	registry.PoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	registry.PoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Execute wraps job to record queue wait, duration and outcome, then
// submits it to the underlying pool.
func (mp *MetricsPool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	submitTime := time.Now()
	wrapped := func() {
		mp.observe(job, submitTime)
	}

	err := mp.pool.Execute(wrapped)
	if err == nil && mp.enabled.Load() {
		mp.registry.Load().JobsSubmitted.WithLabelValues(mp.name).Inc()
	}
	mp.updateMetrics()

	return err
}

// observe runs job on the worker goroutine and records its metrics. A panic
// is recorded as a failure and re-raised so the pool's fault policy applies.
func (mp *MetricsPool) observe(job Job, submitTime time.Time) {
	start := time.Now()
	if mp.enabled.Load() {
		mp.registry.Load().JobQueueWait.WithLabelValues(mp.name).Observe(start.Sub(submitTime).Seconds())
	}

	completed := false
	defer func() {
		if mp.enabled.Load() {
			registry := mp.registry.Load()
			registry.JobDuration.WithLabelValues(mp.name).Observe(time.Since(start).Seconds())
			registry.JobsExecuted.WithLabelValues(mp.name).Inc()
			if completed {
				registry.JobsCompleted.WithLabelValues(mp.name).Inc()
			} else {
				registry.JobsFailed.WithLabelValues(mp.name).Inc()
			}
		}
	}()

	job()
	completed = true
}

// Close closes the underlying pool and refreshes the state gauges.
func (mp *MetricsPool) Close() error {
	err := mp.pool.Close()
	mp.updateMetrics()
	return err
}

// Shutdown runs Close in the background.
func (mp *MetricsPool) Shutdown() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = mp.Close()
		close(done)
	}()
	return done
}

// Stats returns a snapshot of the underlying pool and refreshes the gauges.
func (mp *MetricsPool) Stats() Stats {
	mp.updateMetrics()
	return mp.pool.Stats()
}

// EnableMetrics enables metrics collection.
func (mp *MetricsPool) EnableMetrics(config metrics.Config) error {
	if config.Registry != nil {
		mp.registry.Store(metrics.NewRegistryWithNamespace(config.Registry, config.Namespace))
	}
	mp.enabled.Store(config.Enabled)

	mp.updateMetrics()
	return nil
}

// DisableMetrics disables metrics collection.
func (mp *MetricsPool) DisableMetrics() {
	mp.enabled.Store(false)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mp *MetricsPool) MetricsEnabled() bool {
	return mp.enabled.Load()
}
