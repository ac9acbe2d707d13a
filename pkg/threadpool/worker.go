package threadpool

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// worker owns one goroutine that takes jobs from the pool queue until the
// queue is closed and drained, or until its fault policy retires it.
type worker struct {
	id   int
	pool *Pool
	done chan struct{}
}

// run is the main loop for a worker.
func (w *worker) run(ready *sync.WaitGroup) {
	p := w.pool
	defer close(w.done)
	defer func() {
		p.queue.detach()
		p.live.Add(-1)
		if p.config.OnWorkerStop != nil {
			w.runHook("OnWorkerStop", func() { p.config.OnWorkerStop(w.id) })
		}
	}()

	if p.config.OnWorkerStart != nil {
		w.runHook("OnWorkerStart", func() { p.config.OnWorkerStart(w.id) })
	}
	p.logDebug("worker started", w.id)
	ready.Done()

	for {
		job, ok := p.queue.recv()
		if !ok {
			return
		}
		if !w.execute(job) {
			p.logDebug("worker retired after job panic", w.id)
			return
		}
	}
}

// execute runs one job on the worker goroutine. It reports whether the
// worker should keep consuming jobs.
func (w *worker) execute(job Job) (keepRunning bool) {
	p := w.pool
	start := time.Now()

	p.active.Add(1)
	if p.config.OnJobStart != nil {
		w.runHook("OnJobStart", func() { p.config.OnJobStart(w.id) })
	}

	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			if p.config.Logger != nil {
				p.config.Logger.Error("job panicked",
					slog.Int("worker_id", w.id),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
					slog.String("fault_policy", p.config.FaultPolicy.String()),
				)
			}
			if p.config.PanicHandler != nil {
				w.runHook("PanicHandler", func() { p.config.PanicHandler(w.id, r) })
			}
			keepRunning = p.config.FaultPolicy == RecoverAndContinue
		} else {
			p.completed.Add(1)
		}

		p.active.Add(-1)
		if p.config.OnJobDone != nil {
			d := time.Since(start)
			w.runHook("OnJobDone", func() { p.config.OnJobDone(w.id, d) })
		}
	}()

	job()
	return true
}

// runHook calls a user callback. A panic inside it is logged and dropped so
// it cannot take down the worker goroutine or the process.
func (w *worker) runHook(name string, hook func()) {
	defer func() {
		if r := recover(); r != nil && w.pool.config.Logger != nil {
			w.pool.config.Logger.Error("hook panicked",
				slog.Int("worker_id", w.id),
				slog.String("hook", name),
				slog.Any("panic", r),
			)
		}
	}()
	hook()
}
