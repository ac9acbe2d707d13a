/*
Package threadpool provides a fixed-size pool of worker goroutines fed by a
single unbounded FIFO queue, with blocking, ordered shutdown.

A pool is created with a fixed number of workers. Each worker waits on the
shared queue, runs the job it dequeues to completion and goes back to waiting.
Submitting never blocks on capacity: the queue grows as needed.

Basic usage:

	pool := threadpool.New(4)
	defer pool.Close()

	err := pool.Execute(func() {
		// Do work
	})
	if err != nil {
		log.Printf("Failed to submit: %v", err)
	}

Jobs:

A Job is a plain func(). It runs exactly once, on exactly one worker, at some
point after Execute returns. Nothing is returned to the submitter; jobs that
need to report back capture a channel or a synchronized value themselves.

	results := make(chan int, len(inputs))
	for _, in := range inputs {
		in := in
		pool.Execute(func() {
			results <- square(in)
		})
	}

Ordering:

Jobs leave the queue in the order they were submitted. With more than one
worker, jobs run concurrently and may finish in any order. A pool of size 1
runs jobs strictly one after another in submission order.

Shutdown:

Close stops accepting jobs and then waits for each worker in creation order.
Jobs already queued are still executed, so Close returns only after every
accepted job has finished and every worker goroutine has exited:

	pool := threadpool.New(2)
	pool.Execute(slowJob)
	pool.Close() // returns after slowJob is done

Execute after Close returns ErrPoolClosed. Shutdown runs Close in the
background and returns a channel that closes when teardown is complete.

Panics:

A job that panics never takes down the process or the other workers. The
panic is recovered at the worker boundary, counted as failed, logged through
Config.Logger and passed to Config.PanicHandler. What happens next depends on
Config.FaultPolicy:

  - RetireWorker (default): the worker exits and the pool runs with one
    worker less for the rest of its life. Once every worker is retired,
    Execute returns ErrNoWorkers.
  - RecoverAndContinue: the worker goes back to waiting for jobs.

Configuration:

	pool := threadpool.NewWithConfig(threadpool.Config{
		Size:        8,
		FaultPolicy: threadpool.RecoverAndContinue,
		Logger:      slog.Default(),
		OnJobDone: func(workerID int, d time.Duration) {
			log.Printf("worker %d finished a job in %v", workerID, d)
		},
	})

New and NewWithConfig panic on a non-positive size; NewSafe and
NewWithConfigSafe return a *errors.ValidationError instead.

Metrics:

MetricsPool wraps a Pool and records job counts, queue wait, job duration and
pool gauges in Prometheus:

	pool := threadpool.NewWithMetrics(4, "connections")

Both Pool and MetricsPool implement Executor.

Thread Safety:

All pool operations are safe for concurrent use from multiple goroutines.
*/
package threadpool
