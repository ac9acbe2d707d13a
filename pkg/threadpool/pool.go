package threadpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gferrors "github.com/vnykmshr/poolserve/pkg/common/errors"
	"github.com/vnykmshr/poolserve/pkg/common/validation"
)

// Job is a unit of work executed exactly once by one worker.
// Anything it captures is handed over to the worker goroutine; the submitter
// must not keep using that state without its own synchronization.
type Job func()

var (
	// ErrNilJob is returned by Execute when given a nil job.
	ErrNilJob = errors.New("threadpool: job cannot be nil")

	// ErrPoolClosed is returned by Execute once Close or Shutdown has been called.
	ErrPoolClosed = fmt.Errorf("threadpool: %w", gferrors.ErrClosed)

	// ErrNoWorkers is returned by Execute when every worker has been retired
	// by job panics and nothing is left to consume the queue.
	ErrNoWorkers = errors.New("threadpool: no live workers")
)

// FaultPolicy decides what a worker does after a job panics.
type FaultPolicy int

const (
	// RetireWorker stops the worker after the panic is recovered and reported.
	// Pool capacity shrinks by one; the other workers keep running.
	RetireWorker FaultPolicy = iota

	// RecoverAndContinue reports the panic and returns the worker to the queue.
	RecoverAndContinue
)

func (f FaultPolicy) String() string {
	switch f {
	case RetireWorker:
		return "retire"
	case RecoverAndContinue:
		return "recover"
	default:
		return fmt.Sprintf("FaultPolicy(%d)", int(f))
	}
}

// ParseFaultPolicy converts "retire" or "recover" into a FaultPolicy.
func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch s {
	case "retire", "":
		return RetireWorker, nil
	case "recover":
		return RecoverAndContinue, nil
	default:
		return RetireWorker, gferrors.NewValidationError("threadpool", "fault_policy", s, "unknown fault policy").
			WithHint(`use "retire" or "recover"`)
	}
}

// Config holds configuration options for creating a Pool.
type Config struct {
	// Size is the number of workers in the pool.
	// Must be greater than 0.
	Size int

	// FaultPolicy controls what happens to a worker whose job panics.
	// The zero value is RetireWorker.
	FaultPolicy FaultPolicy

	// Logger receives worker lifecycle and panic records, tagged with
	// worker_id. If nil, the pool does not log.
	Logger *slog.Logger

	// OnWorkerStart is called on the worker goroutine before it first waits for a job.
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called on the worker goroutine right before it exits.
	OnWorkerStop func(workerID int)

	// OnJobStart is called before a job begins execution.
	OnJobStart func(workerID int)

	// OnJobDone is called after a job returns or panics.
	OnJobDone func(workerID int, duration time.Duration)

	// PanicHandler is called with the recovered value when a job panics.
	//
	// Hooks run on the worker goroutine. A panic inside a hook is recovered
	// and logged; it does not count as a job failure.
	PanicHandler func(workerID int, recovered interface{})
}

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	Size          int   `json:"size"`
	LiveWorkers   int   `json:"live_workers"`
	ActiveWorkers int   `json:"active_workers"`
	Queued        int   `json:"queued"`
	Submitted     int64 `json:"submitted"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
}

// Executor is the submission surface shared by Pool and MetricsPool.
type Executor interface {
	// Execute queues job for exactly-once execution on some worker.
	Execute(job Job) error

	// Close stops accepting jobs and blocks until every worker has exited.
	Close() error

	// Stats returns a snapshot of pool state.
	Stats() Stats
}

// Pool runs jobs on a fixed set of workers fed by one unbounded FIFO queue.
type Pool struct {
	config  Config
	queue   *jobQueue
	workers []*worker

	closeOnce sync.Once
	closed    chan struct{}

	live      atomic.Int32
	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

var _ Executor = (*Pool)(nil)

// New creates a pool with size workers.
// It panics if size is not positive.
func New(size int) *Pool {
	return NewWithConfig(Config{Size: size})
}

// NewSafe creates a pool with size workers, returning a validation error
// instead of panicking.
func NewSafe(size int) (*Pool, error) {
	return NewWithConfigSafe(Config{Size: size})
}

// NewWithConfig creates a pool with the specified configuration.
// It panics if config.Size is not positive.
func NewWithConfig(config Config) *Pool {
	p, err := NewWithConfigSafe(config)
	if err != nil {
		panic(err)
	}
	return p
}

// NewWithConfigSafe creates a pool with the specified configuration.
// Validation happens before any worker is started. When it returns, every
// worker is running and waiting for jobs.
func NewWithConfigSafe(config Config) (*Pool, error) {
	if err := validation.ValidatePositive("threadpool", "size", config.Size); err != nil {
		return nil, err
	}

	p := &Pool{
		config: config,
		queue:  newJobQueue(config.Size),
		closed: make(chan struct{}),
	}

	var ready sync.WaitGroup
	p.workers = make([]*worker, config.Size)
	for i := 0; i < config.Size; i++ {
		p.workers[i] = &worker{
			id:   i,
			pool: p,
			done: make(chan struct{}),
		}
		p.live.Add(1)
		ready.Add(1)
		go p.workers[i].run(&ready)
	}
	ready.Wait()

	return p, nil
}

// Execute queues job for execution. It does not wait for the job to start.
func (p *Pool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	// Counted first so a fast worker never sees completed > submitted.
	p.submitted.Add(1)
	if err := p.queue.send(job); err != nil {
		p.submitted.Add(-1)
		return err
	}
	return nil
}

// Close stops accepting jobs, then waits for each worker in creation order.
// Jobs queued before Close still run. Close is safe to call more than once
// and from several goroutines; every call returns after teardown finished.
// A job must not call Close or Shutdown on its own pool: Close would wait for
// the worker running that job and never return.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.queue.close()

		for _, w := range p.workers {
			<-w.done
			p.logDebug("worker shut down", w.id)
		}
		close(p.closed)
	})

	<-p.closed
	return nil
}

// Shutdown runs Close in the background. The returned channel is closed when
// every worker has exited.
func (p *Pool) Shutdown() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = p.Close()
		close(done)
	}()
	return done
}

// Size returns the number of workers the pool was created with.
func (p *Pool) Size() int {
	return p.config.Size
}

// LiveWorkers returns the number of workers still consuming jobs.
func (p *Pool) LiveWorkers() int {
	return int(p.live.Load())
}

// ActiveWorkers returns the number of workers currently executing a job.
func (p *Pool) ActiveWorkers() int {
	return int(p.active.Load())
}

// QueueSize returns the number of jobs waiting for a worker.
func (p *Pool) QueueSize() int {
	return p.queue.len()
}

// TotalSubmitted returns the number of jobs accepted by Execute.
func (p *Pool) TotalSubmitted() int64 {
	return p.submitted.Load()
}

// TotalCompleted returns the number of jobs that returned normally.
func (p *Pool) TotalCompleted() int64 {
	return p.completed.Load()
}

// TotalFailed returns the number of jobs that panicked.
func (p *Pool) TotalFailed() int64 {
	return p.failed.Load()
}

// Stats returns a snapshot of pool state.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:          p.Size(),
		LiveWorkers:   p.LiveWorkers(),
		ActiveWorkers: p.ActiveWorkers(),
		Queued:        p.QueueSize(),
		Submitted:     p.TotalSubmitted(),
		Completed:     p.TotalCompleted(),
		Failed:        p.TotalFailed(),
	}
}

func (p *Pool) logDebug(msg string, workerID int) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, slog.Int("worker_id", workerID))
	}
}
