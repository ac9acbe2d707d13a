package threadpool

import (
	"sync"
)

// minQueueCapacity is the initial ring size; the ring doubles when full.
const minQueueCapacity = 16

// jobQueue is an unbounded FIFO of jobs with one producing side (the Pool)
// and any number of consumers (the workers). Consumers block in recv until
// a job is available or the queue is closed and drained.
type jobQueue struct {
	mu       sync.Mutex
	recvCond *sync.Cond

	// Ring buffer state
	buffer []Job
	head   int
	tail   int
	count  int

	closed    bool
	consumers int
}

// newJobQueue creates a queue expecting the given number of consumers.
func newJobQueue(consumers int) *jobQueue {
	q := &jobQueue{
		buffer:    make([]Job, minQueueCapacity),
		consumers: consumers,
	}
	q.recvCond = sync.NewCond(&q.mu)
	return q
}

// send enqueues one job and wakes a single waiting consumer.
func (q *jobQueue) send(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrPoolClosed
	}
	if q.consumers == 0 {
		return ErrNoWorkers
	}

	if q.count == len(q.buffer) {
		q.growLocked()
	}
	q.buffer[q.tail] = job
	q.tail = (q.tail + 1) % len(q.buffer)
	q.count++

	q.recvCond.Signal()
	return nil
}

// recv blocks until a job is available and returns it. It returns false once
// the queue is closed and every queued job has been handed out.
func (q *jobQueue) recv() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.recvCond.Wait()
	}

	if q.count == 0 {
		return nil, false
	}

	job := q.buffer[q.head]
	q.buffer[q.head] = nil
	q.head = (q.head + 1) % len(q.buffer)
	q.count--

	return job, true
}

// close stops accepting jobs and wakes every waiting consumer. Jobs already
// queued are still delivered.
func (q *jobQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.recvCond.Broadcast()
}

// detach records that one consumer will never call recv again.
func (q *jobQueue) detach() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.consumers > 0 {
		q.consumers--
	}
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// growLocked doubles the ring, unrolling it so head starts at zero.
func (q *jobQueue) growLocked() {
	grown := make([]Job, len(q.buffer)*2)
	n := copy(grown, q.buffer[q.head:])
	copy(grown[n:], q.buffer[:q.head])

	q.buffer = grown
	q.head = 0
	q.tail = q.count
}
