package threadpool

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/poolserve/internal/testutil"
	gferrors "github.com/vnykmshr/poolserve/pkg/common/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		expectPanic bool
	}{
		{"single worker", 1, false},
		{"several workers", 4, false},
		{"zero workers", 0, true},
		{"negative workers", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.expectPanic {
				defer func() {
					r := recover()
					if r == nil {
						t.Fatal("expected panic")
					}
					err, ok := r.(error)
					if !ok || !gferrors.IsValidationError(err) {
						t.Errorf("expected ValidationError panic, got %v", r)
					}
				}()
			}

			pool := New(tt.size)
			defer pool.Close()

			testutil.AssertEqual(t, pool.Size(), tt.size)
			testutil.AssertEqual(t, pool.LiveWorkers(), tt.size)
			testutil.AssertEqual(t, pool.ActiveWorkers(), 0)
		})
	}
}

func TestNewSafe(t *testing.T) {
	pool, err := NewSafe(0)
	testutil.AssertError(t, err)
	testutil.AssertEqual(t, pool == nil, true)
	testutil.AssertEqual(t, errors.Is(err, gferrors.ErrInvalidConfiguration), true)

	pool, err = NewSafe(2)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, pool.Size(), 2)
	testutil.AssertNoError(t, pool.Close())
}

func TestWorkersStartedBeforeNewReturns(t *testing.T) {
	started := testutil.NewCallbackTracker()
	pool := NewWithConfig(Config{
		Size: 3,
		OnWorkerStart: func(workerID int) {
			started.Mark(workerID)
		},
	})
	defer pool.Close()

	started.AssertCallCount(t, 3)
}

func TestExecuteRunsEveryJobExactlyOnce(t *testing.T) {
	pool := New(4)

	const numJobs = 100
	var counter int64
	var perJob [numJobs]int32

	for i := 0; i < numJobs; i++ {
		i := i
		err := pool.Execute(func() {
			atomic.AddInt64(&counter, 1)
			atomic.AddInt32(&perJob[i], 1)
		})
		testutil.AssertNoError(t, err)
	}

	// Every job finishes without teardown forcing it.
	testutil.WaitForInt64(t, &counter, numJobs, testutil.TestTimeout)
	testutil.AssertNoError(t, pool.Close())

	testutil.AssertEqual(t, atomic.LoadInt64(&counter), int64(numJobs))
	for i := range perJob {
		testutil.AssertEqual(t, atomic.LoadInt32(&perJob[i]), int32(1))
	}
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(numJobs))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(numJobs))
	testutil.AssertEqual(t, pool.TotalFailed(), int64(0))
}

func TestCloseWaitsForInFlightJobs(t *testing.T) {
	pool := New(2)

	var done atomic.Bool
	testutil.AssertNoError(t, pool.Execute(func() {
		time.Sleep(200 * time.Millisecond)
		done.Store(true)
	}))

	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, done.Load(), true)
	testutil.AssertEqual(t, pool.LiveWorkers(), 0)
}

func TestCloseRunsQueuedJobs(t *testing.T) {
	pool := New(1)

	release := make(chan struct{})
	var ran int32
	testutil.AssertNoError(t, pool.Execute(func() { <-release }))
	for i := 0; i < 5; i++ {
		testutil.AssertNoError(t, pool.Execute(func() { atomic.AddInt32(&ran, 1) }))
	}

	closed := pool.Shutdown()
	select {
	case <-closed:
		t.Fatal("shutdown finished while a job was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(testutil.TestTimeout):
		t.Fatal("timeout waiting for shutdown")
	}
	testutil.AssertEqual(t, atomic.LoadInt32(&ran), int32(5))
}

func TestSingleWorkerRunsJobsSerially(t *testing.T) {
	pool := New(1)

	var mu sync.Mutex
	var timeA, timeB time.Time

	testutil.AssertNoError(t, pool.Execute(func() {
		time.Sleep(100 * time.Millisecond)
		mu.Lock()
		timeA = time.Now()
		mu.Unlock()
	}))
	testutil.AssertNoError(t, pool.Execute(func() {
		mu.Lock()
		timeB = time.Now()
		mu.Unlock()
	}))

	testutil.AssertNoError(t, pool.Close())

	mu.Lock()
	defer mu.Unlock()
	if !timeA.Before(timeB) {
		t.Errorf("job A finished at %v, not before job B at %v", timeA, timeB)
	}
}

func TestSingleWorkerPreservesSubmissionOrder(t *testing.T) {
	pool := New(1)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		i := i
		testutil.AssertNoError(t, pool.Execute(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	testutil.AssertNoError(t, pool.Close())

	testutil.AssertEqual(t, len(order), 50)
	for i, got := range order {
		testutil.AssertEqual(t, got, i)
	}
}

func TestJobsRunConcurrently(t *testing.T) {
	pool := New(2)

	var barrier sync.WaitGroup
	barrier.Add(2)
	bothRunning := make(chan struct{})
	go func() {
		barrier.Wait()
		close(bothRunning)
	}()

	var overlapped int32
	job := func() {
		barrier.Done()
		select {
		case <-bothRunning:
			atomic.AddInt32(&overlapped, 1)
		case <-time.After(time.Second):
		}
	}
	testutil.AssertNoError(t, pool.Execute(job))
	testutil.AssertNoError(t, pool.Execute(job))

	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, atomic.LoadInt32(&overlapped), int32(2))
}

func TestExecuteNilJob(t *testing.T) {
	pool := New(1)
	defer pool.Close()

	testutil.AssertEqual(t, pool.Execute(nil), ErrNilJob)
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestExecuteAfterClose(t *testing.T) {
	pool := New(1)
	testutil.AssertNoError(t, pool.Close())

	err := pool.Execute(func() {})
	testutil.AssertEqual(t, err, ErrPoolClosed)
	testutil.AssertEqual(t, errors.Is(err, gferrors.ErrClosed), true)
	testutil.AssertEqual(t, pool.TotalSubmitted(), int64(0))
}

func TestCloseIsIdempotentAndConcurrent(t *testing.T) {
	pool := New(3)

	var finished atomic.Bool
	testutil.AssertNoError(t, pool.Execute(func() {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pool.Close(); err != nil {
				t.Errorf("Close() = %v", err)
			}
			if !finished.Load() {
				t.Error("Close returned before the running job finished")
			}
		}()
	}
	wg.Wait()

	testutil.AssertNoError(t, pool.Close())
	<-pool.Shutdown()
}

func TestPanicRetiresWorker(t *testing.T) {
	panics := testutil.NewCallbackTracker()
	pool := NewWithConfig(Config{
		Size:        3,
		FaultPolicy: RetireWorker,
		PanicHandler: func(workerID int, recovered interface{}) {
			panics.Mark(recovered)
		},
	})

	testutil.AssertNoError(t, pool.Execute(func() { panic("boom") }))
	testutil.Eventually(t, func() bool { return pool.LiveWorkers() == 2 }, time.Second, time.Millisecond)

	var counter int64
	for i := 0; i < 20; i++ {
		testutil.AssertNoError(t, pool.Execute(func() { atomic.AddInt64(&counter, 1) }))
	}
	testutil.WaitForInt64(t, &counter, 20, testutil.TestTimeout)
	testutil.AssertEqual(t, pool.LiveWorkers(), 2)
	testutil.AssertNoError(t, pool.Close())

	panics.AssertCallCount(t, 1)
	testutil.AssertEqual(t, panics.Value(), interface{}("boom"))
	testutil.AssertEqual(t, atomic.LoadInt64(&counter), int64(20))
	testutil.AssertEqual(t, pool.TotalFailed(), int64(1))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(20))
}

func TestPanicRecoverAndContinue(t *testing.T) {
	stopped := testutil.NewCallbackTracker()
	pool := NewWithConfig(Config{
		Size:         1,
		FaultPolicy:  RecoverAndContinue,
		OnWorkerStop: func(workerID int) { stopped.Mark(workerID) },
	})

	var ran atomic.Bool
	testutil.AssertNoError(t, pool.Execute(func() { panic("boom") }))
	testutil.AssertNoError(t, pool.Execute(func() { ran.Store(true) }))

	testutil.AssertEventually(t, ran.Load)
	testutil.AssertEqual(t, pool.LiveWorkers(), 1)
	stopped.AssertNotCalled(t)

	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, pool.TotalFailed(), int64(1))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(1))
}

func TestAllWorkersRetired(t *testing.T) {
	pool := New(1)

	testutil.AssertNoError(t, pool.Execute(func() { panic("boom") }))
	testutil.AssertEventually(t, func() bool { return pool.LiveWorkers() == 0 })

	testutil.AssertEqual(t, pool.Execute(func() {}), ErrNoWorkers)
	testutil.AssertNoError(t, pool.Close())
}

func TestLifecycleCallbacks(t *testing.T) {
	var workerStopped, jobStarted, jobDone int32

	pool := NewWithConfig(Config{
		Size: 2,
		OnWorkerStop: func(workerID int) {
			atomic.AddInt32(&workerStopped, 1)
		},
		OnJobStart: func(workerID int) {
			atomic.AddInt32(&jobStarted, 1)
		},
		OnJobDone: func(workerID int, d time.Duration) {
			if d < 10*time.Millisecond {
				t.Errorf("job duration %v shorter than the job slept", d)
			}
			atomic.AddInt32(&jobDone, 1)
		},
	})

	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, pool.Execute(func() { time.Sleep(10 * time.Millisecond) }))
	}
	testutil.WaitForInt32(t, &jobDone, 3, testutil.TestTimeout)
	testutil.AssertEqual(t, atomic.LoadInt32(&jobStarted), int32(3))
	testutil.AssertEqual(t, atomic.LoadInt32(&workerStopped), int32(0))

	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, atomic.LoadInt32(&workerStopped), int32(2))
}

func TestPanickingHooksDoNotStopWorkers(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	pool := NewWithConfig(Config{
		Size:          2,
		FaultPolicy:   RecoverAndContinue,
		Logger:        logger,
		OnWorkerStart: func(int) { panic("start hook") },
		OnJobStart:    func(int) { panic("job start hook") },
		OnJobDone:     func(int, time.Duration) { panic("job done hook") },
		PanicHandler:  func(int, interface{}) { panic("panic hook") },
		OnWorkerStop:  func(int) { panic("stop hook") },
	})
	testutil.AssertEqual(t, pool.LiveWorkers(), 2)

	var counter int64
	testutil.AssertNoError(t, pool.Execute(func() { panic("boom") }))
	for i := 0; i < 10; i++ {
		testutil.AssertNoError(t, pool.Execute(func() { atomic.AddInt64(&counter, 1) }))
	}
	testutil.WaitForInt64(t, &counter, 10, testutil.TestTimeout)
	testutil.AssertEqual(t, pool.LiveWorkers(), 2)

	testutil.AssertNoError(t, pool.Close())
	testutil.AssertEqual(t, pool.TotalFailed(), int64(1))
	testutil.AssertEqual(t, pool.TotalCompleted(), int64(10))

	out := buf.String()
	for _, hook := range []string{"OnWorkerStart", "OnJobStart", "OnJobDone", "PanicHandler", "OnWorkerStop"} {
		if !strings.Contains(out, "hook="+hook) {
			t.Errorf("no hook panic logged for %s:\n%s", hook, out)
		}
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestStats(t *testing.T) {
	pool := New(1)

	release := make(chan struct{})
	testutil.AssertNoError(t, pool.Execute(func() { <-release }))
	testutil.AssertEventually(t, func() bool { return pool.ActiveWorkers() == 1 })

	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, pool.Execute(func() {}))
	}

	stats := pool.Stats()
	testutil.AssertEqual(t, stats.Size, 1)
	testutil.AssertEqual(t, stats.LiveWorkers, 1)
	testutil.AssertEqual(t, stats.ActiveWorkers, 1)
	testutil.AssertEqual(t, stats.Queued, 3)
	testutil.AssertEqual(t, stats.Submitted, int64(4))

	close(release)
	testutil.AssertNoError(t, pool.Close())

	stats = pool.Stats()
	testutil.AssertEqual(t, stats.Queued, 0)
	testutil.AssertEqual(t, stats.ActiveWorkers, 0)
	testutil.AssertEqual(t, stats.LiveWorkers, 0)
	testutil.AssertEqual(t, stats.Completed, int64(4))
}

func TestLoggerRecordsWorkerID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	pool := NewWithConfig(Config{
		Size:        1,
		FaultPolicy: RecoverAndContinue,
		Logger:      logger,
	})
	testutil.AssertNoError(t, pool.Execute(func() { panic("boom") }))
	testutil.AssertNoError(t, pool.Close())

	out := buf.String()
	for _, want := range []string{"worker started", "job panicked", "panic=boom", "worker_id=0", "worker shut down"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestParseFaultPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    FaultPolicy
		wantErr bool
	}{
		{"", RetireWorker, false},
		{"retire", RetireWorker, false},
		{"recover", RecoverAndContinue, false},
		{"restart", RetireWorker, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFaultPolicy(tt.in)
			testutil.AssertEqual(t, got, tt.want)
			testutil.AssertEqual(t, err != nil, tt.wantErr)
			if err == nil {
				roundTrip, err := ParseFaultPolicy(got.String())
				testutil.AssertNoError(t, err)
				testutil.AssertEqual(t, roundTrip, got)
			}
		})
	}
}
