package testutil

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestTimeout is the default timeout for tests
const TestTimeout = 5 * time.Second

// defaultPollInterval is used by AssertEventually.
const defaultPollInterval = 5 * time.Millisecond

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual[T comparable](t *testing.T, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// Eventually polls condition every interval until it returns true or timeout
// elapses, failing the test in the latter case.
func Eventually(t *testing.T, condition func() bool, timeout, interval time.Duration) {
	t.Helper()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		select {
		case <-deadline.C:
			t.Fatalf("condition not met within %v", timeout)
		case <-ticker.C:
		}
	}
}

// AssertEventually is Eventually with TestTimeout and a short poll interval.
func AssertEventually(t *testing.T, condition func() bool) {
	t.Helper()
	Eventually(t, condition, TestTimeout, defaultPollInterval)
}

// WaitForInt32 waits until the value at addr equals want.
func WaitForInt32(t *testing.T, addr *int32, want int32, timeout time.Duration) {
	t.Helper()
	Eventually(t, func() bool {
		return atomic.LoadInt32(addr) == want
	}, timeout, defaultPollInterval)
}

// WaitForInt64 waits until the value at addr equals want.
func WaitForInt64(t *testing.T, addr *int64, want int64, timeout time.Duration) {
	t.Helper()
	Eventually(t, func() bool {
		return atomic.LoadInt64(addr) == want
	}, timeout, defaultPollInterval)
}

// CallbackTracker records invocations of a callback from any goroutine.
type CallbackTracker struct {
	mu    sync.Mutex
	count int
	value interface{}
}

// NewCallbackTracker creates an empty tracker.
func NewCallbackTracker() *CallbackTracker {
	return &CallbackTracker{}
}

// Mark records one call. The first argument, if any, becomes Value().
func (c *CallbackTracker) Mark(args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	if len(args) > 0 {
		c.value = args[0]
	}
}

// CallCount returns the number of Mark calls.
func (c *CallbackTracker) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Value returns the last value passed to Mark.
func (c *CallbackTracker) Value() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// AssertNotCalled fails the test if Mark was called.
func (c *CallbackTracker) AssertNotCalled(t *testing.T) {
	t.Helper()
	if n := c.CallCount(); n > 0 {
		t.Fatalf("expected callback not to be called, got %d calls", n)
	}
}

// AssertCallCount fails the test unless Mark was called exactly want times.
func (c *CallbackTracker) AssertCallCount(t *testing.T, want int) {
	t.Helper()
	if got := c.CallCount(); got != want {
		t.Fatalf("call count = %d, want %d", got, want)
	}
}
