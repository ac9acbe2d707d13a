package threadpool

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in this package.
// Every pool created in a test must be closed before the test returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
