/*
Package poolserve provides a fixed-size thread pool and a small static page
server built on it.

Thread Pool (pkg/threadpool):
  - Pool: a fixed number of workers draining one unbounded FIFO queue
  - MetricsPool: a Pool that records Prometheus job and worker metrics
  - Close: stops intake, runs every queued job, joins workers in order

Server (internal/server):
  - one pool job per accepted TCP connection
  - "GET / HTTP/1.1" gets the index page, everything else the 404 page

Supporting packages:
  - pkg/metrics: Prometheus metric definitions
  - pkg/common: errors, validation and context helpers

Example usage:

	import "github.com/vnykmshr/poolserve/pkg/threadpool"

	pool := threadpool.New(4) // 4 workers
	defer pool.Close()

	pool.Execute(func() {
		handle(conn)
	})
*/
package poolserve
