// Package server accepts TCP connections and hands each one to a thread pool
// as a single job that reads the request and writes a static page back.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	gfcontext "github.com/vnykmshr/poolserve/pkg/common/context"
	gferrors "github.com/vnykmshr/poolserve/pkg/common/errors"
	"github.com/vnykmshr/poolserve/pkg/common/validation"
	"github.com/vnykmshr/poolserve/pkg/metrics"
	"github.com/vnykmshr/poolserve/pkg/threadpool"
)

// Config holds configuration options for the connection server.
type Config struct {
	// Addr is the TCP address to listen on.
	Addr string `yaml:"addr"`

	// Root is the directory holding IndexFile and NotFoundFile.
	Root string `yaml:"root"`

	// IndexFile is served for "GET / HTTP/1.1".
	IndexFile string `yaml:"index_file"`

	// NotFoundFile is served for every other request.
	NotFoundFile string `yaml:"not_found_file"`

	// ReadBufferSize is the number of request bytes read per connection.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// ReadTimeout bounds the request read. Zero means no deadline, which lets
	// an idle client hold a pool worker and block pool teardown indefinitely.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing the response. Zero means no deadline.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// StatsSchedule is a cron expression for logging pool stats.
	// Empty disables the reporter.
	StatsSchedule string `yaml:"stats_schedule"`
}

// DefaultConfig serves index.html and 404.html from the working directory on
// localhost:3000.
func DefaultConfig() Config {
	return Config{
		Addr:           "localhost:3000",
		Root:           ".",
		IndexFile:      "index.html",
		NotFoundFile:   "404.html",
		ReadBufferSize: 1024,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		StatsSchedule:  "@every 30s",
	}
}

// Validate checks the configuration and returns the first problem found.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("server", "addr", c.Addr); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("server", "root", c.Root); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("server", "index_file", c.IndexFile); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty("server", "not_found_file", c.NotFoundFile); err != nil {
		return err
	}
	if err := validation.ValidatePositive("server", "read_buffer_size", c.ReadBufferSize); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("server", "read_timeout", c.ReadTimeout); err != nil {
		return err
	}
	if err := validation.ValidateNonNegativeDuration("server", "write_timeout", c.WriteTimeout); err != nil {
		return err
	}
	if c.StatsSchedule != "" {
		if _, err := cron.ParseStandard(c.StatsSchedule); err != nil {
			return gferrors.NewValidationError("server", "stats_schedule", c.StatsSchedule, err.Error()).
				WithHint(`use a cron expression such as "@every 30s"`)
		}
	}
	return nil
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for connection and stats records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records connection and response counters in registry.
func WithMetrics(registry *metrics.Registry) Option {
	return func(s *Server) {
		s.metrics = registry
	}
}

// Server accepts connections and submits one job per connection to an executor.
type Server struct {
	config  Config
	exec    threadpool.Executor
	logger  *slog.Logger
	metrics *metrics.Registry

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server that submits connection jobs to exec. Only a nil
// interface is rejected; a typed nil such as (*threadpool.Pool)(nil) is not
// detected and will panic on the first connection.
func New(config Config, exec threadpool.Executor, opts ...Option) (*Server, error) {
	if exec == nil {
		return nil, validation.ValidateNotNil("server", "executor", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config: config,
		exec:   exec,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ListenAndServe listens on the configured address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return gferrors.NewOperationError("server", "Listen", err).WithContext(s.config.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, which closes ln and
// returns nil. Any other accept failure is returned. Serve does not wait for
// jobs already handed to the executor; closing the executor does.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stopReporter := s.startReporter()
	defer stopReporter()

	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()

	listenerName := ln.Addr().String()
	s.logger.Info("server listening", slog.String("addr", listenerName))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if gfcontext.IsCanceled(ctx) {
				s.logger.Info("server stopped", slog.String("addr", listenerName))
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return gferrors.NewOperationError("server", "Accept", err).WithContext("listener closed")
			}
			return gferrors.NewOperationError("server", "Accept", err)
		}

		s.dispatch(conn, listenerName)
	}
}

// Addr returns the address the server is listening on, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// dispatch turns one accepted connection into one executor job.
func (s *Server) dispatch(conn net.Conn, listenerName string) {
	connID := uuid.NewString()
	logger := s.logger.With(
		slog.String("conn_id", connID),
		slog.String("remote", conn.RemoteAddr().String()),
	)
	if s.metrics != nil {
		s.metrics.ConnectionsAccepted.WithLabelValues(listenerName).Inc()
	}

	err := s.exec.Execute(func() {
		s.handleConnection(conn, logger, listenerName)
	})
	if err != nil {
		conn.Close()
		if s.metrics != nil {
			s.metrics.ConnectionsRejected.WithLabelValues(listenerName).Inc()
		}
		logger.Error("connection rejected", slog.Any("error", err))
	}
}
