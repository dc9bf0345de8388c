package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/consts"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupDeadline = 5 * time.Minute

type (
	// ServerOptions represents options for running ClickHouse in Docker.
	ServerOptions struct {
		// Version is the ClickHouse image tag (default: consts.DefaultClickHouseVersion).
		Version string

		// Username and Password for the default user. Empty password is allowed.
		Username string
		Password string
	}

	// Server is a disposable ClickHouse instance to rehearse releases against.
	Server struct {
		options   ServerOptions
		container *clickhouse.ClickHouseContainer
	}
)

// New creates a Server with default options.
//
// Example:
//
//	srv := docker.New()
//	if err := srv.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Stop(ctx)
func New() *Server {
	return NewWithOptions(ServerOptions{})
}

// NewWithOptions creates a Server with custom options.
func NewWithOptions(opts ServerOptions) *Server {
	if opts.Version == "" {
		opts.Version = consts.DefaultClickHouseVersion
	}
	if opts.Username == "" {
		opts.Username = "default"
	}

	return &Server{options: opts}
}

// Image returns the image reference the server runs.
func (s *Server) Image() string {
	return fmt.Sprintf("clickhouse/clickhouse-server:%s-alpine", s.options.Version)
}

// Start runs the container and waits until the HTTP interface answers.
func (s *Server) Start(ctx context.Context) error {
	if s.container != nil {
		return errors.New("server is already running")
	}

	container, err := clickhouse.Run(ctx, s.Image(),
		clickhouse.WithUsername(s.options.Username),
		clickhouse.WithPassword(s.options.Password),
		testcontainers.WithEnv(map[string]string{"CLICKHOUSE_DEFAULT_ACCESS_MANAGEMENT": "1"}),
		testcontainers.WithWaitStrategyAndDeadline(
			startupDeadline,
			wait.ForHTTP("/").
				WithPort("8123/tcp").
				WithStatusCodeMatcher(func(status int) bool { return status == 200 }),
		),
	)
	if err != nil {
		return errors.Wrap(err, "failed to start ClickHouse container")
	}

	s.container = container
	return nil
}

// Stop terminates and removes the container. Stopping a stopped server is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if s.container == nil {
		return nil
	}

	err := s.container.Terminate(ctx)
	s.container = nil
	if err != nil {
		return errors.Wrap(err, "failed to stop ClickHouse container")
	}

	return nil
}

// DSN returns a clickhouse:// URL for the native protocol port.
func (s *Server) DSN(ctx context.Context) (string, error) {
	if s.container == nil {
		return "", errors.New("server is not running")
	}

	dsn, err := s.container.ConnectionString(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get connection string")
	}

	return dsn, nil
}

// IsRunning returns true if the container is currently running.
func (s *Server) IsRunning() bool {
	return s.container != nil
}
