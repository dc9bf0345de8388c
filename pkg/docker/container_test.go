package docker_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/pseudomuto/changedeploy/pkg/consts"
	"github.com/pseudomuto/changedeploy/pkg/docker"
	"github.com/stretchr/testify/require"
)

// skipIfNoDocker skips the test if Docker is not available
func skipIfNoDocker(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	if err := exec.CommandContext(t.Context(), "docker", "ps").Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

func TestNewWithOptions(t *testing.T) {
	srv := docker.New()
	require.Equal(t, "clickhouse/clickhouse-server:"+consts.DefaultClickHouseVersion+"-alpine", srv.Image())
	require.False(t, srv.IsRunning())

	srv = docker.NewWithOptions(docker.ServerOptions{Version: "24.8"})
	require.Equal(t, "clickhouse/clickhouse-server:24.8-alpine", srv.Image())
}

func TestServer_NotRunning(t *testing.T) {
	srv := docker.New()

	require.NoError(t, srv.Stop(context.Background()))

	dsn, err := srv.DSN(context.Background())
	require.Error(t, err)
	require.Empty(t, dsn)
	require.Contains(t, err.Error(), "server is not running")
}

func TestServer_StartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Docker tests in short mode")
	}
	skipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	srv := docker.New()
	defer func() { _ = srv.Stop(ctx) }()

	require.NoError(t, srv.Start(ctx))
	require.True(t, srv.IsRunning())

	err := srv.Start(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")

	dsn, err := srv.DSN(ctx)
	require.NoError(t, err)
	require.Contains(t, dsn, "clickhouse://")

	require.NoError(t, srv.Stop(ctx))
	require.False(t, srv.IsRunning())
}
