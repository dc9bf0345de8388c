// Package docker runs disposable ClickHouse servers through testcontainers.
//
// It is used to rehearse a release against a throwaway server, mostly from
// integration tests:
//
//	srv := docker.NewWithOptions(docker.ServerOptions{Version: "25.7"})
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//	defer srv.Stop(ctx)
//
//	dsn, err := srv.DSN(ctx)
//	if err != nil {
//		return err
//	}
//
//	client, err := clickhouse.NewClient(ctx, dsn)
package docker
