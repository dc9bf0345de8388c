//go:build integration

package deploy_test

import (
	"context"
	"testing"
	"time"

	"github.com/pseudomuto/changedeploy/pkg/clickhouse"
	"github.com/pseudomuto/changedeploy/pkg/deploy"
	"github.com/pseudomuto/changedeploy/pkg/docker"
	"github.com/pseudomuto/changedeploy/pkg/ledger"
	"github.com/stretchr/testify/require"
)

func startClickHouse(t *testing.T) *clickhouse.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	srv := docker.New()
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	dsn, err := srv.DSN(ctx)
	require.NoError(t, err)

	client, err := clickhouse.NewClient(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func countRows(t *testing.T, client *clickhouse.Client, query string) uint64 {
	t.Helper()

	rows, err := client.Query(context.Background(), query)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var n uint64
	require.True(t, rows.Next())
	require.NoError(t, rows.Scan(&n))
	return n
}

func TestIntegration_CloneAndSwap(t *testing.T) {
	ctx := context.Background()
	client := startClickHouse(t)

	require.NoError(t, client.Exec(ctx, "CREATE DATABASE analytics"))
	require.NoError(t, client.Exec(ctx, "CREATE TABLE analytics.events (id UInt64, name String) ENGINE = MergeTree ORDER BY id"))
	require.NoError(t, client.Exec(ctx, "INSERT INTO analytics.events VALUES (1, 'a'), (2, 'b')"))
	require.NoError(t, client.Exec(ctx, "CREATE VIEW analytics.event_names AS SELECT name FROM analytics.events"))

	p := newProject(t, "release-1.xml")
	p.changeLog("release-1.xml", "r1/add_column.sql", "r1/backfill.sql")
	p.change("r1/add_column.sql", "jdoe", "1", "ALTER TABLE events ADD COLUMN source String DEFAULT 'legacy';")
	p.change("r1/backfill.sql", "jdoe", "2", "INSERT INTO events (id, name, source) VALUES (3, 'c', 'new');")

	hist := ledger.New(client, "changedeploy", "history")
	cfg := deploy.Config{
		TargetDatabase:      "analytics",
		Cloning:             true,
		ChangeLogDirectory:  "changelogs",
		MasterChangeLogName: "master.xml",
		RootSQLDirectory:    "sql",
		RetentionStatus:     "previous",
	}

	d := deploy.New(deploy.Params{
		Database: client,
		Ledger:   hist,
		Resolver: p.resolver(),
		Config:   cfg,
		Now:      func() time.Time { return fixedNow },
	})

	report, err := d.Run(ctx, deploy.Options{})
	require.NoError(t, err)
	require.True(t, report.Swapped)
	require.Equal(t, cloneName+"_PREVIOUS", report.RetainedAs)
	require.Equal(t, 2, report.Count(deploy.StateSuccess))

	// The release landed in the target, the old data was carried over.
	require.Equal(t, uint64(3), countRows(t, client, "SELECT count() FROM analytics.events"))
	require.Equal(t, uint64(1), countRows(t, client, "SELECT count() FROM analytics.events WHERE source = 'new'"))
	require.Equal(t, uint64(3), countRows(t, client, "SELECT count() FROM analytics.event_names"))

	// The previous target is kept untouched.
	exists, err := client.DatabaseExists(ctx, cloneName+"_PREVIOUS")
	require.NoError(t, err)
	require.True(t, exists)
	require.Equal(t, uint64(2), countRows(t, client, "SELECT count() FROM `"+cloneName+"_PREVIOUS`.events"))

	records, err := hist.History(ctx, "analytics")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		require.Equal(t, ledger.StatusSuccess, rec.Status)
		require.Equal(t, uint64(1), rec.DeploymentID)
		require.Equal(t, "release-1.xml", rec.ChangeLog)
	}

	// A second release without cloning skips everything already applied.
	cfg.Cloning = false
	again := deploy.New(deploy.Params{Database: client, Ledger: hist, Resolver: p.resolver(), Config: cfg})

	report, err = again.Run(ctx, deploy.Options{})
	require.NoError(t, err)
	require.Equal(t, 2, report.Count(deploy.StateSkipped))
	require.Equal(t, uint64(2), report.DeploymentID)
}

func TestIntegration_FailedChangeRecorded(t *testing.T) {
	ctx := context.Background()
	client := startClickHouse(t)

	require.NoError(t, client.Exec(ctx, "CREATE DATABASE analytics"))

	p := newProject(t, "release-1.xml")
	p.changeLog("release-1.xml", "r1/good.sql", "r1/bad.sql", "r1/never.sql")
	p.change("r1/good.sql", "jdoe", "1", "CREATE TABLE t1 (id UInt64) ENGINE = MergeTree ORDER BY id;")
	p.change("r1/bad.sql", "jdoe", "2", "CREATE TABLE t2 (id UInt64) ENGINE = NoSuchEngine;")
	p.change("r1/never.sql", "jdoe", "3", "CREATE TABLE t3 (id UInt64) ENGINE = MergeTree ORDER BY id;")

	hist := ledger.New(client, "changedeploy", "history")
	d := deploy.New(deploy.Params{
		Database: client,
		Ledger:   hist,
		Resolver: p.resolver(),
		Config: deploy.Config{
			TargetDatabase:      "analytics",
			ChangeLogDirectory:  "changelogs",
			MasterChangeLogName: "master.xml",
			RootSQLDirectory:    "sql",
		},
	})

	report, err := d.Run(ctx, deploy.Options{})
	require.ErrorIs(t, err, deploy.ErrReleaseFailed)
	require.Equal(t, []string{"release-1.xml"}, report.FailedChangeLogs())

	records, err := hist.History(ctx, "analytics")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, ledger.StatusSuccess, records[0].Status)
	require.Equal(t, ledger.StatusFailed, records[1].Status)

	require.Equal(t, uint64(0), countRows(t, client, "SELECT count() FROM system.tables WHERE database = 'analytics' AND name = 't3'"))
}
