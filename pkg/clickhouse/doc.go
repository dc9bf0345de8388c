// Package clickhouse is the SQL executor used by the deployment engine.
//
// It wraps clickhouse-go with three concerns:
//
// Sessions: a Client keeps one admin connection for ledger queries and
// database level DDL, and opens one session per deploy database on first use
// so change scripts can use unqualified names.
//
// Error classification: every driver error is mapped to either a
// StatementError (the server rejected a statement) or a ConnectivityError (the
// connection failed). Anything else is returned unchanged and is treated as an
// unexpected failure by callers.
//
// Database primitives: CloneDatabase, SwapDatabases and RenameDatabase
// implement the clone and swap release on top of RENAME DATABASE, which is the
// only rename primitive ClickHouse offers for databases.
//
// Example usage:
//
//	client, err := clickhouse.NewClientWithOptions(ctx, "localhost:9000", clickhouse.ClientOptions{
//		ReadTimeout: 10 * time.Minute,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	res, err := client.ExecuteBatch(ctx, content, clickhouse.BatchOptions{
//		Database:      "analytics",
//		StripComments: true,
//	})
//	if clickhouse.IsStatement(err) {
//		// the change failed, the session is still usable
//	}
package clickhouse
