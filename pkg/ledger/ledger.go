package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/utils"
)

const (
	// StatusInProgress marks an attempt whose script is running (or whose
	// process died before recording an outcome).
	StatusInProgress Status = "in_progress"

	// StatusSuccess marks an applied change. At most one success row exists per
	// change id.
	StatusSuccess Status = "success"

	// StatusFailed marks a failed attempt. It does not block a retry.
	StatusFailed Status = "failed"

	releasedLayout = "2006-01-02 15:04:05.000"
)

// ErrDuplicateTracking is returned by RecordAttempt when the change already
// has a success row.
var ErrDuplicateTracking = errors.New("change already recorded as success")

type (
	// ClickHouse defines the interface for ClickHouse database operations
	// required by the ledger.
	ClickHouse interface {
		Query(context.Context, string, ...any) (driver.Rows, error)
		Exec(context.Context, string, ...any) error
	}

	// Status is the state of one attempt.
	Status string

	// Location is where the history table for one database lives. ClickHouse
	// has no schema level, so Schema becomes a table name prefix.
	Location struct {
		Database string
		Schema   string
		Table    string
	}

	// Ledger reads and writes history tables through a ClickHouse connection.
	// The same Ledger serves any database; the table name is fixed.
	Ledger struct {
		ch     ClickHouse
		schema string
		table  string
	}

	// Record is one attempt to apply one change.
	Record struct {
		// AttemptID identifies the row written for this attempt.
		AttemptID uuid.UUID

		ID            string
		Author        string
		Filename      string
		DateReleased  time.Time
		ChangeLog     string
		ReleaseNumber string
		JiraNumber    *string
		Comments      *string
		DeploymentID  uint64
		Status        Status
	}

	// Error wraps every failure raised while talking to the history table.
	Error struct {
		Op       string
		Location Location
		Err      error
	}
)

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s on %s: %v", e.Op, e.Location.QualifiedName(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// TableName is the physical table name inside the database.
func (l Location) TableName() string {
	if l.Schema == "" {
		return l.Table
	}

	return l.Schema + "_" + l.Table
}

// QualifiedName is the quoted `database`.`table` reference.
func (l Location) QualifiedName() string {
	return utils.QualifiedName(l.Database, l.TableName())
}

// New returns a Ledger storing history in <schema>_<table> of each database it
// is asked about.
//
// Example:
//
//	l := ledger.New(client, "changedeploy", "history")
//	records, err := l.FetchSuccessful(ctx, "analytics")
func New(ch ClickHouse, schema, table string) *Ledger {
	return &Ledger{ch: ch, schema: schema, table: table}
}

// At returns the history table location for database.
func (l *Ledger) At(database string) Location {
	return Location{Database: database, Schema: l.schema, Table: l.table}
}

func (l *Ledger) fail(op, database string, err error) error {
	return &Error{Op: op, Location: l.At(database), Err: err}
}

// Exists reports whether the history table is present in database. It never
// creates anything, which makes it safe for read-only planning.
func (l *Ledger) Exists(ctx context.Context, database string) (bool, error) {
	exists, err := l.exists(ctx, database)
	if err != nil {
		return false, l.fail("exists", database, err)
	}

	return exists, nil
}

func (l *Ledger) exists(ctx context.Context, database string) (bool, error) {
	n, err := l.count(ctx,
		"SELECT count() FROM system.tables WHERE database = ? AND name = ?",
		database, l.At(database).TableName(),
	)
	return n > 0, err
}

// EnsureTable creates the history table in database when it does not exist.
// Calling it repeatedly is harmless.
func (l *Ledger) EnsureTable(ctx context.Context, database string) error {
	loc := l.At(database)

	exists, err := l.exists(ctx, database)
	if err != nil {
		return l.fail("ensure table", database, err)
	}
	if exists {
		return nil
	}

	if err := l.ch.Exec(ctx, createTableSQL(loc)); err != nil {
		return l.fail("ensure table", database, errors.Wrap(err, "failed to create history table"))
	}

	return nil
}

func createTableSQL(loc Location) string {
	columns := []string{
		"`attempt_id` UUID",
		"`id` String",
		"`author` String",
		"`filename` String",
		"`date_released` DateTime64(3, 'UTC')",
		"`change_log` String",
		"`jira_number` Nullable(String)",
		"`release_number` String",
		"`comments` Nullable(String)",
		"`deployment_id` UInt64",
		"`status` Enum8('in_progress' = 1, 'success' = 2, 'failed' = 3)",
	}

	return utils.NewSQLBuilder().
		Create("TABLE").
		IfNotExists().
		Raw(loc.QualifiedName()).
		Raw("(\n  " + strings.Join(columns, ",\n  ") + "\n)").
		Engine("MergeTree").
		Raw("ORDER BY (date_released, attempt_id)").
		Comment("changedeploy history").
		StringWithoutSemicolon()
}

// releaseOrder sorts rows in insertion order. Attempt ids are v7 UUIDs, whose
// text form increases with creation time; the UUID type itself does not sort
// that way in ClickHouse.
const releaseOrder = " ORDER BY date_released, toString(attempt_id)"

const selectColumns = `
	SELECT
		attempt_id,
		id,
		author,
		filename,
		date_released,
		change_log,
		jira_number,
		release_number,
		comments,
		deployment_id,
		toString(status)
	FROM `

// FetchSuccessful returns every success row recorded in database, creating the
// history table first when needed.
func (l *Ledger) FetchSuccessful(ctx context.Context, database string) ([]*Record, error) {
	if err := l.EnsureTable(ctx, database); err != nil {
		return nil, err
	}

	query := selectColumns + l.At(database).QualifiedName() +
		" WHERE status = ?" + releaseOrder

	records, err := l.load(ctx, query, string(StatusSuccess))
	if err != nil {
		return nil, l.fail("fetch successful", database, err)
	}

	return records, nil
}

// History returns every row in database in release order.
func (l *Ledger) History(ctx context.Context, database string) ([]*Record, error) {
	if err := l.EnsureTable(ctx, database); err != nil {
		return nil, err
	}

	query := selectColumns + l.At(database).QualifiedName() + releaseOrder

	records, err := l.load(ctx, query)
	if err != nil {
		return nil, l.fail("history", database, err)
	}

	return records, nil
}

// NextDeploymentID returns one more than the highest deployment id recorded in
// database (1 for an empty ledger).
func (l *Ledger) NextDeploymentID(ctx context.Context, database string) (uint64, error) {
	current, err := l.count(ctx, "SELECT max(deployment_id) FROM "+l.At(database).QualifiedName())
	if err != nil {
		return 0, l.fail("next deployment id", database, err)
	}

	return current + 1, nil
}

// RecordAttempt appends an in_progress row for rec. A fresh time-ordered
// AttemptID is assigned unless one is already set, and DateReleased defaults to now.
func (l *Ledger) RecordAttempt(ctx context.Context, database string, rec *Record) error {
	loc := l.At(database)

	successes, err := l.count(ctx,
		"SELECT count() FROM "+loc.QualifiedName()+" WHERE id = ? AND status = ?",
		rec.ID, string(StatusSuccess),
	)
	if err != nil {
		return l.fail("record attempt", database, err)
	}
	if successes > 0 {
		return l.fail("record attempt", database, errors.Wrapf(ErrDuplicateTracking, "id %s", rec.ID))
	}

	if rec.AttemptID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return l.fail("record attempt", database, err)
		}
		rec.AttemptID = id
	}
	if rec.DateReleased.IsZero() {
		rec.DateReleased = time.Now()
	}
	rec.Status = StatusInProgress

	stmt := "INSERT INTO " + loc.QualifiedName() + ` (
		attempt_id, id, author, filename, date_released, change_log,
		jira_number, release_number, comments, deployment_id, status
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err = l.ch.Exec(ctx, stmt,
		rec.AttemptID.String(),
		rec.ID,
		rec.Author,
		rec.Filename,
		rec.DateReleased.UTC().Format(releasedLayout),
		rec.ChangeLog,
		nullable(rec.JiraNumber),
		rec.ReleaseNumber,
		nullable(rec.Comments),
		rec.DeploymentID,
		string(rec.Status),
	)
	if err != nil {
		return l.fail("record attempt", database, err)
	}

	return nil
}

// UpdateStatus sets the status of rec's attempt row. It is the only mutation
// the ledger performs after an insert.
func (l *Ledger) UpdateStatus(ctx context.Context, database string, rec *Record, status Status) error {
	if rec.AttemptID == uuid.Nil {
		return l.fail("update status", database, errors.Errorf("record %s has no attempt id", rec.ID))
	}

	stmt := "ALTER TABLE " + l.At(database).QualifiedName() +
		" UPDATE status = ? WHERE attempt_id = ? SETTINGS mutations_sync = 2"

	if err := l.ch.Exec(ctx, stmt, string(status), rec.AttemptID.String()); err != nil {
		return l.fail("update status", database, err)
	}

	rec.Status = status
	return nil
}

func (l *Ledger) count(ctx context.Context, query string, args ...any) (uint64, error) {
	rows, err := l.ch.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n uint64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, errors.Wrap(err, "failed to scan count")
		}
	}

	return n, rows.Err()
}

func (l *Ledger) load(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := l.ch.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var status string

		err := rows.Scan(
			&rec.AttemptID,
			&rec.ID,
			&rec.Author,
			&rec.Filename,
			&rec.DateReleased,
			&rec.ChangeLog,
			&rec.JiraNumber,
			&rec.ReleaseNumber,
			&rec.Comments,
			&rec.DeploymentID,
			&status,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan history row")
		}

		rec.Status = Status(status)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate history rows")
	}

	return records, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}

	return *s
}
