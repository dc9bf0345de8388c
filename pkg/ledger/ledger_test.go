package ledger_test

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClickHouse struct {
	queryFunc func(context.Context, string, ...any) (driver.Rows, error)
	execFunc  func(context.Context, string, ...any) error
	queries   []string
	execs     []string
	execArgs  [][]any
}

func (m *mockClickHouse) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	m.queries = append(m.queries, query)
	if m.queryFunc != nil {
		return m.queryFunc(ctx, query, args...)
	}
	return &mockRows{}, nil
}

func (m *mockClickHouse) Exec(ctx context.Context, query string, args ...any) error {
	m.execs = append(m.execs, query)
	m.execArgs = append(m.execArgs, args)
	if m.execFunc != nil {
		return m.execFunc(ctx, query, args...)
	}
	return nil
}

// mockRows yields data one row at a time, assigning each value to the matching
// Scan destination.
type mockRows struct {
	data [][]any
	pos  int
}

func countRows(n uint64) *mockRows {
	return &mockRows{data: [][]any{{n}}}
}

func (m *mockRows) Next() bool {
	if m.pos < len(m.data) {
		m.pos++
		return true
	}
	return false
}

func (m *mockRows) Scan(dest ...any) error {
	row := m.data[m.pos-1]
	if len(row) != len(dest) {
		return errors.Errorf("scan: expected %d destinations, got %d", len(row), len(dest))
	}

	for i, v := range row {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}

func (m *mockRows) Close() error                     { return nil }
func (m *mockRows) Err() error                       { return nil }
func (m *mockRows) ColumnTypes() []driver.ColumnType { return nil }
func (m *mockRows) Columns() []string                { return nil }
func (m *mockRows) ScanStruct(dest any) error        { return nil }
func (m *mockRows) Totals(dest ...any) error         { return nil }

func ptr(s string) *string { return &s }

func TestLocation(t *testing.T) {
	l := ledger.New(&mockClickHouse{}, "changedeploy", "history")

	loc := l.At("analytics")
	require.Equal(t, "changedeploy_history", loc.TableName())
	require.Equal(t, "`analytics`.`changedeploy_history`", loc.QualifiedName())

	bare := ledger.Location{Database: "analytics", Table: "history"}
	require.Equal(t, "`analytics`.`history`", bare.QualifiedName())
}

func TestLedger_EnsureTable(t *testing.T) {
	tests := []struct {
		name        string
		existing    uint64
		queryErr    error
		execErr     error
		wantCreate  bool
		expectError bool
	}{
		{name: "creates missing table", existing: 0, wantCreate: true},
		{name: "leaves existing table", existing: 1},
		{name: "lookup failure", queryErr: errors.New("connection failed"), expectError: true},
		{name: "create failure", existing: 0, execErr: errors.New("no permission"), wantCreate: true, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockClickHouse{
				queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
					if tt.queryErr != nil {
						return nil, tt.queryErr
					}
					require.Equal(t, []any{"analytics", "changedeploy_history"}, args)
					return countRows(tt.existing), nil
				},
				execFunc: func(ctx context.Context, query string, args ...any) error {
					return tt.execErr
				},
			}

			err := ledger.New(mock, "changedeploy", "history").EnsureTable(context.Background(), "analytics")
			if tt.expectError {
				var le *ledger.Error
				require.True(t, errors.As(err, &le))
				require.Equal(t, "ensure table", le.Op)
			} else {
				require.NoError(t, err)
			}

			if !tt.wantCreate {
				require.Empty(t, mock.execs)
				return
			}

			require.Len(t, mock.execs, 1)
			ddl := mock.execs[0]
			require.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS `analytics`.`changedeploy_history`")
			require.Contains(t, ddl, "`status` Enum8('in_progress' = 1, 'success' = 2, 'failed' = 3)")
			require.Contains(t, ddl, "ENGINE = MergeTree ORDER BY (date_released, attempt_id)")
		})
	}
}

func TestLedger_FetchSuccessful(t *testing.T) {
	attempt := uuid.New()
	released := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	mock := &mockClickHouse{
		queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
			if strings.Contains(query, "system.tables") {
				return countRows(1), nil
			}

			require.Contains(t, query, "FROM `analytics`.`changedeploy_history` WHERE status = ?")
			require.Equal(t, []any{"success"}, args)
			return &mockRows{data: [][]any{{
				attempt, "1", "jdoe", "r1/a.sql", released, "release-1.xml",
				ptr("JIRA-1"), "r1", nil, uint64(3), "success",
			}}}, nil
		},
	}

	records, err := ledger.New(mock, "changedeploy", "history").FetchSuccessful(context.Background(), "analytics")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, attempt, rec.AttemptID)
	assert.Equal(t, "1", rec.ID)
	assert.Equal(t, "jdoe", rec.Author)
	assert.Equal(t, "r1/a.sql", rec.Filename)
	assert.Equal(t, released, rec.DateReleased)
	assert.Equal(t, "release-1.xml", rec.ChangeLog)
	assert.Equal(t, "JIRA-1", *rec.JiraNumber)
	assert.Nil(t, rec.Comments)
	assert.Equal(t, uint64(3), rec.DeploymentID)
	assert.Equal(t, ledger.StatusSuccess, rec.Status)
}

func TestLedger_FetchSuccessful_QueryError(t *testing.T) {
	mock := &mockClickHouse{
		queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
			if strings.Contains(query, "system.tables") {
				return countRows(1), nil
			}
			return nil, errors.New("boom")
		},
	}

	_, err := ledger.New(mock, "changedeploy", "history").FetchSuccessful(context.Background(), "analytics")

	var le *ledger.Error
	require.True(t, errors.As(err, &le))
	require.Equal(t, "fetch successful", le.Op)
	require.Equal(t, "analytics", le.Location.Database)
}

func TestLedger_NextDeploymentID(t *testing.T) {
	for _, current := range []uint64{0, 7} {
		mock := &mockClickHouse{
			queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
				require.Contains(t, query, "max(deployment_id)")
				return countRows(current), nil
			},
		}

		id, err := ledger.New(mock, "changedeploy", "history").NextDeploymentID(context.Background(), "analytics")
		require.NoError(t, err)
		require.Equal(t, current+1, id)
	}
}

func TestLedger_RecordAttempt(t *testing.T) {
	mock := &mockClickHouse{
		queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
			require.Equal(t, []any{"7", "success"}, args)
			return countRows(0), nil
		},
	}

	rec := &ledger.Record{
		ID:            "7",
		Author:        "jdoe",
		Filename:      "r1/a.sql",
		DateReleased:  time.Date(2025, 1, 2, 15, 4, 5, 123_000_000, time.UTC),
		ChangeLog:     "release-1.xml",
		ReleaseNumber: "r1",
		Comments:      ptr("adds events"),
		DeploymentID:  4,
	}

	err := ledger.New(mock, "changedeploy", "history").RecordAttempt(context.Background(), "analytics", rec)
	require.NoError(t, err)

	require.NotEqual(t, uuid.Nil, rec.AttemptID)
	require.Equal(t, uuid.Version(7), rec.AttemptID.Version())
	require.Equal(t, ledger.StatusInProgress, rec.Status)

	require.Len(t, mock.execs, 1)
	require.Contains(t, mock.execs[0], "INSERT INTO `analytics`.`changedeploy_history`")
	require.Equal(t, []any{
		rec.AttemptID.String(), "7", "jdoe", "r1/a.sql", "2025-01-02 15:04:05.123",
		"release-1.xml", nil, "r1", "adds events", uint64(4), "in_progress",
	}, mock.execArgs[0])
}

func TestLedger_RecordAttempt_OrderedAttemptIDs(t *testing.T) {
	mock := &mockClickHouse{
		queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
			return countRows(0), nil
		},
	}

	l := ledger.New(mock, "changedeploy", "history")
	released := time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

	var ids []string
	for _, id := range []string{"1", "2", "3"} {
		rec := &ledger.Record{ID: id, DateReleased: released}
		require.NoError(t, l.RecordAttempt(context.Background(), "analytics", rec))
		ids = append(ids, rec.AttemptID.String())
	}

	require.True(t, ids[0] < ids[1], "%s should sort before %s", ids[0], ids[1])
	require.True(t, ids[1] < ids[2], "%s should sort before %s", ids[1], ids[2])
}

func TestLedger_RecordAttempt_Duplicate(t *testing.T) {
	mock := &mockClickHouse{
		queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
			return countRows(1), nil
		},
	}

	err := ledger.New(mock, "changedeploy", "history").
		RecordAttempt(context.Background(), "analytics", &ledger.Record{ID: "7"})

	require.ErrorIs(t, err, ledger.ErrDuplicateTracking)
	require.Empty(t, mock.execs)
}

func TestLedger_UpdateStatus(t *testing.T) {
	mock := &mockClickHouse{}
	rec := &ledger.Record{ID: "7", AttemptID: uuid.New(), Status: ledger.StatusInProgress}

	l := ledger.New(mock, "changedeploy", "history")
	require.NoError(t, l.UpdateStatus(context.Background(), "analytics", rec, ledger.StatusFailed))

	require.Equal(t, ledger.StatusFailed, rec.Status)
	require.Len(t, mock.execs, 1)
	require.Equal(t,
		"ALTER TABLE `analytics`.`changedeploy_history` UPDATE status = ? WHERE attempt_id = ? SETTINGS mutations_sync = 2",
		mock.execs[0],
	)
	require.Equal(t, []any{"failed", rec.AttemptID.String()}, mock.execArgs[0])
}

func TestLedger_UpdateStatus_Errors(t *testing.T) {
	l := ledger.New(&mockClickHouse{execFunc: func(context.Context, string, ...any) error {
		return errors.New("mutation failed")
	}}, "changedeploy", "history")

	err := l.UpdateStatus(context.Background(), "analytics", &ledger.Record{ID: "7"}, ledger.StatusSuccess)
	require.ErrorContains(t, err, "has no attempt id")

	rec := &ledger.Record{ID: "7", AttemptID: uuid.New(), Status: ledger.StatusInProgress}
	err = l.UpdateStatus(context.Background(), "analytics", rec, ledger.StatusSuccess)
	require.ErrorContains(t, err, "mutation failed")
	require.Equal(t, ledger.StatusInProgress, rec.Status)
}

func TestLedger_History(t *testing.T) {
	rows := [][]any{
		{uuid.New(), "1", "a", "f1.sql", time.Unix(1, 0).UTC(), "l1", nil, "r1", nil, uint64(1), "failed"},
		{uuid.New(), "1", "a", "f1.sql", time.Unix(2, 0).UTC(), "l1", nil, "r1", nil, uint64(2), "success"},
	}

	mock := &mockClickHouse{
		queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
			if strings.Contains(query, "system.tables") {
				return countRows(1), nil
			}
			require.Empty(t, args)
			require.True(t, strings.HasSuffix(query, " ORDER BY date_released, toString(attempt_id)"))
			return &mockRows{data: rows}, nil
		},
	}

	records, err := ledger.New(mock, "changedeploy", "history").History(context.Background(), "analytics")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, ledger.StatusFailed, records[0].Status)
	require.Equal(t, ledger.StatusSuccess, records[1].Status)
}

func TestLedger_Exists(t *testing.T) {
	mock := &mockClickHouse{
		queryFunc: func(ctx context.Context, query string, args ...any) (driver.Rows, error) {
			return countRows(0), nil
		},
	}

	exists, err := ledger.New(mock, "changedeploy", "history").Exists(context.Background(), "analytics")
	require.NoError(t, err)
	require.False(t, exists)
	require.Empty(t, mock.execs)
}
