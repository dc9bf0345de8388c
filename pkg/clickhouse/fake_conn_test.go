package clickhouse

import (
	"context"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var renameStatement = regexp.MustCompile("^RENAME DATABASE `([^`]+)` TO `([^`]+)`")

// fakeConn is an in-memory driver.Conn. Databases map a name to a label for
// their contents so renames can be followed. Exec calls are recorded and the
// nth call (1-based) fails when failOn[n] is set.
type fakeConn struct {
	driver.Conn

	databases map[string]string
	tables    []tableInfo
	execs     []string
	failOn    map[int]error
}

func newFakeConn(databases map[string]string) *fakeConn {
	return &fakeConn{databases: databases, failOn: make(map[int]error)}
}

func (f *fakeConn) client(opts ClientOptions) *Client {
	return &Client{conn: f, opts: opts, sessions: make(map[string]driver.Conn)}
}

func (f *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	f.execs = append(f.execs, query)
	if err := f.failOn[len(f.execs)]; err != nil {
		return err
	}

	if m := renameStatement.FindStringSubmatch(query); m != nil {
		contents, ok := f.databases[m[1]]
		if !ok {
			return exception(81, "UNKNOWN_DATABASE", "Database "+m[1]+" does not exist")
		}
		delete(f.databases, m[1])
		f.databases[m[2]] = contents
	}

	return nil
}

func (f *fakeConn) QueryRow(_ context.Context, _ string, args ...any) driver.Row {
	var count uint64
	if name, ok := args[0].(string); ok {
		if _, exists := f.databases[name]; exists {
			count = 1
		}
	}

	return &fakeRow{count: count}
}

func (f *fakeConn) Query(context.Context, string, ...any) (driver.Rows, error) {
	return &fakeRows{tables: f.tables, pos: -1}, nil
}

func (f *fakeConn) Close() error { return nil }

type fakeRow struct {
	driver.Row

	count uint64
}

func (r *fakeRow) Scan(dest ...any) error {
	*dest[0].(*uint64) = r.count
	return nil
}

type fakeRows struct {
	driver.Rows

	tables []tableInfo
	pos    int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.tables)
}

func (r *fakeRows) Scan(dest ...any) error {
	t := r.tables[r.pos]
	*dest[0].(*string) = t.Name
	*dest[1].(*string) = t.Engine
	*dest[2].(*string) = t.CreateQuery
	return nil
}

func (r *fakeRows) Close() error { return nil }

func (r *fakeRows) Err() error { return nil }

func exception(code int32, name, message string) error {
	return &clickhouse.Exception{Code: code, Name: name, Message: message}
}

func alreadyExists(database string) error {
	return exception(82, "DATABASE_ALREADY_EXISTS", "Database "+database+" already exists")
}
