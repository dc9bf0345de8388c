package deploy_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	ch "github.com/pseudomuto/changedeploy/pkg/clickhouse"
	"github.com/pseudomuto/changedeploy/pkg/deploy"
	"github.com/pseudomuto/changedeploy/pkg/ledger"
	"github.com/pseudomuto/changedeploy/pkg/manifest"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

type execution struct {
	Database string
	Content  string
}

// fakeDatabase records every call. A script containing "FAIL" is rejected by
// the server; one containing "PANIC" fails with an unclassified error.
type fakeDatabase struct {
	executions []execution
	clones     [][2]string
	swaps      [][2]string
	renames    [][2]string
	cloneErr   error
	swapErr    error
	renameErr  error
}

func (f *fakeDatabase) ExecuteBatch(_ context.Context, body string, opts ch.BatchOptions) (*ch.BatchResult, error) {
	f.executions = append(f.executions, execution{Database: opts.Database, Content: body})

	switch {
	case strings.Contains(body, "FAIL"):
		return &ch.BatchResult{Database: opts.Database}, &ch.StatementError{
			Statement: body,
			Code:      62,
			Name:      "SYNTAX_ERROR",
			Err:       &clickhouse.Exception{Code: 62, Name: "SYNTAX_ERROR", Message: "Syntax error"},
		}
	case strings.Contains(body, "PANIC"):
		return &ch.BatchResult{Database: opts.Database}, errors.New("driver exploded")
	}

	return &ch.BatchResult{Database: opts.Database, Statements: 1}, nil
}

func (f *fakeDatabase) CloneDatabase(_ context.Context, source, clone string) error {
	f.clones = append(f.clones, [2]string{source, clone})
	return f.cloneErr
}

func (f *fakeDatabase) SwapDatabases(_ context.Context, a, b string) error {
	f.swaps = append(f.swaps, [2]string{a, b})
	return f.swapErr
}

func (f *fakeDatabase) RenameDatabase(_ context.Context, name, newName string) error {
	f.renames = append(f.renames, [2]string{name, newName})
	return f.renameErr
}

// scripts returns the last line of each executed script, in order.
func (f *fakeDatabase) scripts() []string {
	out := make([]string, len(f.executions))
	for i, e := range f.executions {
		lines := strings.Split(strings.TrimSpace(e.Content), "\n")
		out[i] = lines[len(lines)-1]
	}
	return out
}

// fakeLedger keeps rows per database in insertion order.
type fakeLedger struct {
	rows       map[string][]*ledger.Record
	recordErr  error
	updateErr  error
	tables     map[string]bool
	writeCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string][]*ledger.Record), tables: make(map[string]bool)}
}

func (f *fakeLedger) Exists(_ context.Context, database string) (bool, error) {
	return f.tables[database], nil
}

func (f *fakeLedger) FetchSuccessful(_ context.Context, database string) ([]*ledger.Record, error) {
	f.tables[database] = true

	var out []*ledger.Record
	for _, r := range f.rows[database] {
		if r.Status == ledger.StatusSuccess {
			copied := *r
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeLedger) NextDeploymentID(_ context.Context, database string) (uint64, error) {
	var highest uint64
	for _, r := range f.rows[database] {
		if r.DeploymentID > highest {
			highest = r.DeploymentID
		}
	}
	return highest + 1, nil
}

func (f *fakeLedger) RecordAttempt(_ context.Context, database string, rec *ledger.Record) error {
	f.writeCalls++
	if f.recordErr != nil {
		return &ledger.Error{Op: "record attempt", Location: ledger.Location{Database: database}, Err: f.recordErr}
	}

	for _, r := range f.rows[database] {
		if r.ID == rec.ID && r.Status == ledger.StatusSuccess {
			return &ledger.Error{Op: "record attempt", Err: ledger.ErrDuplicateTracking}
		}
	}

	rec.AttemptID = uuid.Must(uuid.NewV7())
	rec.Status = ledger.StatusInProgress
	copied := *rec
	f.rows[database] = append(f.rows[database], &copied)
	return nil
}

func (f *fakeLedger) UpdateStatus(_ context.Context, database string, rec *ledger.Record, status ledger.Status) error {
	f.writeCalls++
	if f.updateErr != nil && status == ledger.StatusSuccess {
		return &ledger.Error{Op: "update status", Location: ledger.Location{Database: database}, Err: f.updateErr}
	}

	for _, r := range f.rows[database] {
		if r.AttemptID == rec.AttemptID {
			r.Status = status
		}
	}
	rec.Status = status
	return nil
}

// history returns "file=status" for every row in database.
func (f *fakeLedger) history(database string) []string {
	out := make([]string, len(f.rows[database]))
	for i, r := range f.rows[database] {
		out[i] = r.Filename + "=" + string(r.Status)
	}
	return out
}

// project is an in-memory release layout.
type project struct {
	fs billy.Filesystem
	t  *testing.T
}

func newProject(t *testing.T, changeLogs ...string) *project {
	t.Helper()

	p := &project{fs: memfs.New(), t: t}

	var b strings.Builder
	b.WriteString("<databaseChangeLog>\n")
	for _, cl := range changeLogs {
		fmt.Fprintf(&b, "  <include file=%q/>\n", cl)
	}
	b.WriteString("</databaseChangeLog>\n")
	p.write("changelogs/master.xml", b.String())

	return p
}

func (p *project) write(name, content string) {
	p.t.Helper()
	require.NoError(p.t, util.WriteFile(p.fs, name, []byte(content), 0o644))
}

// changeLog writes changelogs/<name> including files in order.
func (p *project) changeLog(name string, files ...string) {
	var b strings.Builder
	b.WriteString("<databaseChangeLog>\n")
	for _, f := range files {
		fmt.Fprintf(&b, "  <include file=%q/>\n", f)
	}
	b.WriteString("</databaseChangeLog>\n")
	p.write("changelogs/"+name, b.String())
}

// change writes sql/<file> with a changeset header and body.
func (p *project) change(file, author, id, body string) {
	p.write("sql/"+file, fmt.Sprintf("--changeset %s:%s context:r1\n--comment: %s\n%s\n", author, id, id, body))
}

func (p *project) resolver() *manifest.Resolver {
	return manifest.NewResolver(p.fs)
}

type harness struct {
	db     *fakeDatabase
	ledger *fakeLedger
}

func newHarness() *harness {
	return &harness{db: &fakeDatabase{}, ledger: newFakeLedger()}
}

func (h *harness) deployer(p *project, cfg deploy.Config) *deploy.Deployer {
	if cfg.TargetDatabase == "" {
		cfg.TargetDatabase = "analytics"
	}
	cfg.ChangeLogDirectory = "changelogs"
	cfg.MasterChangeLogName = "master.xml"
	cfg.RootSQLDirectory = "sql"

	return deploy.New(deploy.Params{
		Database: h.db,
		Ledger:   h.ledger,
		Resolver: p.resolver(),
		Config:   cfg,
		Now:      func() time.Time { return fixedNow },
	})
}
