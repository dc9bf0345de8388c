package deploy

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/clickhouse"
	"github.com/pseudomuto/changedeploy/pkg/consts"
	"github.com/pseudomuto/changedeploy/pkg/ledger"
	"github.com/pseudomuto/changedeploy/pkg/manifest"
)

const cloneTimestampLayout = "20060102150405"

type (
	// Database is the SQL executor and database primitive provider.
	Database interface {
		ExecuteBatch(context.Context, string, clickhouse.BatchOptions) (*clickhouse.BatchResult, error)
		CloneDatabase(ctx context.Context, source, clone string) error
		SwapDatabases(ctx context.Context, a, b string) error
		RenameDatabase(ctx context.Context, name, newName string) error
	}

	// Ledger is the history store consulted and written during a run.
	Ledger interface {
		Exists(ctx context.Context, database string) (bool, error)
		FetchSuccessful(ctx context.Context, database string) ([]*ledger.Record, error)
		NextDeploymentID(ctx context.Context, database string) (uint64, error)
		RecordAttempt(ctx context.Context, database string, rec *ledger.Record) error
		UpdateStatus(ctx context.Context, database string, rec *ledger.Record, status ledger.Status) error
	}

	// Resolver expands manifests into change logs and SQL files.
	Resolver interface {
		ChangeLogs(masterPath string) ([]string, error)
		Resolve(manifestPath, sourceDir string) (*manifest.Resolved, error)
	}

	// Config is the release configuration for a Deployer.
	Config struct {
		TargetDatabase      string
		Cloning             bool
		ChangeLogDirectory  string
		MasterChangeLogName string
		RootSQLDirectory    string
		HaltOnFail          bool

		// RetentionStatus is appended (upper cased) to the displaced target
		// after a swap. Defaults to "previous".
		RetentionStatus string
	}

	// Params are the collaborators of a Deployer.
	Params struct {
		Database Database
		Ledger   Ledger
		Resolver Resolver
		Config   Config

		// Now is the clock used for clone names and release timestamps.
		// Defaults to time.Now.
		Now func() time.Time
	}

	// Options are per-run switches.
	Options struct {
		// DryRun reports what would be deployed without cloning, executing or
		// writing to the ledger.
		DryRun bool
	}

	// Deployer runs releases. It holds no state between runs.
	Deployer struct {
		db       Database
		ledger   Ledger
		resolver Resolver
		cfg      Config
		now      func() time.Time
	}

	// RunState is the state of one run. It is created by Run and never shared.
	RunState struct {
		TargetDatabase string
		DeployDatabase string
		DeploymentID   uint64
		HaltOnFail     bool

		// Failed is set once any change log fails and stays set.
		Failed bool

		// Outcomes holds one entry per processed change log.
		Outcomes []Outcome

		// Applied is the skip-set: changes that succeeded before or during
		// this run.
		Applied *ledger.RecordSet
	}
)

// New returns a Deployer for the given collaborators.
//
// Example:
//
//	d := deploy.New(deploy.Params{
//		Database: client,
//		Ledger:   ledger.New(client, "changedeploy", "history"),
//		Resolver: manifest.NewResolver(osfs.New(".")),
//		Config: deploy.Config{
//			TargetDatabase:      "analytics",
//			Cloning:             true,
//			ChangeLogDirectory:  "changelogs",
//			MasterChangeLogName: "master.xml",
//			RootSQLDirectory:    "sql",
//		},
//	})
//
//	report, err := d.Run(ctx, deploy.Options{})
func New(p Params) *Deployer {
	cfg := p.Config
	if cfg.RetentionStatus == "" {
		cfg.RetentionStatus = consts.DefaultRetentionStatus
	}

	now := p.Now
	if now == nil {
		now = time.Now
	}

	return &Deployer{
		db:       p.Database,
		ledger:   p.Ledger,
		resolver: p.Resolver,
		cfg:      cfg,
		now:      now,
	}
}

// Run performs one release.
//
// The returned report is never nil and describes everything that happened up
// to the point the run stopped. The error is ErrReleaseHalted (halt on fail
// triggered), ErrReleaseFailed (a change log failed, no swap), or the fatal
// error that stopped the run.
func (d *Deployer) Run(ctx context.Context, opts Options) (*Report, error) {
	state := &RunState{
		TargetDatabase: d.cfg.TargetDatabase,
		DeployDatabase: d.cfg.TargetDatabase,
		HaltOnFail:     d.cfg.HaltOnFail,
	}

	report := &Report{
		TargetDatabase: state.TargetDatabase,
		DeployDatabase: state.DeployDatabase,
		DryRun:         opts.DryRun,
	}

	if d.cfg.Cloning && !opts.DryRun {
		clone := CloneName(state.TargetDatabase, d.now())
		slog.Info("Cloning target database", "target", state.TargetDatabase, "clone", clone)

		if err := d.db.CloneDatabase(ctx, state.TargetDatabase, clone); err != nil {
			return report, &ReleaseError{Op: "clone", Database: state.TargetDatabase, Err: err}
		}

		state.DeployDatabase = clone
		report.DeployDatabase = clone
		report.Cloned = true
	}

	if err := d.loadLedger(ctx, state, opts); err != nil {
		return report, err
	}
	report.DeploymentID = state.DeploymentID

	master := path.Join(d.cfg.ChangeLogDirectory, d.cfg.MasterChangeLogName)
	changeLogs, err := d.resolver.ChangeLogs(master)
	if err != nil {
		return report, errors.Wrap(err, "failed to resolve master change log")
	}

	for _, changeLog := range changeLogs {
		result, abortErr := d.applyChangeLog(ctx, state, changeLog, opts)
		report.ChangeLogs = append(report.ChangeLogs, result)
		state.Outcomes = append(state.Outcomes, result.Outcome)

		if result.Outcome == OutcomeFailed {
			state.Failed = true
		}

		if abortErr != nil {
			return report, abortErr
		}

		if state.HaltOnFail && state.Failed {
			report.HaltedAt = changeLog
			slog.Error("Release halted", "change_log", changeLog)
			return report, errors.Wrapf(ErrReleaseHalted, "stopped at %s", changeLog)
		}
	}

	if state.Failed {
		failed := report.FailedChangeLogs()
		slog.Error("Release failed", "failed_change_logs", failed, "deploy_database", state.DeployDatabase)
		return report, errors.Wrapf(ErrReleaseFailed, "failed change logs: %s", strings.Join(failed, ", "))
	}

	if report.Cloned {
		if err := d.release(ctx, state, report); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (d *Deployer) loadLedger(ctx context.Context, state *RunState, opts Options) error {
	if opts.DryRun {
		exists, err := d.ledger.Exists(ctx, state.DeployDatabase)
		if err != nil {
			return err
		}
		if !exists {
			state.Applied = ledger.NewRecordSet(nil)
			state.DeploymentID = 1
			return nil
		}
	}

	applied, err := d.ledger.FetchSuccessful(ctx, state.DeployDatabase)
	if err != nil {
		return err
	}
	state.Applied = ledger.NewRecordSet(applied)

	id, err := d.ledger.NextDeploymentID(ctx, state.DeployDatabase)
	if err != nil {
		return err
	}
	state.DeploymentID = id

	slog.Info("Loaded deployment history",
		"database", state.DeployDatabase,
		"applied", state.Applied.Len(),
		"deployment_id", id,
	)
	return nil
}

// release swaps the clone in and marks the displaced target.
func (d *Deployer) release(ctx context.Context, state *RunState, report *Report) error {
	clone := state.DeployDatabase
	target := state.TargetDatabase

	if err := d.db.SwapDatabases(ctx, clone, target); err != nil {
		return &ReleaseError{Op: "swap", Database: clone, Err: err}
	}
	report.Swapped = true
	slog.Info("Swapped clone into target", "clone", clone, "target", target)

	// After the swap the clone name holds the previous target.
	retained := clone + "_" + strings.ToUpper(d.cfg.RetentionStatus)
	if err := d.db.RenameDatabase(ctx, clone, retained); err != nil {
		return &ReleaseError{Op: "mark", Database: clone, Err: err}
	}
	report.RetainedAs = retained
	slog.Info("Marked previous target", "name", retained)

	return nil
}

// CloneName returns the clone name for target at t.
func CloneName(target string, t time.Time) string {
	return target + "_CLONE_" + t.UTC().Format(cloneTimestampLayout)
}
