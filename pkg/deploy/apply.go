package deploy

import (
	"context"
	"log/slog"
	"path"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/changeset"
	"github.com/pseudomuto/changedeploy/pkg/clickhouse"
	"github.com/pseudomuto/changedeploy/pkg/ledger"
	"github.com/pseudomuto/changedeploy/pkg/manifest"
)

// applyChangeLog processes one change log, stopping at its first failure. The
// returned error is set only for failures that must abort the whole run.
func (d *Deployer) applyChangeLog(ctx context.Context, state *RunState, changeLog string, opts Options) (*ChangeLogResult, error) {
	result := &ChangeLogResult{ChangeLog: changeLog}
	logger := slog.With("change_log", changeLog, "database", state.DeployDatabase)

	resolved, err := d.resolver.Resolve(path.Join(d.cfg.ChangeLogDirectory, changeLog), d.cfg.RootSQLDirectory)
	if err != nil {
		logger.Error("Failed to resolve change log", "err", err)
		result.fail(err)
		return result, nil
	}

	logger.Info("Processing change log", "files", resolved.Len())
	logger.Debug("Resolved change log", "labels", resolved.Labels())

	for _, entry := range resolved.Entries {
		change := &ChangeResult{File: entry.Label, State: StatePending}
		result.Changes = append(result.Changes, change)

		abortErr := d.applyChange(ctx, state, changeLog, entry, change, opts)
		if change.State == StateFailed {
			result.fail(change.Err)
			return result, abortErr
		}
	}

	return result, nil
}

func (d *Deployer) applyChange(
	ctx context.Context,
	state *RunState,
	changeLog string,
	entry *manifest.Entry,
	change *ChangeResult,
	opts Options,
) error {
	logger := slog.With("change_log", changeLog, "file", entry.Label)

	meta, err := changeset.ExtractFile(entry.Path, entry.Content)
	if err != nil {
		logger.Error("Failed to read changeset header", "err", err)
		change.fail(err)
		return nil
	}

	change.ID = meta.ID
	change.Author = meta.Author
	logger = logger.With("change", meta.Key())

	if !state.Applied.IsDeployable(meta.ID) {
		logger.Info("Change already applied, skipping")
		change.State = StateSkipped
		return nil
	}

	rec := &ledger.Record{
		ID:            meta.ID,
		Author:        meta.Author,
		Filename:      entry.Label,
		DateReleased:  d.now(),
		ChangeLog:     changeLog,
		ReleaseNumber: meta.ReleaseNumber,
		JiraNumber:    meta.JiraNumber,
		Comments:      meta.Comments,
		DeploymentID:  state.DeploymentID,
	}

	if opts.DryRun {
		change.State = StatePlanned
		state.Applied.MarkApplied(rec)
		return nil
	}

	change.State = StateInProgress
	if err := d.ledger.RecordAttempt(ctx, state.DeployDatabase, rec); err != nil {
		logger.Error("Failed to record attempt", "err", err)
		d.markFailed(ctx, state, rec, logger)
		change.fail(d.changeError(changeLog, entry, meta, err))
		return nil
	}

	res, err := d.db.ExecuteBatch(ctx, entry.Content, clickhouse.BatchOptions{
		Database:      state.DeployDatabase,
		StripComments: true,
	})
	if err != nil {
		logger.Error("Change failed", "err", err)
		d.markFailed(ctx, state, rec, logger)
		change.fail(d.changeError(changeLog, entry, meta, err))

		if !expected(err) {
			return errors.Wrapf(change.Err, "unexpected error, aborting run")
		}
		return nil
	}

	if err := d.ledger.UpdateStatus(ctx, state.DeployDatabase, rec, ledger.StatusSuccess); err != nil {
		logger.Error("Failed to record success", "err", err)
		d.markFailed(ctx, state, rec, logger)
		change.fail(d.changeError(changeLog, entry, meta, err))
		return nil
	}

	state.Applied.MarkApplied(rec)
	change.State = StateSuccess
	logger.Info("Change applied", "statements", res.Statements)
	return nil
}

// markFailed records a failed status for rec's attempt, if one was written.
// Failures here are logged; the change is already failing.
func (d *Deployer) markFailed(ctx context.Context, state *RunState, rec *ledger.Record, logger *slog.Logger) {
	if rec.AttemptID == uuid.Nil {
		return
	}

	if err := d.ledger.UpdateStatus(ctx, state.DeployDatabase, rec, ledger.StatusFailed); err != nil {
		logger.Error("Failed to record failed status", "err", err)
	}
}

func (d *Deployer) changeError(changeLog string, entry *manifest.Entry, meta *changeset.Metadata, err error) error {
	return &ChangeError{
		ChangeLog: changeLog,
		File:      entry.Label,
		ID:        meta.ID,
		Author:    meta.Author,
		Err:       err,
	}
}
