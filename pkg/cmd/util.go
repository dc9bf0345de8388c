package cmd

import (
	"context"
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/clickhouse"
	"github.com/pseudomuto/changedeploy/pkg/config"
	"github.com/pseudomuto/changedeploy/pkg/deploy"
	"github.com/pseudomuto/changedeploy/pkg/ledger"
	"github.com/pseudomuto/changedeploy/pkg/manifest"
	"github.com/urfave/cli/v3"
)

// releaseFlags are the configuration overrides shared by deploy and plan.
func releaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "target",
			Aliases: []string{"t"},
			Usage:   "target database (overrides target_database)",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
		&cli.BoolFlag{
			Name:  "cloning",
			Usage: "deploy to a clone and swap it in on success (overrides cloning)",
		},
		&cli.BoolFlag{
			Name:  "halt-on-fail",
			Usage: "stop at the first failed change log (overrides halt_release_on_fail)",
		},
		&cli.StringFlag{
			Name:  "retention-status",
			Usage: "suffix for the displaced target after a swap (overrides retention_status)",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
	}
}

// releaseConfig returns a copy of cfg with the command's overrides applied.
func releaseConfig(cfg *config.Config, cmd *cli.Command) (*config.Config, error) {
	out := *cfg

	if cmd.IsSet("target") {
		out.TargetDatabase = cmd.String("target")
	}
	if cmd.IsSet("cloning") {
		out.Cloning = cmd.Bool("cloning")
	}
	if cmd.IsSet("halt-on-fail") {
		out.HaltReleaseOnFail = cmd.Bool("halt-on-fail")
	}
	if cmd.IsSet("retention-status") {
		out.RetentionStatus = cmd.String("retention-status")
	}

	if err := out.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &out, nil
}

func deployConfig(cfg *config.Config) deploy.Config {
	return deploy.Config{
		TargetDatabase:      cfg.TargetDatabase,
		Cloning:             cfg.Cloning,
		ChangeLogDirectory:  cfg.ChangeLogDirectory,
		MasterChangeLogName: cfg.MasterChangeLogName,
		RootSQLDirectory:    cfg.RootSQLDirectory,
		HaltOnFail:          cfg.HaltReleaseOnFail,
		RetentionStatus:     cfg.RetentionStatus,
	}
}

func projectFS(cfg *config.Config) billy.Filesystem {
	if cfg.Dir == "" {
		return osfs.New(".")
	}

	return osfs.New(cfg.Dir)
}

func connect(ctx context.Context, cfg *config.Config) (*clickhouse.Client, error) {
	client, err := clickhouse.NewClientWithOptions(ctx, cfg.ClickHouse.DSN, cfg.ClientOptions())
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to ClickHouse")
	}

	return client, nil
}

func historyLedger(client *clickhouse.Client, cfg *config.Config) *ledger.Ledger {
	return ledger.New(client, cfg.HistorySchema, cfg.HistoryTable)
}

// runRelease connects, runs one release and writes its report to the root
// command's writer. The report is written even when the release fails.
func runRelease(ctx context.Context, cmd *cli.Command, cfg *config.Config, opts deploy.Options) error {
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	d := deploy.New(deploy.Params{
		Database: client,
		Ledger:   historyLedger(client, cfg),
		Resolver: manifest.NewResolver(projectFS(cfg)),
		Config:   deployConfig(cfg),
	})

	report, runErr := d.Run(ctx, opts)
	if report != nil {
		if err := report.Write(cmd.Root().Writer); err != nil {
			slog.Error("Failed to write report", "err", err)
		}
	}

	if runErr != nil {
		slog.Error("Release did not complete",
			"target", cfg.TargetDatabase,
			"kind", deploy.Classify(runErr).String(),
			"err", runErr,
		)
		return runErr
	}

	return nil
}
