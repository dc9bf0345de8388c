package cmd

import (
	"context"

	"github.com/pseudomuto/changedeploy/pkg/config"
	"github.com/pseudomuto/changedeploy/pkg/deploy"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type releaseParams struct {
	fx.In

	Config *config.Config
}

// deployCmd returns the deploy command, which runs a release against the
// configured target database.
//
// Example usage:
//
//	# Deploy using changedeploy.yaml
//	changedeploy deploy
//
//	# Deploy to another database through a clone, stopping at the first failure
//	changedeploy deploy --target analytics_staging --cloning --halt-on-fail
func deployCmd(p releaseParams) *cli.Command {
	flags := append(releaseFlags(), &cli.BoolFlag{
		Name:  "dry-run",
		Usage: "report what would be deployed without changing anything",
	})

	return &cli.Command{
		Name:  "deploy",
		Usage: "Deploy pending changes to the target database",
		Description: `Apply every change in the master change log that has not been recorded as
successful in the target's history table.

Change logs run in order. A failed change stops its change log; later change
logs still run unless halt_release_on_fail is set. With cloning enabled the
release is applied to <target>_CLONE_<timestamp>, which is swapped into the
target only when every change log succeeded. The previous target is kept as
<clone>_<RETENTION_STATUS>.`,
		Before: requireConfig(p.Config),
		Flags:  flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := releaseConfig(p.Config, cmd)
			if err != nil {
				return err
			}

			return runRelease(ctx, cmd, cfg, deploy.Options{DryRun: cmd.Bool("dry-run")})
		},
	}
}

// plan returns the plan command: a dry run that never clones or writes.
//
// Example usage:
//
//	changedeploy plan --target analytics
func plan(p releaseParams) *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show the changes a deploy would apply",
		Description: `Resolve the master change log and compare it to the target's history table
without cloning, executing or recording anything. Changes already applied are
reported as skipped, the rest as planned.`,
		Before: requireConfig(p.Config),
		Flags:  releaseFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := releaseConfig(p.Config, cmd)
			if err != nil {
				return err
			}

			return runRelease(ctx, cmd, cfg, deploy.Options{DryRun: true})
		},
	}
}
