package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/config"
	"github.com/pseudomuto/changedeploy/pkg/ledger"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type (
	statusParams struct {
		fx.In

		Config *config.Config
	}

	historyFilter struct {
		Status       ledger.Status
		DeploymentID uint64
	}
)

// status returns the status command, which prints the history table of a
// database.
//
// Example usage:
//
//	# Every attempt recorded in the target
//	changedeploy status
//
//	# Failed attempts of deployment 12
//	changedeploy status --status failed --deployment 12
func status(p statusParams) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the deployment history of a database",
		Description: `Print the rows of the history table in release order. Nothing is created
when the database has no history table yet.`,
		Before: requireConfig(p.Config),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "database to inspect (defaults to target_database)",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "only show attempts with this status (in_progress, success, failed)",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.Uint64Flag{
				Name:  "deployment",
				Usage: "only show attempts of this deployment id",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			database := p.Config.TargetDatabase
			if cmd.IsSet("target") {
				database = cmd.String("target")
			}
			if database == "" {
				return errors.New("no database given: set target_database or --target")
			}

			filter := historyFilter{
				Status:       ledger.Status(cmd.String("status")),
				DeploymentID: cmd.Uint64("deployment"),
			}
			if err := filter.validate(); err != nil {
				return err
			}

			return runStatus(ctx, cmd.Root().Writer, p.Config, database, filter)
		},
	}
}

func (f historyFilter) validate() error {
	switch f.Status {
	case "", ledger.StatusInProgress, ledger.StatusSuccess, ledger.StatusFailed:
		return nil
	}

	return errors.Errorf("unknown status %q", f.Status)
}

func runStatus(ctx context.Context, w io.Writer, cfg *config.Config, database string, filter historyFilter) error {
	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	hist := historyLedger(client, cfg)
	exists, err := hist.Exists(ctx, database)
	if err != nil {
		return err
	}
	if !exists {
		_, err := fmt.Fprintf(w, "No deployment history in %s\n", database)
		return err
	}

	records, err := hist.History(ctx, database)
	if err != nil {
		return err
	}

	return writeHistory(w, hist.At(database), records, filter)
}

func writeHistory(w io.Writer, loc ledger.Location, records []*ledger.Record, filter historyFilter) error {
	fmt.Fprintf(w, "History of %s (%s)\n\n", loc.Database, loc.QualifiedName())

	counts := make(map[ledger.Status]int)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPLOYMENT\tSTATUS\tRELEASED\tCHANGE LOG\tCHANGE\tFILE")

	shown := 0
	for _, rec := range records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.DeploymentID != 0 && rec.DeploymentID != filter.DeploymentID {
			continue
		}

		shown++
		counts[rec.Status]++
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s:%s\t%s\n",
			rec.DeploymentID,
			rec.Status,
			rec.DateReleased.UTC().Format("2006-01-02 15:04:05"),
			rec.ChangeLog,
			rec.Author,
			rec.ID,
			rec.Filename,
		)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%d attempts: %d success, %d failed, %d in progress\n",
		shown,
		counts[ledger.StatusSuccess],
		counts[ledger.StatusFailed],
		counts[ledger.StatusInProgress],
	)
	return err
}
