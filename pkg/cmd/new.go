package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/config"
	"github.com/pseudomuto/changedeploy/pkg/project"
	"github.com/urfave/cli/v3"
	"go.uber.org/fx"
)

type newParams struct {
	fx.In

	Config *config.Config
}

// newChange returns the new command, which adds a SQL file with a changeset
// header to a change log.
//
// Example usage:
//
//	changedeploy new --change-log release-7.xml --author alice --id 42 --release r7 r7/add_users.sql
//
//	# Body from stdin
//	echo "ALTER TABLE users ADD COLUMN age UInt8;" | changedeploy new -l release-7.xml -a alice -i 43 --body - r7/age.sql
func newChange(p newParams) *cli.Command {
	return &cli.Command{
		Name:      "new",
		Usage:     "Add a change file to a change log",
		ArgsUsage: "<file relative to root_sql_directory>",
		Description: `Write a SQL file under root_sql_directory starting with a changeset header
and include it at the end of the given change log. A change log that does not
exist yet is created and appended to the master change log. Header values are
single tokens and cannot contain whitespace.`,
		Before: requireConfig(p.Config),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "change-log", Aliases: []string{"l"}, Usage: "change log file name", Required: true},
			&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "change author", Required: true},
			&cli.StringFlag{Name: "id", Aliases: []string{"i"}, Usage: "change id, unique per database", Required: true},
			&cli.StringFlag{Name: "release", Aliases: []string{"r"}, Usage: "release number"},
			&cli.StringFlag{Name: "comment", Usage: "short comment"},
			&cli.StringFlag{Name: "jira", Usage: "ticket reference"},
			&cli.StringFlag{Name: "body", Usage: "SQL body, - reads stdin"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return errors.New("expected exactly one file argument")
			}

			body := cmd.String("body")
			if body == "-" {
				data, err := io.ReadAll(os.Stdin)
				if err != nil {
					return errors.Wrap(err, "failed to read body from stdin")
				}
				body = string(data)
			}

			change := project.Change{
				ChangeLog: cmd.String("change-log"),
				File:      cmd.Args().First(),
				Author:    cmd.String("author"),
				ID:        cmd.String("id"),
				Release:   cmd.String("release"),
				Comment:   cmd.String("comment"),
				Jira:      cmd.String("jira"),
				Body:      body,
			}

			if err := projectFor(p.Config).AddChange(change); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.Root().Writer, "Added %s to %s\n", change.File, change.ChangeLog)
			return err
		},
	}
}

func projectFor(cfg *config.Config) *project.Project {
	return project.NewWithLayout(projectFS(cfg), project.Layout{
		ChangeLogDirectory:  cfg.ChangeLogDirectory,
		MasterChangeLogName: cfg.MasterChangeLogName,
		RootSQLDirectory:    cfg.RootSQLDirectory,
	})
}
