package cmd

import (
	"context"
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pseudomuto/changedeploy/pkg/consts"
	"github.com/pseudomuto/changedeploy/pkg/project"
	"github.com/urfave/cli/v3"
)

// initCmd returns a CLI command that initializes a release project in the
// current directory. Existing files are left untouched, so it is safe to run
// in a populated directory.
//
// Created structure:
//   - changedeploy.yaml: release configuration
//   - changelogs/master.xml: empty master change log
//   - sql/: root directory for change files
//
// Example usage:
//
//	changedeploy init --target analytics --cluster prod --cloning
func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize a release project in the current directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "target database written to the configuration",
			},
			&cli.StringFlag{
				Name:    "cluster",
				Aliases: []string{"c"},
				Usage:   "ClickHouse cluster for ON CLUSTER DDL",
			},
			&cli.BoolFlag{
				Name:  "cloning",
				Usage: "enable clone and swap releases",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			err := project.New(osfs.New(".")).Initialize(project.InitOptions{
				TargetDatabase: cmd.String("target"),
				Cluster:        cmd.String("cluster"),
				Cloning:        cmd.Bool("cloning"),
			})
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.Root().Writer, "Initialized release project (%s)\n", consts.ConfigFile)
			return err
		},
	}
}
