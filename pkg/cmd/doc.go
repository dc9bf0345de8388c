// Package cmd provides the changedeploy command line interface.
//
// Commands are plain *cli.Command values contributed to the "commands" fx
// value group and assembled by Run:
//   - init: scaffold changedeploy.yaml, the master change log and sql/
//   - new: add a change file with a changeset header to a change log
//   - deploy: apply pending changes, optionally through a clone and swap
//   - plan: dry run of deploy that never clones or writes
//   - status: print the history table of a database
//
// Every command except init needs changedeploy.yaml in the working directory.
// Logs are written to stderr (see --log-level); reports go to stdout.
//
//	changedeploy init --target analytics --cloning
//	changedeploy new -l release-1.xml -a alice -i 1 r1/create_users.sql
//	changedeploy plan
//	changedeploy deploy --halt-on-fail
//	changedeploy status --status failed
package cmd
