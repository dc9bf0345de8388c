// Package deploy runs releases of versioned SQL changes.
//
// A release walks the master change log in order. Each change log lists SQL
// files; each file starts with a changeset header naming its author and id.
// A file whose id already succeeded is skipped. Otherwise an in_progress row
// is written to the ledger, the script is executed, and the row is updated to
// success or failed. The first failure ends the change log it occurs in.
//
// With halt on fail set, the first failed change log ends the run. Without it
// every change log is attempted and the run reports all failures at the end.
//
// With cloning enabled the release is applied to a copy of the target
// (<target>_CLONE_<timestamp>). Only when every change log is clean is the copy
// swapped in, after which the displaced target is renamed with the retention
// suffix (<clone>_PREVIOUS by default). A failed run leaves the clone in place
// and the target untouched.
//
// Example usage:
//
//	report, err := deployer.Run(ctx, deploy.Options{})
//	_ = report.Write(os.Stdout)
//	switch {
//	case errors.Is(err, deploy.ErrReleaseHalted):
//		// stopped early
//	case errors.Is(err, deploy.ErrReleaseFailed):
//		// finished with failures, no swap
//	}
package deploy
