package deploy

import (
	"fmt"
	"io"
	"strings"
)

const (
	// OutcomeClean means every change in the change log succeeded or was
	// skipped.
	OutcomeClean Outcome = 0

	// OutcomeFailed means the change log stopped at a failure.
	OutcomeFailed Outcome = 1
)

const (
	StatePending    ChangeState = "pending"
	StateSkipped    ChangeState = "skipped"
	StateInProgress ChangeState = "in_progress"
	StateSuccess    ChangeState = "success"
	StateFailed     ChangeState = "failed"

	// StatePlanned is used by dry runs for changes that would be deployed.
	StatePlanned ChangeState = "planned"
)

type (
	// Outcome is the result of one change log: 0 clean, 1 failed.
	Outcome int

	// ChangeState is where a change ended up in this run.
	ChangeState string

	// ChangeResult is one SQL file of a change log.
	ChangeResult struct {
		File   string
		ID     string
		Author string
		State  ChangeState
		Err    error
	}

	// ChangeLogResult is one processed change log.
	ChangeLogResult struct {
		ChangeLog string
		Outcome   Outcome
		Changes   []*ChangeResult
		Err       error
	}

	// Report summarizes a run.
	Report struct {
		TargetDatabase string
		DeployDatabase string
		DeploymentID   uint64
		DryRun         bool
		Cloned         bool
		ChangeLogs     []*ChangeLogResult

		// HaltedAt is the change log the run stopped at when halting.
		HaltedAt string

		Swapped    bool
		RetainedAs string
	}
)

func (c *ChangeResult) fail(err error) {
	c.State = StateFailed
	c.Err = err
}

func (r *ChangeLogResult) fail(err error) {
	r.Outcome = OutcomeFailed
	r.Err = err
}

// FailedChangeLogs returns the change logs with a failed outcome, in order.
func (r *Report) FailedChangeLogs() []string {
	var failed []string
	for _, cl := range r.ChangeLogs {
		if cl.Outcome == OutcomeFailed {
			failed = append(failed, cl.ChangeLog)
		}
	}

	return failed
}

// Count returns how many changes ended in state.
func (r *Report) Count(state ChangeState) int {
	n := 0
	for _, cl := range r.ChangeLogs {
		for _, c := range cl.Changes {
			if c.State == state {
				n++
			}
		}
	}

	return n
}

// Write prints a human readable summary of the run.
func (r *Report) Write(w io.Writer) error {
	b := new(strings.Builder)

	switch {
	case r.DryRun:
		fmt.Fprintf(b, "Plan for %s (deployment %d)\n", r.TargetDatabase, r.DeploymentID)
	case r.Cloned:
		fmt.Fprintf(b, "Deployment %d of %s via clone %s\n", r.DeploymentID, r.TargetDatabase, r.DeployDatabase)
	default:
		fmt.Fprintf(b, "Deployment %d of %s\n", r.DeploymentID, r.TargetDatabase)
	}

	for _, cl := range r.ChangeLogs {
		status := "ok"
		if cl.Outcome == OutcomeFailed {
			status = "FAILED"
		}
		fmt.Fprintf(b, "\n%s: %s\n", cl.ChangeLog, status)

		if len(cl.Changes) == 0 && cl.Err != nil {
			fmt.Fprintf(b, "  error: %v\n", cl.Err)
		}

		for _, c := range cl.Changes {
			key := "-"
			if c.ID != "" {
				key = c.Author + ":" + c.ID
			}
			fmt.Fprintf(b, "  %-11s %-16s %s\n", c.State, key, c.File)
			if c.Err != nil {
				fmt.Fprintf(b, "    error: %v\n", rootCause(c.Err))
			}
		}
	}

	b.WriteString("\n")
	if r.DryRun {
		fmt.Fprintf(b, "%d to deploy, %d already applied\n", r.Count(StatePlanned), r.Count(StateSkipped))
	} else {
		fmt.Fprintf(b, "%d applied, %d skipped, %d failed\n", r.Count(StateSuccess), r.Count(StateSkipped), r.Count(StateFailed))
	}

	failed := r.FailedChangeLogs()
	switch {
	case r.HaltedAt != "":
		fmt.Fprintf(b, "Release halted at %s\n", r.HaltedAt)
	case len(failed) > 0:
		fmt.Fprintf(b, "Release failed: %s\n", strings.Join(failed, ", "))
	}

	if r.Cloned && !r.Swapped && (r.HaltedAt != "" || len(failed) > 0) {
		fmt.Fprintf(b, "Clone %s left in place for inspection\n", r.DeployDatabase)
	}

	if r.Swapped {
		fmt.Fprintf(b, "Swapped %s into %s\n", r.DeployDatabase, r.TargetDatabase)
	}
	if r.RetainedAs != "" {
		fmt.Fprintf(b, "Previous %s retained as %s\n", r.TargetDatabase, r.RetainedAs)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// rootCause drops the ChangeError wrapper, whose context is already printed.
func rootCause(err error) error {
	if ce, ok := err.(*ChangeError); ok {
		return ce.Err
	}

	return err
}
