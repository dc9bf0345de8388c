package deploy

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/changeset"
	"github.com/pseudomuto/changedeploy/pkg/clickhouse"
	"github.com/pseudomuto/changedeploy/pkg/ledger"
	"github.com/pseudomuto/changedeploy/pkg/manifest"
)

const (
	UnknownError ErrorKind = iota
	ManifestError
	MetadataError
	LedgerError
	ExecutionError
	SwapError
)

var (
	// ErrReleaseHalted is returned when halt_release_on_fail stopped the run
	// after a failed change log.
	ErrReleaseHalted = errors.New("release halted")

	// ErrReleaseFailed is returned when the run finished with at least one
	// failed change log. No swap happens in that case.
	ErrReleaseFailed = errors.New("release failed")
)

type (
	// ErrorKind groups failures by the step that raised them.
	ErrorKind int

	// ChangeError is a failure applying one change. Err is the underlying
	// executor (or ledger) error.
	ChangeError struct {
		ChangeLog string
		File      string
		ID        string
		Author    string
		Err       error
	}

	// ReleaseError is a failure of a clone, swap or mark step. Statuses
	// already recorded in the ledger are not affected by it.
	ReleaseError struct {
		Op       string
		Database string
		Err      error
	}
)

func (k ErrorKind) String() string {
	switch k {
	case ManifestError:
		return "manifest"
	case MetadataError:
		return "metadata"
	case LedgerError:
		return "ledger"
	case ExecutionError:
		return "execution"
	case SwapError:
		return "swap"
	default:
		return "unknown"
	}
}

func (e *ChangeError) Error() string {
	return fmt.Sprintf("change %s:%s (%s in %s): %v", e.Author, e.ID, e.File, e.ChangeLog, e.Err)
}

func (e *ChangeError) Unwrap() error { return e.Err }

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Database, e.Err)
}

func (e *ReleaseError) Unwrap() error { return e.Err }

// Classify reports which step err came from.
func Classify(err error) ErrorKind {
	if err == nil {
		return UnknownError
	}

	var (
		releaseErr  *ReleaseError
		ledgerErr   *ledger.Error
		manifestErr *manifest.Error
	)

	switch {
	case errors.As(err, &releaseErr):
		return SwapError
	case errors.As(err, &ledgerErr):
		return LedgerError
	case errors.As(err, &manifestErr):
		return ManifestError
	case errors.Is(err, changeset.ErrMissingChangesetHeader), errors.Is(err, changeset.ErrMultipleChangesets):
		return MetadataError
	case clickhouse.IsStatement(err), clickhouse.IsConnectivity(err):
		return ExecutionError
	default:
		return UnknownError
	}
}

// expected reports whether err is one the run folds into a change log outcome
// rather than aborting on.
func expected(err error) bool {
	return Classify(err) != UnknownError
}
