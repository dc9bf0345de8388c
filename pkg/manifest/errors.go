package manifest

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrManifestNotFound is returned when the manifest document itself is absent.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrReferencedFileNotFound is returned when an included file cannot be read.
	ErrReferencedFileNotFound = errors.New("referenced file not found")

	// ErrManifestParse is returned for malformed manifest markup.
	ErrManifestParse = errors.New("malformed manifest")

	// ErrCircularManifestReference is returned when nested manifests include
	// one another.
	ErrCircularManifestReference = errors.New("circular manifest reference")
)

// Error describes a manifest failure. Kind is one of the Err* sentinels above
// and is matched by errors.Is; Err is the underlying cause, if any.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Path)
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}
