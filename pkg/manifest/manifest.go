package manifest

import (
	"encoding/xml"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
)

type (
	// Resolver reads manifests and the files they reference from a filesystem.
	Resolver struct {
		fs billy.Filesystem
	}

	// Entry is one resolved include: the label exactly as declared, the path it
	// was read from, and the file's raw content.
	Entry struct {
		Label   string
		Path    string
		Content string
	}

	// Resolved is the ordered label -> content mapping produced for one
	// manifest.
	Resolved struct {
		// Manifest is the path of the manifest that was resolved.
		Manifest string

		// SourceDir is the directory include labels were resolved against.
		SourceDir string

		// Entries holds the includes in declaration order.
		Entries []*Entry

		index map[string]*Entry
	}

	document struct {
		Includes []include `xml:"include"`
	}

	include struct {
		File     string `xml:"file,attr"`
		Manifest string `xml:"manifest,attr"`
	}
)

// NewResolver returns a Resolver reading from the given filesystem.
//
// Example:
//
//	r := manifest.NewResolver(osfs.New("/srv/release"))
//	logs, err := r.ChangeLogs("changelogs/master.xml")
func NewResolver(filesystem billy.Filesystem) *Resolver {
	return &Resolver{fs: filesystem}
}

// Labels returns the entry labels in declaration order.
func (r *Resolved) Labels() []string {
	labels := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		labels[i] = e.Label
	}

	return labels
}

// Len returns the number of entries.
func (r *Resolved) Len() int {
	return len(r.Entries)
}

// Resolve reads manifestPath and returns every included file, read relative to
// sourceDir, in declaration order. Only file includes are accepted here; a
// nested manifest reference is a parse error.
//
// Example:
//
//	resolved, err := r.Resolve("changelogs/release-1.xml", "sql")
//	if err != nil {
//		return err
//	}
//
//	for _, e := range resolved.Entries {
//		fmt.Println(e.Label, len(e.Content))
//	}
func (r *Resolver) Resolve(manifestPath, sourceDir string) (*Resolved, error) {
	doc, err := r.parse(manifestPath)
	if err != nil {
		return nil, err
	}

	resolved := &Resolved{
		Manifest:  manifestPath,
		SourceDir: sourceDir,
		index:     make(map[string]*Entry, len(doc.Includes)),
	}

	for _, inc := range doc.Includes {
		if inc.Manifest != "" {
			return nil, &Error{
				Kind: ErrManifestParse,
				Path: manifestPath,
				Err:  errors.Errorf("nested manifest %q is only allowed in the master change log", inc.Manifest),
			}
		}

		if _, ok := resolved.index[inc.File]; ok {
			slog.Warn("Duplicate include ignored", "manifest", manifestPath, "file", inc.File)
			continue
		}

		filePath := path.Join(sourceDir, inc.File)
		content, err := util.ReadFile(r.fs, filePath)
		if err != nil {
			return nil, &Error{Kind: ErrReferencedFileNotFound, Path: filePath, Err: err}
		}

		entry := &Entry{Label: inc.File, Path: filePath, Content: string(content)}
		resolved.Entries = append(resolved.Entries, entry)
		resolved.index[inc.File] = entry
	}

	return resolved, nil
}

// ChangeLogs resolves the master change log into the flattened, ordered list
// of change log paths (relative to the master's directory, like every include).
// Nested manifests are expanded depth-first where they are declared. Each
// change log must exist; its content is read later by Resolve.
func (r *Resolver) ChangeLogs(masterPath string) ([]string, error) {
	dir := path.Dir(masterPath)
	seen := make(map[string]bool)

	var logs []string
	if err := r.expand(dir, masterPath, nil, seen, &logs); err != nil {
		return nil, err
	}

	return logs, nil
}

func (r *Resolver) expand(dir, manifestPath string, stack []string, seen map[string]bool, logs *[]string) error {
	for _, open := range stack {
		if open == manifestPath {
			return &Error{
				Kind: ErrCircularManifestReference,
				Path: manifestPath,
				Err:  errors.Errorf("include chain: %s", strings.Join(append(stack, manifestPath), " -> ")),
			}
		}
	}

	doc, err := r.parse(manifestPath)
	if err != nil {
		return err
	}

	stack = append(stack, manifestPath)
	for _, inc := range doc.Includes {
		if inc.Manifest != "" {
			if err := r.expand(dir, path.Join(dir, inc.Manifest), stack, seen, logs); err != nil {
				return err
			}
			continue
		}

		if seen[inc.File] {
			slog.Warn("Duplicate change log ignored", "manifest", manifestPath, "file", inc.File)
			continue
		}

		logPath := path.Join(dir, inc.File)
		if _, err := r.fs.Stat(logPath); err != nil {
			return &Error{Kind: ErrReferencedFileNotFound, Path: logPath, Err: err}
		}

		seen[inc.File] = true
		*logs = append(*logs, inc.File)
	}

	return nil
}

func (r *Resolver) parse(manifestPath string) (*document, error) {
	data, err := util.ReadFile(r.fs, manifestPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, &Error{Kind: ErrManifestNotFound, Path: manifestPath}
		}

		return nil, &Error{Kind: ErrManifestNotFound, Path: manifestPath, Err: err}
	}

	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Kind: ErrManifestParse, Path: manifestPath, Err: err}
	}

	for i, inc := range doc.Includes {
		switch {
		case inc.File == "" && inc.Manifest == "":
			return nil, &Error{
				Kind: ErrManifestParse,
				Path: manifestPath,
				Err:  errors.Errorf("include %d has no file attribute", i+1),
			}
		case inc.File != "" && inc.Manifest != "":
			return nil, &Error{
				Kind: ErrManifestParse,
				Path: manifestPath,
				Err:  errors.Errorf("include %d sets both file and manifest", i+1),
			}
		}
	}

	return &doc, nil
}
