package changeset

import (
	"bufio"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrMissingChangesetHeader is returned when no author:id pair can be read
	// from the header. A change without identity cannot be tracked.
	ErrMissingChangesetHeader = errors.New("missing changeset header")

	// ErrMultipleChangesets is returned when the header declares more than one
	// changeset. Each file is deployed, and tracked, as a single change.
	ErrMultipleChangesets = errors.New("multiple changeset headers")
)

const (
	changesetLabel = "changeset"
	contextPrefix  = "context:"
	commentLabel   = "comment:"
	labelsLabel    = "labels:"
)

// Metadata is the identity and annotation of one change.
type Metadata struct {
	ID            string
	Author        string
	ReleaseNumber string

	// Comments and JiraNumber are optional and nil when absent.
	Comments   *string
	JiraNumber *string
}

// Key returns the author:id form used in logs and reports.
func (m *Metadata) Key() string {
	return m.Author + ":" + m.ID
}

// Extract parses the header comment block of content.
//
// Example:
//
//	meta, err := changeset.Extract("--changeset alice:42 context:r7\nCREATE TABLE t (id UInt64) ENGINE = Memory;")
//	// meta.Author == "alice", meta.ID == "42", meta.ReleaseNumber == "r7"
func Extract(content string) (*Metadata, error) {
	meta := new(Metadata)
	found := false

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "--") {
			break
		}

		fields := strings.Fields(strings.TrimLeft(line, "-"))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case changesetLabel:
			if found {
				return nil, ErrMultipleChangesets
			}
			found = true
			parseChangeset(meta, fields[1:])
		case commentLabel:
			if len(fields) > 1 {
				meta.Comments = &fields[1]
			}
		case labelsLabel:
			if len(fields) > 1 {
				meta.JiraNumber = &fields[1]
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read changeset header")
	}

	if meta.Author == "" || meta.ID == "" {
		return nil, ErrMissingChangesetHeader
	}

	return meta, nil
}

// ExtractFile is Extract with the file path attached to any error.
func ExtractFile(path, content string) (*Metadata, error) {
	meta, err := Extract(content)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}

	return meta, nil
}

func parseChangeset(meta *Metadata, values []string) {
	if len(values) == 0 {
		return
	}

	if author, id, ok := strings.Cut(values[0], ":"); ok {
		meta.Author = author
		meta.ID = id
	}

	if len(values) > 1 {
		if release, ok := strings.CutPrefix(values[1], contextPrefix); ok {
			meta.ReleaseNumber = release
		}
	}
}
