package project

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/changeset"
	"github.com/pseudomuto/changedeploy/pkg/consts"
)

const closingTag = "</databaseChangeLog>"

type (
	// Change describes a new SQL file and where it is included.
	Change struct {
		// ChangeLog is the change log file name, relative to the change log
		// directory. It is created and added to the master when missing.
		ChangeLog string

		// File is the SQL file, relative to the root SQL directory.
		File string

		Author  string
		ID      string
		Release string

		// Comment and Jira are optional single tokens.
		Comment string
		Jira    string

		// Body is written after the header.
		Body string
	}

	changeLogDocument struct {
		Includes []struct {
			File     string `xml:"file,attr"`
			Manifest string `xml:"manifest,attr"`
		} `xml:"include"`
	}
)

// Header renders the changeset header for c.
func (c Change) Header() string {
	var b strings.Builder

	fmt.Fprintf(&b, "--changeset %s:%s", c.Author, c.ID)
	if c.Release != "" {
		fmt.Fprintf(&b, " context:%s", c.Release)
	}
	b.WriteString("\n")

	if c.Comment != "" {
		fmt.Fprintf(&b, "--comment: %s\n", c.Comment)
	}
	if c.Jira != "" {
		fmt.Fprintf(&b, "--labels: %s\n", c.Jira)
	}

	return b.String()
}

func (c Change) validate() error {
	if c.ChangeLog == "" || c.File == "" {
		return errors.New("change log and file are required")
	}
	if c.Author == "" || c.ID == "" {
		return errors.New("author and id are required")
	}

	tokens := map[string]string{
		"author":  c.Author,
		"id":      c.ID,
		"release": c.Release,
		"comment": c.Comment,
		"jira":    c.Jira,
	}
	for name, value := range tokens {
		if strings.ContainsAny(value, " \t\r\n") {
			return errors.Errorf("%s must be a single token without whitespace: %q", name, value)
		}
	}

	if strings.Contains(c.Author, ":") {
		return errors.Errorf("author must not contain ':': %q", c.Author)
	}

	return nil
}

// AddChange writes a new SQL file with a changeset header and appends it to
// its change log. A missing change log is created and appended to the master.
// Existing SQL files are never overwritten.
//
// Example:
//
//	err := p.AddChange(project.Change{
//		ChangeLog: "release-7.xml",
//		File:      "r7/add_users.sql",
//		Author:    "alice",
//		ID:        "42",
//		Release:   "r7",
//	})
func (p *Project) AddChange(c Change) error {
	if err := c.validate(); err != nil {
		return err
	}

	sqlPath := path.Join(p.layout.RootSQLDirectory, c.File)
	exists, err := p.exists(sqlPath)
	if err != nil {
		return err
	}
	if exists {
		return errors.Errorf("%s already exists", sqlPath)
	}

	content := c.Header() + c.Body
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	// The header must parse the same way the deployer reads it.
	if _, err := changeset.Extract(content); err != nil {
		return errors.Wrap(err, "generated header is not readable")
	}

	changeLogPath := path.Join(p.layout.ChangeLogDirectory, c.ChangeLog)
	created, err := p.ensureChangeLog(changeLogPath)
	if err != nil {
		return err
	}

	if created {
		if err := p.appendInclude(p.MasterPath(), c.ChangeLog); err != nil {
			return err
		}
	}

	if err := p.appendInclude(changeLogPath, c.File); err != nil {
		return err
	}

	if err := p.fs.MkdirAll(path.Dir(sqlPath), consts.ModeDir); err != nil {
		return errors.Wrapf(err, "failed to create parent directory for %s", sqlPath)
	}

	if err := util.WriteFile(p.fs, sqlPath, []byte(content), consts.ModeFile); err != nil {
		return errors.Wrapf(err, "failed to write file %s", sqlPath)
	}

	return nil
}

func (p *Project) ensureChangeLog(name string) (bool, error) {
	exists, err := p.exists(name)
	if err != nil || exists {
		return false, err
	}

	return true, p.writeIfMissing(name, defaultMaster)
}

// appendInclude adds <include file="file"/> before the closing tag, leaving
// the rest of the document as written. Files already included are left alone.
func (p *Project) appendInclude(name, file string) error {
	data, err := util.ReadFile(p.fs, name)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", name)
	}

	var doc changeLogDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return errors.Wrapf(err, "failed to parse %s", name)
	}

	for _, inc := range doc.Includes {
		if inc.File == file {
			return nil
		}
	}

	idx := bytes.LastIndex(data, []byte(closingTag))
	if idx < 0 {
		return errors.Errorf("%s has no %s tag", name, closingTag)
	}

	var attr bytes.Buffer
	if err := xml.EscapeText(&attr, []byte(file)); err != nil {
		return errors.Wrapf(err, "failed to escape %s", file)
	}

	var out bytes.Buffer
	out.Write(data[:idx])
	fmt.Fprintf(&out, "  <include file=\"%s\"/>\n", attr.String())
	out.Write(data[idx:])

	if err := util.WriteFile(p.fs, name, out.Bytes(), consts.ModeFile); err != nil {
		return errors.Wrapf(err, "failed to write file %s", name)
	}

	return nil
}
