package project

import (
	"bytes"
	_ "embed"
	"os"
	"path"
	"text/template"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/consts"
)

var (
	//go:embed embed/changedeploy.yaml
	defaultConfig string

	//go:embed embed/master.xml
	defaultMaster []byte

	configTemplate = template.Must(template.New(consts.ConfigFile).Parse(defaultConfig))
)

type (
	// InitOptions contains options for project initialization.
	InitOptions struct {
		// TargetDatabase is written into the generated configuration.
		TargetDatabase string

		// Cluster adds clickhouse.cluster to the generated configuration.
		Cluster string

		// Cloning enables clone and swap releases.
		Cloning bool
	}

	// Layout names the directories of a release project.
	Layout struct {
		ChangeLogDirectory  string
		MasterChangeLogName string
		RootSQLDirectory    string
	}

	// Project is a release project rooted at the base of a filesystem.
	Project struct {
		fs     billy.Filesystem
		layout Layout
	}
)

// DefaultLayout is the layout written by Initialize.
var DefaultLayout = Layout{
	ChangeLogDirectory:  consts.DefaultChangeLogDirectory,
	MasterChangeLogName: consts.DefaultMasterChangeLogName,
	RootSQLDirectory:    consts.DefaultRootSQLDirectory,
}

// New creates a Project on the given filesystem using the default layout.
//
// Example:
//
//	p := project.New(osfs.New("/srv/release"))
//	if err := p.Initialize(project.InitOptions{TargetDatabase: "analytics"}); err != nil {
//		log.Fatal(err)
//	}
func New(fs billy.Filesystem) *Project {
	return NewWithLayout(fs, DefaultLayout)
}

// NewWithLayout creates a Project with a custom layout, typically the one
// from a loaded configuration.
func NewWithLayout(fs billy.Filesystem, layout Layout) *Project {
	return &Project{fs: fs, layout: layout}
}

// MasterPath returns the path of the master change log.
func (p *Project) MasterPath() string {
	return path.Join(p.layout.ChangeLogDirectory, p.layout.MasterChangeLogName)
}

// Initialize creates the configuration file, the master change log and the
// SQL directory. It is idempotent: existing files are never overwritten.
func (p *Project) Initialize(options InitOptions) error {
	if options.TargetDatabase == "" {
		options.TargetDatabase = "default"
	}

	var cfg bytes.Buffer
	if err := configTemplate.Execute(&cfg, options); err != nil {
		return errors.Wrap(err, "failed to render configuration")
	}

	files := []struct {
		name string
		data []byte
	}{
		{consts.ConfigFile, cfg.Bytes()},
		{p.MasterPath(), defaultMaster},
	}

	for _, f := range files {
		if err := p.writeIfMissing(f.name, f.data); err != nil {
			return err
		}
	}

	if err := p.fs.MkdirAll(p.layout.RootSQLDirectory, consts.ModeDir); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", p.layout.RootSQLDirectory)
	}

	return nil
}

func (p *Project) exists(name string) (bool, error) {
	_, err := p.fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "failed to stat %s", name)
	}
}

func (p *Project) writeIfMissing(name string, data []byte) error {
	exists, err := p.exists(name)
	if err != nil || exists {
		return err
	}

	if dir := path.Dir(name); dir != "." {
		if err := p.fs.MkdirAll(dir, consts.ModeDir); err != nil {
			return errors.Wrapf(err, "failed to create parent directory for %s", name)
		}
	}

	if err := util.WriteFile(p.fs, name, data, consts.ModeFile); err != nil {
		return errors.Wrapf(err, "failed to write file %s", name)
	}

	return nil
}
