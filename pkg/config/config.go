package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/clickhouse"
	"github.com/pseudomuto/changedeploy/pkg/consts"
	"gopkg.in/yaml.v3"
)

type (
	// TLS holds certificate paths for mTLS connections to ClickHouse.
	TLS struct {
		CAFile   string `yaml:"ca_file,omitempty"`
		CertFile string `yaml:"cert_file,omitempty"`
		KeyFile  string `yaml:"key_file,omitempty"`
	}

	// ClickHouse represents ClickHouse connection settings.
	ClickHouse struct {
		// DSN is either host:port or a clickhouse:// URL. ${VAR} references are
		// expanded after the env file is loaded.
		DSN string `yaml:"dsn,omitempty"`

		// Cluster adds ON CLUSTER to database level DDL (clone, rename).
		Cluster string `yaml:"cluster,omitempty"`

		// ReadTimeout bounds a single statement round trip (e.g. "10m").
		ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`

		// ConnectRetries is how often a transient connect failure is retried.
		ConnectRetries uint64 `yaml:"connect_retries,omitempty"`

		// Version is the ClickHouse image tag used for local test servers.
		Version string `yaml:"version,omitempty"`

		TLS TLS `yaml:"tls,omitempty"`
	}

	// Config represents the release configuration.
	Config struct {
		// TargetDatabase is the database receiving the release.
		TargetDatabase string `yaml:"target_database"`

		// Cloning deploys to a clone of the target and swaps it in on success.
		Cloning bool `yaml:"cloning"`

		// ChangeLogDirectory holds the master change log and every change log.
		ChangeLogDirectory string `yaml:"change_log_directory"`

		// MasterChangeLogName is the file name of the master change log.
		MasterChangeLogName string `yaml:"master_change_log_name"`

		// RootSQLDirectory is the directory change log includes resolve against.
		RootSQLDirectory string `yaml:"root_sql_directory"`

		// HistorySchema and HistoryTable name the ledger table, stored as
		// <history_schema>_<history_table> inside the deployed database.
		HistorySchema string `yaml:"history_schema"`
		HistoryTable  string `yaml:"history_table"`

		// HaltReleaseOnFail stops the release at the first failed change log.
		HaltReleaseOnFail bool `yaml:"halt_release_on_fail"`

		// RetentionStatus is the suffix given to the displaced target after a
		// swap.
		RetentionStatus string `yaml:"retention_status"`

		// EnvFile is loaded into the environment before the DSN is expanded.
		EnvFile string `yaml:"env_file"`

		ClickHouse ClickHouse `yaml:"clickhouse"`

		// Dir is the directory the configuration was loaded from. Relative
		// paths are resolved against it.
		Dir string `yaml:"-"`

		envFileRequired bool
	}
)

// LoadConfig parses a release configuration from the provided io.Reader and
// fills in defaults for anything not set.
//
// Example:
//
//	cfg, err := config.LoadConfig(strings.NewReader(`
//	target_database: analytics
//	cloning: true
//	clickhouse:
//	  dsn: ${CLICKHOUSE_DSN}
//	`))
//	if err != nil {
//		panic(err)
//	}
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal release config")
	}

	cfg.envFileRequired = cfg.EnvFile != ""
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadConfigFile loads a release configuration from path, loads its env file
// and expands environment references in the DSN.
//
// Example:
//
//	cfg, err := config.LoadConfigFile("changedeploy.yaml")
//	if err != nil {
//		log.Fatal("Failed to load config:", err)
//	}
func LoadConfigFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open file: %s", path)
	}
	defer func() { _ = f.Close() }()

	cfg, err := LoadConfig(f)
	if err != nil {
		return nil, err
	}

	cfg.Dir = filepath.Dir(path)
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ChangeLogDirectory == "" {
		c.ChangeLogDirectory = consts.DefaultChangeLogDirectory
	}
	if c.MasterChangeLogName == "" {
		c.MasterChangeLogName = consts.DefaultMasterChangeLogName
	}
	if c.RootSQLDirectory == "" {
		c.RootSQLDirectory = consts.DefaultRootSQLDirectory
	}
	if c.HistorySchema == "" {
		c.HistorySchema = consts.DefaultHistorySchema
	}
	if c.HistoryTable == "" {
		c.HistoryTable = consts.DefaultHistoryTable
	}
	if c.RetentionStatus == "" {
		c.RetentionStatus = consts.DefaultRetentionStatus
	}
	if c.EnvFile == "" {
		c.EnvFile = consts.DefaultEnvFile
	}
	if c.ClickHouse.DSN == "" {
		c.ClickHouse.DSN = consts.DefaultDSN
	}
	if c.ClickHouse.ReadTimeout == 0 {
		c.ClickHouse.ReadTimeout = consts.DefaultReadTimeout
	}
	if c.ClickHouse.ConnectRetries == 0 {
		c.ClickHouse.ConnectRetries = consts.DefaultConnectRetries
	}
	if c.ClickHouse.Version == "" {
		c.ClickHouse.Version = consts.DefaultClickHouseVersion
	}
}

// LoadEnv loads the env file (relative to Dir) without overriding variables
// already set, then expands ${VAR} references in the DSN. A missing env file
// is only an error when one was configured explicitly.
func (c *Config) LoadEnv() error {
	envPath := c.EnvFile
	if !filepath.IsAbs(envPath) {
		envPath = filepath.Join(c.Dir, envPath)
	}

	if err := godotenv.Load(envPath); err != nil {
		if c.envFileRequired || !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to load env file: %s", envPath)
		}
	}

	c.ClickHouse.DSN = os.ExpandEnv(c.ClickHouse.DSN)
	return nil
}

// Validate reports configuration that cannot produce a release.
func (c *Config) Validate() error {
	if c.TargetDatabase == "" {
		return errors.New("target_database is required")
	}

	if (c.ClickHouse.TLS.CertFile == "") != (c.ClickHouse.TLS.KeyFile == "") {
		return errors.New("clickhouse.tls requires both cert_file and key_file")
	}

	return nil
}

// Path resolves p against the configuration directory. Empty stays empty.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}

	return filepath.Join(c.Dir, p)
}

// ClientOptions returns the ClickHouse client options for this configuration.
func (c *Config) ClientOptions() clickhouse.ClientOptions {
	return clickhouse.ClientOptions{
		Cluster: c.ClickHouse.Cluster,
		TLSSettings: clickhouse.TLSSettings{
			CAFile:   c.Path(c.ClickHouse.TLS.CAFile),
			CertFile: c.Path(c.ClickHouse.TLS.CertFile),
			KeyFile:  c.Path(c.ClickHouse.TLS.KeyFile),
		},
		ReadTimeout:    c.ClickHouse.ReadTimeout,
		ConnectRetries: c.ClickHouse.ConnectRetries,
	}
}
