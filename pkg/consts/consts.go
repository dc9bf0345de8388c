package consts

import (
	"os"
	"time"
)

const (
	// ModeDir is the standard file mode for creating directories
	ModeDir = os.FileMode(0o755)

	// ModeFile is the standard file mode for creating files
	ModeFile = os.FileMode(0o644)

	// ConfigFile is the name of the project configuration file looked up in the
	// working directory.
	ConfigFile = "changedeploy.yaml"

	// DefaultClickHouseVersion is the ClickHouse image tag used for test containers.
	DefaultClickHouseVersion = "25.7"

	// DefaultDSN is the ClickHouse address used when the config omits one.
	DefaultDSN = "localhost:9000"

	// DefaultReadTimeout bounds a single statement round trip.
	DefaultReadTimeout = 10 * time.Minute

	// DefaultChangeLogDirectory holds the master change log and all change logs.
	DefaultChangeLogDirectory = "changelogs"

	// DefaultMasterChangeLogName is the root manifest inside the change log directory.
	DefaultMasterChangeLogName = "master.xml"

	// DefaultRootSQLDirectory is the directory change log includes resolve against.
	DefaultRootSQLDirectory = "sql"

	// DefaultHistorySchema namespaces the history table inside each database.
	DefaultHistorySchema = "changedeploy"

	// DefaultHistoryTable is the name of the history table.
	DefaultHistoryTable = "history"

	// DefaultRetentionStatus is appended to the displaced target after a swap.
	DefaultRetentionStatus = "previous"

	// DefaultEnvFile is loaded (when present) before expanding the DSN.
	DefaultEnvFile = ".env"

	// DefaultConnectRetries is how many times a transient connect failure is retried.
	DefaultConnectRetries = 3
)
