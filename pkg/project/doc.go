// Package project scaffolds release projects.
//
// A release project has this layout (directory names are configurable):
//
//	project-root/
//	├── changedeploy.yaml       # Release configuration
//	├── changelogs/
//	│   ├── master.xml          # Lists change logs in release order
//	│   └── release-1.xml       # Lists SQL files in execution order
//	└── sql/
//	    └── r1/
//	        └── create_users.sql
//
// Every SQL file starts with a changeset header:
//
//	--changeset alice:42 context:r1
//	--comment: users
//	--labels: JIRA-7
//	CREATE TABLE users (id UInt64) ENGINE = MergeTree ORDER BY id;
//
// Initialize writes the configuration and an empty master change log.
// AddChange writes a SQL file with its header and includes it in a change
// log, creating and registering the change log when needed. Neither ever
// overwrites existing files.
package project
