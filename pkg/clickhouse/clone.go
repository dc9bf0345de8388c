package clickhouse

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changedeploy/pkg/utils"
)

// tableInfo is one row of system.tables for the database being cloned.
type tableInfo struct {
	Name        string
	Engine      string
	CreateQuery string
}

// CloneDatabase creates clone as a copy of source: every table is recreated
// with the same structure and engine and its rows copied, then dictionaries and
// views are recreated from their definitions.
//
// Materialized and window views have every reference to source rewritten to
// clone, so inserts made while deploying to the clone never reach source.
// Plain views and dictionaries only move into clone and keep reading from
// source by name. Once the clone is swapped in, that name is the released
// database again.
//
// Tables whose engine holds no local data (Distributed, Kafka, URL, ...) are
// recreated empty. Materialized views without a TO table start with an empty
// inner table.
//
// Example:
//
//	if err := client.CloneDatabase(ctx, "analytics", "analytics_CLONE_20250102150405"); err != nil {
//		return err
//	}
func (c *Client) CloneDatabase(ctx context.Context, source, clone string) error {
	exists, err := c.DatabaseExists(ctx, source)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Errorf("cannot clone %s: database does not exist", source)
	}

	createDB := utils.NewSQLBuilder().
		Create("DATABASE").
		Name(clone).
		OnCluster(c.opts.Cluster).
		Engine("Atomic").
		StringWithoutSemicolon()
	if err := c.Exec(ctx, createDB); err != nil {
		return errors.Wrapf(err, "failed to create clone database %s", clone)
	}

	tables, err := c.listTables(ctx, source)
	if err != nil {
		return err
	}

	rw := newReferenceRewriter(source, clone)
	for _, t := range tables {
		slog.Debug("Cloning object", "source", source, "clone", clone, "name", t.Name, "engine", t.Engine)

		if isDefinitionOnly(t.Engine) {
			query := rw.First(t.CreateQuery)
			if writesRows(t.Engine) {
				query = rw.All(t.CreateQuery)
			}

			if err := c.Exec(ctx, query); err != nil {
				return errors.Wrapf(err, "failed to recreate %s.%s in %s", source, t.Name, clone)
			}
			continue
		}

		createTable := utils.NewSQLBuilder().
			Create("TABLE").
			QualifiedName(clone, t.Name).
			OnCluster(c.opts.Cluster).
			As(utils.QualifiedName(source, t.Name)).
			StringWithoutSemicolon()
		if err := c.Exec(ctx, createTable); err != nil {
			return errors.Wrapf(err, "failed to create %s.%s", clone, t.Name)
		}

		if !holdsData(t.Engine) {
			continue
		}

		copyRows := "INSERT INTO " + utils.QualifiedName(clone, t.Name) +
			" SELECT * FROM " + utils.QualifiedName(source, t.Name)
		if err := c.Exec(ctx, copyRows); err != nil {
			return errors.Wrapf(err, "failed to copy rows into %s.%s", clone, t.Name)
		}
	}

	return nil
}

func (c *Client) listTables(ctx context.Context, database string) ([]tableInfo, error) {
	const query = `
		SELECT name, engine, create_table_query
		FROM system.tables
		WHERE database = ?
		  AND is_temporary = 0
		  AND NOT startsWith(name, '.inner')
		ORDER BY metadata_modification_time, name
	`

	rows, err := c.Query(ctx, query, database)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tables in %s", database)
	}
	defer rows.Close()

	var tables []tableInfo
	for rows.Next() {
		var t tableInfo
		if err := rows.Scan(&t.Name, &t.Engine, &t.CreateQuery); err != nil {
			return nil, errors.Wrap(err, "failed to scan table row")
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate table rows")
	}

	sortForCreation(tables)
	return tables, nil
}

// sortForCreation orders tables before dictionaries before views, keeping the
// server's order inside each group.
func sortForCreation(tables []tableInfo) {
	sort.SliceStable(tables, func(i, j int) bool {
		return creationRank(tables[i].Engine) < creationRank(tables[j].Engine)
	})
}

func creationRank(engine string) int {
	switch engine {
	case "Dictionary":
		return 1
	case "View", "LiveView", "WindowView":
		return 2
	case "MaterializedView":
		return 3
	default:
		return 0
	}
}

func isDefinitionOnly(engine string) bool {
	return creationRank(engine) > 0
}

// writesRows reports whether a view engine inserts into other tables.
func writesRows(engine string) bool {
	return engine == "MaterializedView" || engine == "WindowView"
}

func holdsData(engine string) bool {
	if strings.HasSuffix(engine, "MergeTree") {
		return true
	}

	switch engine {
	case "Log", "TinyLog", "StripeLog", "Memory":
		return true
	}

	return false
}

// referenceRewriter replaces database qualifiers for source (quoted or bare)
// with the quoted clone name.
type referenceRewriter struct {
	pattern     *regexp.Regexp
	replacement string
}

func newReferenceRewriter(source, clone string) *referenceRewriter {
	name := regexp.QuoteMeta(source)

	return &referenceRewriter{
		pattern:     regexp.MustCompile("(^|[^\\w.`])(`" + name + "`|" + name + ")\\."),
		replacement: "${1}" + strings.ReplaceAll(utils.QuoteIdentifier(clone), "$", "$$") + ".",
	}
}

// All rewrites every qualifier in query.
func (r *referenceRewriter) All(query string) string {
	return r.pattern.ReplaceAllString(query, r.replacement)
}

// First rewrites the first qualifier only, which in a CREATE statement is the
// object being created.
func (r *referenceRewriter) First(query string) string {
	loc := r.pattern.FindStringSubmatchIndex(query)
	if loc == nil {
		return query
	}

	expanded := r.pattern.ExpandString(nil, r.replacement, query, loc)
	return query[:loc[0]] + string(expanded) + query[loc[1]:]
}
