package utils

import (
	"strings"
)

// SQLBuilder provides a fluent interface for building the ClickHouse DDL the
// deployer issues itself (history table, clone, swap and rename statements).
// It handles cluster injection and identifier quoting.
//
// Example usage:
//
//	sql := NewSQLBuilder().
//		Rename("DATABASE").
//		Name("analytics").
//		To("analytics_old").
//		OnCluster("production").
//		String()
//	// Output: RENAME DATABASE `analytics` TO `analytics_old` ON CLUSTER `production`;
type SQLBuilder struct {
	parts []string
}

// NewSQLBuilder creates a new SQLBuilder instance.
func NewSQLBuilder() *SQLBuilder {
	return &SQLBuilder{
		parts: make([]string, 0, 10),
	}
}

// Create adds a CREATE clause with the specified object type.
//
// Example:
//
//	builder.Create("DATABASE")  // CREATE DATABASE
//	builder.Create("TABLE")     // CREATE TABLE
func (b *SQLBuilder) Create(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "CREATE", objectType)
	return b
}

// Rename adds a RENAME clause with the specified object type.
func (b *SQLBuilder) Rename(objectType string) *SQLBuilder {
	b.parts = append(b.parts, "RENAME", objectType)
	return b
}

// IfNotExists adds an IF NOT EXISTS clause. This should be called after CREATE operations.
func (b *SQLBuilder) IfNotExists() *SQLBuilder {
	b.parts = append(b.parts, "IF", "NOT", "EXISTS")
	return b
}

// Name adds a quoted object name.
//
// Example:
//
//	builder.Name("analytics")  // `analytics`
func (b *SQLBuilder) Name(name string) *SQLBuilder {
	if name != "" {
		b.parts = append(b.parts, QuoteIdentifier(name))
	}
	return b
}

// QualifiedName adds a quoted database.name pair.
//
// Example:
//
//	builder.QualifiedName("", "events")           // `events`
//	builder.QualifiedName("analytics", "events")  // `analytics`.`events`
func (b *SQLBuilder) QualifiedName(database, name string) *SQLBuilder {
	if qualified := QualifiedName(database, name); qualified != "" {
		b.parts = append(b.parts, qualified)
	}
	return b
}

// OnCluster adds an ON CLUSTER clause if cluster is not empty.
//
// Example:
//
//	builder.OnCluster("production")  // ON CLUSTER `production`
//	builder.OnCluster("")            // (nothing added)
func (b *SQLBuilder) OnCluster(cluster string) *SQLBuilder {
	if cluster != "" {
		b.parts = append(b.parts, "ON", "CLUSTER", QuoteIdentifier(cluster))
	}
	return b
}

// Engine adds an ENGINE clause with the specified engine name.
func (b *SQLBuilder) Engine(engine string) *SQLBuilder {
	if engine != "" {
		b.parts = append(b.parts, "ENGINE", "=", engine)
	}
	return b
}

// Comment adds a COMMENT clause with the specified comment text.
// The comment is automatically quoted and escaped.
func (b *SQLBuilder) Comment(comment string) *SQLBuilder {
	if comment != "" {
		b.parts = append(b.parts, "COMMENT", QuoteString(comment))
	}
	return b
}

// To adds a TO clause for rename operations.
//
// Example:
//
//	builder.To("new_name")  // TO `new_name`
func (b *SQLBuilder) To(name string) *SQLBuilder {
	if name != "" {
		b.parts = append(b.parts, "TO", QuoteIdentifier(name))
	}
	return b
}

// As adds an AS clause followed by an already-formatted expression.
func (b *SQLBuilder) As(expression string) *SQLBuilder {
	if expression != "" {
		b.parts = append(b.parts, "AS", expression)
	}
	return b
}

// Raw adds raw SQL text to the builder. Use sparingly for constructs that
// don't fit the fluent pattern.
func (b *SQLBuilder) Raw(sql string) *SQLBuilder {
	if sql != "" {
		b.parts = append(b.parts, sql)
	}
	return b
}

// String builds and returns the final SQL statement with a semicolon.
func (b *SQLBuilder) String() string {
	if len(b.parts) == 0 {
		return ""
	}
	return strings.Join(b.parts, " ") + ";"
}

// StringWithoutSemicolon builds and returns the final SQL statement without a
// semicolon. The clickhouse driver expects single statements in this form.
func (b *SQLBuilder) StringWithoutSemicolon() string {
	return strings.Join(b.parts, " ")
}
