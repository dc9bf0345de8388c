// Package utils provides small SQL helpers shared by the clickhouse and ledger
// packages.
//
// # Identifier Utilities (identifier.go)
//
// Database and table names come from configuration and are never trusted as
// raw SQL. QuoteIdentifier backtick-quotes a single identifier and escapes any
// backticks inside it; QualifiedName joins a database and a name:
//
//	utils.QuoteIdentifier("analytics")             // `analytics`
//	utils.QualifiedName("analytics", "history")    // `analytics`.`history`
//
// Values are always bound with driver placeholders. QuoteString exists only
// for COMMENT clauses, which ClickHouse does not accept as bound parameters.
//
// # SQLBuilder (sqlbuilder.go)
//
// A fluent builder for the handful of DDL statements the deployer issues
// itself, with ON CLUSTER injection:
//
//	sql := utils.NewSQLBuilder().
//		Rename("DATABASE").
//		Name("analytics_clone").
//		To("analytics").
//		OnCluster("prod").
//		StringWithoutSemicolon()
package utils
