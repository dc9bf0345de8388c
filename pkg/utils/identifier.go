package utils

import "strings"

// QuoteIdentifier wraps a single identifier in backticks, escaping any
// backslashes and backticks it contains. Names coming from configuration are
// never split on dots, so "my.db" is quoted as one identifier.
//
// Examples:
//   - "analytics" -> "`analytics`"
//   - "odd`name" -> "`odd\`name`"
//   - "" -> ""
func QuoteIdentifier(name string) string {
	if name == "" {
		return ""
	}

	escaped := strings.ReplaceAll(name, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "`", "\\`")
	return "`" + escaped + "`"
}

// QualifiedName formats database.name with each part quoted. An empty database
// yields just the quoted name.
//
// Examples:
//   - ("analytics", "events") -> "`analytics`.`events`"
//   - ("", "events") -> "`events`"
func QualifiedName(database, name string) string {
	if database == "" {
		return QuoteIdentifier(name)
	}

	return QuoteIdentifier(database) + "." + QuoteIdentifier(name)
}

// QuoteString returns a single-quoted SQL string literal.
func QuoteString(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return "'" + escaped + "'"
}
