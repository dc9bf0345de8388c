// Package script splits multi-statement SQL scripts into individual
// statements.
//
// The ClickHouse native protocol executes exactly one statement per query, so
// change scripts are tokenized with a participle lexer that understands
// string literals, quoted identifiers and comments, and are then cut at every
// top-level semicolon. Semicolons inside literals or comments never split a
// statement.
//
//	stmts, err := script.Split(content, script.Options{StripComments: true})
//	if err != nil {
//		return err
//	}
//
//	for _, stmt := range stmts {
//		if err := conn.Exec(ctx, stmt); err != nil {
//			return err
//		}
//	}
//
// Statements that contain nothing but comments and whitespace are dropped
// whether or not comments are stripped, since the server rejects empty
// queries.
package script
