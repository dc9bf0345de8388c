package script

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
	"github.com/pkg/errors"
)

// Options controls how a script is split.
type Options struct {
	// StripComments removes line and block comments from the emitted statements.
	StripComments bool
}

var (
	// scriptLexer only needs to find statement boundaries, so everything that
	// is not a literal, comment, or semicolon collapses into Word/Punct.
	// Heredocs are untagged ($$...$$) only.
	scriptLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "Comment", Pattern: `(--|#)[^\r\n]*`},
		{Name: "MultilineComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
		{Name: "Heredoc", Pattern: `\$\$(?s:.*?)\$\$`},
		{Name: "String", Pattern: `'([^'\\]|\\.|'')*'`},
		{Name: "QuotedIdent", Pattern: `"([^"\\]|\\.)*"`},
		{Name: "BacktickIdent", Pattern: "`([^`\\\\]|\\\\.)*`"},
		{Name: "Semicolon", Pattern: `;`},
		{Name: "Whitespace", Pattern: `\s+`},
		{Name: "Word", Pattern: "[^;'\"`\\s/#$-]+"},
		{Name: "Punct", Pattern: `[/$-]`},
	})

	symbols = scriptLexer.Symbols()
)

// Split tokenizes the script and returns its statements in order, without the
// terminating semicolons and with surrounding whitespace trimmed.
//
// Example:
//
//	stmts, _ := Split("CREATE TABLE t (s String) ENGINE = Memory; INSERT INTO t VALUES ('a;b');", Options{})
//	// stmts[0] == "CREATE TABLE t (s String) ENGINE = Memory"
//	// stmts[1] == "INSERT INTO t VALUES ('a;b')"
//
// Returns an error if the script contains an unterminated literal or comment.
func Split(script string, opts Options) ([]string, error) {
	lex, err := scriptLexer.LexString("", script)
	if err != nil {
		return nil, errors.Wrap(err, "failed to tokenize script")
	}

	var (
		statements []string
		current    strings.Builder
		hasSQL     bool
	)

	flush := func() {
		if hasSQL {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
		}
		current.Reset()
		hasSQL = false
	}

	for {
		tok, err := lex.Next()
		if err != nil {
			return nil, errors.Wrap(err, "failed to tokenize script")
		}

		if tok.EOF() {
			break
		}

		switch tok.Type {
		case symbols["Semicolon"]:
			flush()
		case symbols["Comment"]:
			if !opts.StripComments {
				current.WriteString(tok.Value)
			}
		case symbols["MultilineComment"]:
			if opts.StripComments {
				// keep tokens on either side apart
				current.WriteString(" ")
			} else {
				current.WriteString(tok.Value)
			}
		case symbols["Whitespace"]:
			current.WriteString(tok.Value)
		default:
			current.WriteString(tok.Value)
			hasSQL = true
		}
	}

	flush()
	return statements, nil
}
