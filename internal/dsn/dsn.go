// Package dsn parses Cairn's storage connection strings:
// "file:<path>[;cache=<n>][;fsync=<bool>]" (SPEC_FULL.md §2's
// `internal/dsn`). Only the "file:" scheme is accepted; the path runs up
// to the first ";" (or end of string), and everything after it is a
// semicolon-delimited key=value option list, parsed with a small
// participle grammar modelled on the teacher's core/ir reference parser.
package dsn

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	cairnerrors "github.com/cairndb/cairn/core/errors"
)

// DSN is a parsed storage connection string.
type DSN struct {
	Path  string
	Cache int  // page cache size hint; 0 means "use the default"
	Fsync bool // whether the writer fsyncs every commit
}

//nolint:govet // participle grammar tags are not standard struct tags
type optionList struct {
	Options []*option `( ";" @@ )*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type option struct {
	Key   string `@Ident "="`
	Value string `@Ident`
}

var optLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[a-zA-Z0-9_]+`},
	{Name: "Punct", Pattern: `[;=]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var optParser = participle.MustBuild[optionList](
	participle.Lexer(optLexer),
	participle.Elide("Whitespace"),
)

// Parse parses source into a DSN. Fsync defaults to true (spec's
// single-writer durability model) unless explicitly overridden.
func Parse(source string) (*DSN, error) {
	const scheme = "file:"
	if !strings.HasPrefix(source, scheme) {
		return nil, cairnerrors.NewValidation("dsn", "connection string must start with \"file:\": "+source)
	}
	rest := source[len(scheme):]

	path := rest
	optsSource := ""
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		path = rest[:i]
		optsSource = rest[i:]
	}
	if path == "" {
		return nil, cairnerrors.NewValidation("dsn", "connection string is missing a file path: "+source)
	}

	d := &DSN{Path: path, Fsync: true}
	if optsSource == "" {
		return d, nil
	}

	opts, err := optParser.ParseString("", optsSource)
	if err != nil {
		return nil, cairnerrors.NewParse("dsn", source, err.Error())
	}
	for _, o := range opts.Options {
		switch strings.ToLower(o.Key) {
		case "cache":
			n, convErr := parseNonNegInt(o.Value)
			if convErr != nil {
				return nil, cairnerrors.NewValidation("dsn", "cache must be a non-negative integer: "+o.Value)
			}
			d.Cache = n
		case "fsync":
			b, convErr := parseBool(o.Value)
			if convErr != nil {
				return nil, cairnerrors.NewValidation("dsn", "fsync must be true or false: "+o.Value)
			}
			d.Fsync = b
		default:
			return nil, cairnerrors.NewValidation("dsn", "unknown option "+o.Key)
		}
	}
	return d, nil
}

func parseNonNegInt(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, cairnerrors.ErrInvalidInput
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, cairnerrors.ErrInvalidInput
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, cairnerrors.ErrInvalidInput
	}
}
