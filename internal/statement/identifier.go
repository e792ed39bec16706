package statement

import (
	"regexp"
	"strings"

	"sqlgate/internal/domain"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// columnTypeRe splits a column type into its base name, an optional
// precision/scale suffix, and trailing column constraints.
//
//	TEXT
//	VARCHAR(255)
//	DECIMAL(10, 2) NOT NULL
//	DOUBLE PRECISION UNIQUE
var columnTypeRe = regexp.MustCompile(`(?i)^([A-Z]+(?: PRECISION| VARYING)?)(\(\s*\d+\s*(?:,\s*\d+\s*)?\))?((?:\s+(?:NOT\s+NULL|NULL|UNIQUE))*)$`)

// allowedTypes is the set of accepted base type names across SQLite, DuckDB
// and PostgreSQL.
var allowedTypes = map[string]bool{
	"INTEGER": true, "INT": true, "BIGINT": true, "SMALLINT": true, "TINYINT": true,
	"SERIAL": true, "BIGSERIAL": true,
	"REAL": true, "FLOAT": true, "DOUBLE": true, "DOUBLE PRECISION": true,
	"NUMERIC": true, "DECIMAL": true,
	"TEXT": true, "VARCHAR": true, "CHAR": true, "CHARACTER": true, "CHARACTER VARYING": true,
	"BLOB": true, "BYTEA": true,
	"BOOLEAN": true, "BOOL": true,
	"DATE": true, "TIME": true, "DATETIME": true, "TIMESTAMP": true, "TIMESTAMPTZ": true,
	"JSON": true, "JSONB": true, "UUID": true,
}

const (
	maxIdentifierLen = 128
	maxColumnTypeLen = 64
)

// ValidateIdentifier checks that name is a safe SQL identifier. Identifiers
// cannot be bound as parameters, so every table and column name passes
// through here before it reaches a statement.
func ValidateIdentifier(kind, name string) error {
	if name == "" {
		return domain.ErrMissingParameter("%s name is required", kind)
	}
	if len(name) > maxIdentifierLen {
		return domain.ErrInvalidIdentifier("%s name must be at most %d characters", kind, maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return domain.ErrInvalidIdentifier("invalid %s name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", kind, name)
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ValidateColumnType checks typeName against the allowed type names and
// returns its normalized (upper-cased, single-spaced) form.
func ValidateColumnType(typeName string) (string, error) {
	typeName = strings.Join(strings.Fields(typeName), " ")
	if typeName == "" {
		return "", domain.ErrMissingParameter("column type is required")
	}
	if len(typeName) > maxColumnTypeLen {
		return "", domain.ErrInvalidIdentifier("column type must be at most %d characters", maxColumnTypeLen)
	}
	m := columnTypeRe.FindStringSubmatch(typeName)
	if m == nil || !allowedTypes[strings.ToUpper(m[1])] {
		return "", domain.ErrInvalidIdentifier("column type %q is not supported", typeName)
	}
	return strings.ToUpper(typeName), nil
}

// ValidateColumnsDDL applies the minimal check made to a raw column
// definition fragment: it must be non-empty and must not terminate the
// statement or open a comment. The fragment is otherwise trusted.
func ValidateColumnsDDL(ddl string) error {
	if strings.TrimSpace(ddl) == "" {
		return domain.ErrMissingParameter("columns are required")
	}
	if strings.Contains(ddl, ";") || strings.Contains(ddl, "--") || strings.Contains(ddl, "/*") {
		return domain.ErrInvalidIdentifier("columns definition contains forbidden characters")
	}
	if strings.Count(ddl, "(") != strings.Count(ddl, ")") {
		return domain.ErrInvalidIdentifier("columns definition has unbalanced parentheses")
	}
	return nil
}
