package gateway

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"sqlgate/internal/domain"
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
)

var (
	// SQLite: "UNIQUE constraint failed: users.email"
	sqliteUniqueRe = regexp.MustCompile(`constraint failed: (?:[A-Za-z0-9_]+\.)?([A-Za-z0-9_]+)`)
	// PostgreSQL detail: `Key (email)=(a@x.com) already exists.`
	pgKeyRe = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// DuckDB: `Duplicate key "email: a@x.com" violates unique constraint`
	duckKeyRe = regexp.MustCompile(`Duplicate key "([A-Za-z0-9_]+):`)
	// SQLite: "no such table: users"; PostgreSQL/DuckDB name the table in quotes.
	tableNameRe = regexp.MustCompile(`(?:no such table: |relation "|Table with name )"?([A-Za-z0-9_.]+)`)
)

// uniquePhrases are the lower-cased message fragments drivers use for
// uniqueness violations.
var uniquePhrases = []string{
	"unique constraint",
	"duplicate key",
	"primary key constraint",
	"violates unique",
}

// Classify maps a raw driver error to a domain error. table is the table the
// failing statement targeted and is used when the driver message does not
// name one.
func Classify(err error, table string) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errTimedOut) {
		return domain.ErrQueryTimeout("query timed out")
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return domain.ErrUniqueViolation(table, submatch(sqliteUniqueRe, err.Error()), err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			field := pgErr.ColumnName
			if field == "" {
				field = submatch(pgKeyRe, pgErr.Detail)
			}
			return domain.ErrUniqueViolation(orDefault(pgErr.TableName, table), field, err)
		case pgUndefinedTable:
			return domain.ErrUnknownTable(orDefault(pgErr.TableName, table), err)
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such table"),
		strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "table with name") && strings.Contains(lower, "does not exist"):
		name := submatch(tableNameRe, msg)
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		return domain.ErrUnknownTable(orDefault(name, table), err)
	case containsAny(lower, uniquePhrases):
		field := submatch(sqliteUniqueRe, msg)
		if field == "" {
			field = submatch(duckKeyRe, msg)
		}
		if field == "" {
			field = submatch(pgKeyRe, msg)
		}
		return domain.ErrUniqueViolation(table, field, err)
	}

	return domain.ErrExecution(err)
}

func submatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
