// Package statement builds parameterized SQL statements for the generic
// record endpoints. Identifiers are validated against an allow-list and
// quoted; values are always bound, never interpolated.
package statement

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sqlgate/internal/domain"
)

// Dialect selects the placeholder syntax of the target database.
type Dialect int

const (
	// DialectQuestion uses positional "?" placeholders (SQLite, DuckDB).
	DialectQuestion Dialect = iota
	// DialectDollar uses numbered "$1" placeholders (PostgreSQL).
	DialectDollar
)

func (d Dialect) String() string {
	if d == DialectDollar {
		return "dollar"
	}
	return "question"
}

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Builder produces statements for one dialect. It holds no state besides the
// dialect and is safe for concurrent use.
type Builder struct {
	dialect Dialect
}

// NewBuilder creates a Builder for the given dialect.
func NewBuilder(d Dialect) *Builder {
	return &Builder{dialect: d}
}

// Dialect returns the builder's placeholder dialect.
func (b *Builder) Dialect() Dialect { return b.dialect }

// params accumulates bound arguments and renders the matching placeholders.
type params struct {
	dialect Dialect
	args    []any
}

func (p *params) bind(v any) string {
	p.args = append(p.args, v)
	if p.dialect == DialectDollar {
		return "$" + strconv.Itoa(len(p.args))
	}
	return "?"
}

func (b *Builder) params() *params {
	return &params{dialect: b.dialect}
}

// SelectTop returns SELECT * FROM <table> LIMIT ?. A non-positive limit
// falls back to domain.DefaultTopLimit.
func (b *Builder) SelectTop(table string, limit int) (domain.Statement, error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, err
	}
	if limit <= 0 {
		limit = domain.DefaultTopLimit
	}
	p := b.params()
	sql := fmt.Sprintf("SELECT * FROM %s LIMIT %s", QuoteIdentifier(table), p.bind(limit))
	return domain.Statement{SQL: sql, Args: p.args, Table: table}, nil
}

// SelectByID returns SELECT * FROM <table> WHERE id = ?.
func (b *Builder) SelectByID(table, id string) (domain.Statement, error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, err
	}
	idArg, err := idValue(id)
	if err != nil {
		return domain.Statement{}, err
	}
	p := b.params()
	sql := fmt.Sprintf("SELECT * FROM %s WHERE id = %s", QuoteIdentifier(table), p.bind(idArg))
	return domain.Statement{SQL: sql, Args: p.args, Table: table}, nil
}

// ParsePage converts raw page/limit query parameters into a PageRequest.
// Absent or non-numeric values are MissingParameter; values below 1, or so
// large that the offset would overflow, are InvalidRange.
func ParsePage(page, limit string) (domain.PageRequest, error) {
	if strings.TrimSpace(page) == "" || strings.TrimSpace(limit) == "" {
		return domain.PageRequest{}, domain.ErrMissingParameter("page and limit parameters are required")
	}
	p, err := parsePageParam("page", page)
	if err != nil {
		return domain.PageRequest{}, err
	}
	l, err := parsePageParam("limit", limit)
	if err != nil {
		return domain.PageRequest{}, err
	}
	req := domain.PageRequest{Page: p, Limit: l}
	if err := req.Validate(); err != nil {
		return domain.PageRequest{}, err
	}
	return req, nil
}

func parsePageParam(name, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if errors.Is(err, strconv.ErrRange) {
		return 0, domain.ErrInvalidRange("%s is out of range", name)
	}
	if err != nil {
		return 0, domain.ErrMissingParameter("%s must be a number", name)
	}
	return n, nil
}

// SelectPage returns SELECT * FROM <table> LIMIT ? OFFSET ? with the offset
// computed as (page-1)*limit.
func (b *Builder) SelectPage(table string, page domain.PageRequest) (domain.Statement, error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, err
	}
	if err := page.Validate(); err != nil {
		return domain.Statement{}, err
	}
	p := b.params()
	sql := fmt.Sprintf("SELECT * FROM %s LIMIT %s OFFSET %s",
		QuoteIdentifier(table), p.bind(page.Limit), p.bind(page.Offset()))
	return domain.Statement{SQL: sql, Args: p.args, Table: table}, nil
}

// Update returns UPDATE <table> SET c1 = ?, ... WHERE id = ?.
func (b *Builder) Update(table, id string, fields domain.FieldSet) (domain.Statement, error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, err
	}
	idArg, err := idValue(id)
	if err != nil {
		return domain.Statement{}, err
	}
	if err := validateFields(fields); err != nil {
		return domain.Statement{}, err
	}

	p := b.params()
	sets := make([]string, len(fields))
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%s = %s", QuoteIdentifier(f.Name), p.bind(f.Value))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s",
		QuoteIdentifier(table), strings.Join(sets, ", "), p.bind(idArg))
	return domain.Statement{SQL: sql, Args: p.args, Table: table}, nil
}

// Insert returns INSERT INTO <table> (c1, ...) VALUES (?, ...). A nil value
// binds SQL NULL.
func (b *Builder) Insert(table string, fields domain.FieldSet) (domain.Statement, error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, err
	}
	if err := validateFields(fields); err != nil {
		return domain.Statement{}, err
	}

	p := b.params()
	cols := make([]string, len(fields))
	marks := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = QuoteIdentifier(f.Name)
		marks[i] = p.bind(f.Value)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdentifier(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
	return domain.Statement{SQL: sql, Args: p.args, Table: table}, nil
}

// Delete returns the existence check and the delete statement for one row.
// The caller runs them in sequence without a surrounding transaction.
func (b *Builder) Delete(table, id string) (check, del domain.Statement, err error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, domain.Statement{}, err
	}
	idArg, err := idValue(id)
	if err != nil {
		return domain.Statement{}, domain.Statement{}, err
	}

	cp := b.params()
	check = domain.Statement{
		SQL:   fmt.Sprintf("SELECT 1 AS found FROM %s WHERE id = %s LIMIT 1", QuoteIdentifier(table), cp.bind(idArg)),
		Args:  cp.args,
		Table: table,
	}
	dp := b.params()
	del = domain.Statement{
		SQL:   fmt.Sprintf("DELETE FROM %s WHERE id = %s", QuoteIdentifier(table), dp.bind(idArg)),
		Args:  dp.args,
		Table: table,
	}
	return check, del, nil
}

// CreateTable returns CREATE TABLE IF NOT EXISTS <table> (<columnsDDL>).
//
// The columns fragment is raw DDL supplied by the caller. Only statement
// terminators and comments are rejected; anything else is passed through to
// the database. Prefer CreateTableColumns, which validates every column.
func (b *Builder) CreateTable(table, columnsDDL string) (domain.Statement, error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, err
	}
	if err := ValidateColumnsDDL(columnsDDL); err != nil {
		return domain.Statement{}, err
	}
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", QuoteIdentifier(table), strings.TrimSpace(columnsDDL))
	return domain.Statement{SQL: sql, Table: table}, nil
}

// CreateTableColumns returns CREATE TABLE IF NOT EXISTS <table> ("c1" T1, ...)
// with every column name and type validated.
func (b *Builder) CreateTableColumns(table string, columns []ColumnDef) (domain.Statement, error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, err
	}
	if len(columns) == 0 {
		return domain.Statement{}, domain.ErrMissingParameter("at least one column is required")
	}

	defs := make([]string, len(columns))
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if err := ValidateIdentifier("column", c.Name); err != nil {
			return domain.Statement{}, err
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return domain.Statement{}, domain.ErrInvalidIdentifier("duplicate column %q", c.Name)
		}
		seen[key] = true
		typ, err := ValidateColumnType(c.Type)
		if err != nil {
			return domain.Statement{}, err
		}
		defs[i] = QuoteIdentifier(c.Name) + " " + typ
	}
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", QuoteIdentifier(table), strings.Join(defs, ", "))
	return domain.Statement{SQL: sql, Table: table}, nil
}

// AddColumn returns ALTER TABLE <table> ADD COLUMN <column> <type>.
func (b *Builder) AddColumn(table, column, columnType string) (domain.Statement, error) {
	if err := ValidateIdentifier("table", table); err != nil {
		return domain.Statement{}, err
	}
	if err := ValidateIdentifier("column", column); err != nil {
		return domain.Statement{}, err
	}
	typ, err := ValidateColumnType(columnType)
	if err != nil {
		return domain.Statement{}, err
	}
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", QuoteIdentifier(table), QuoteIdentifier(column), typ)
	return domain.Statement{SQL: sql, Table: table}, nil
}

func validateFields(fields domain.FieldSet) error {
	if len(fields) == 0 {
		return domain.ErrEmptyPayload("request body must contain at least one field")
	}
	for _, f := range fields {
		if err := ValidateIdentifier("column", f.Name); err != nil {
			return err
		}
	}
	return nil
}

// idValue binds numeric ids as integers so they compare correctly against
// integer primary keys on every driver; other ids bind as text.
func idValue(id string) (any, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrMissingParameter("id parameter is required")
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n, nil
	}
	return id, nil
}
