// Package records implements the generic table operations behind the HTTP
// endpoints: each call builds a parameterized statement and runs it through
// the execution gateway.
package records

import (
	"context"
	"log/slog"
	"time"

	"sqlgate/internal/domain"
	"sqlgate/internal/statement"
)

// Executor runs built statements. *gateway.Gateway satisfies it.
type Executor interface {
	Query(ctx context.Context, st domain.Statement, timeout time.Duration) ([]domain.Row, error)
	Exec(ctx context.Context, st domain.Statement, timeout time.Duration) (domain.ExecResult, error)
}

// Page is one page of rows.
type Page struct {
	Rows  []domain.Row
	Page  int
	Limit int
}

// CreateTableRequest describes a table to create. Columns (structured) takes
// precedence over ColumnsDDL (raw fragment) when both are set.
type CreateTableRequest struct {
	TableName  string
	ColumnsDDL string
	Columns    []statement.ColumnDef
}

// Service runs record operations against one database.
type Service struct {
	builder *statement.Builder
	exec    Executor
	timeout time.Duration
	logger  *slog.Logger
}

// NewService creates a Service. A zero timeout defers to the executor's
// default.
func NewService(builder *statement.Builder, exec Executor, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{builder: builder, exec: exec, timeout: timeout, logger: logger}
}

// List returns the first rows of table (up to domain.DefaultTopLimit when
// limit is not positive).
func (s *Service) List(ctx context.Context, table string, limit int) ([]domain.Row, error) {
	st, err := s.builder.SelectTop(table, limit)
	if err != nil {
		return nil, err
	}
	return s.exec.Query(ctx, st, s.timeout)
}

// Get returns the row of table whose id matches, or a NotFound error.
func (s *Service) Get(ctx context.Context, table, id string) (domain.Row, error) {
	st, err := s.builder.SelectByID(table, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.Query(ctx, st, s.timeout)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound("record %s not found in %s", id, table)
	}
	return rows[0], nil
}

// Page returns one page of table. page and limit are the raw query values.
func (s *Service) Page(ctx context.Context, table, page, limit string) (*Page, error) {
	req, err := statement.ParsePage(page, limit)
	if err != nil {
		return nil, err
	}
	st, err := s.builder.SelectPage(table, req)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.Query(ctx, st, s.timeout)
	if err != nil {
		return nil, err
	}
	return &Page{Rows: rows, Page: req.Page, Limit: req.Limit}, nil
}

// Update applies fields to the row with the given id. No existence check is
// made: updating a missing id succeeds with zero rows affected.
func (s *Service) Update(ctx context.Context, table, id string, fields domain.FieldSet) (domain.ExecResult, error) {
	st, err := s.builder.Update(table, id, fields)
	if err != nil {
		return domain.ExecResult{}, err
	}
	res, err := s.exec.Exec(ctx, st, s.timeout)
	if err != nil {
		return domain.ExecResult{}, err
	}
	if res.RowsAffected == 0 {
		s.logger.Debug("update matched no rows", "table", table, "id", id)
	}
	return res, nil
}

// Insert creates a row and returns the driver-reported insert id, if any.
func (s *Service) Insert(ctx context.Context, table string, fields domain.FieldSet) (domain.ExecResult, error) {
	st, err := s.builder.Insert(table, fields)
	if err != nil {
		return domain.ExecResult{}, err
	}
	return s.exec.Exec(ctx, st, s.timeout)
}

// Delete removes the row with the given id. A row that is absent at check
// time is NotFound. The check and the delete are separate statements, so a
// row removed concurrently in between yields a successful zero-row delete.
func (s *Service) Delete(ctx context.Context, table, id string) error {
	check, del, err := s.builder.Delete(table, id)
	if err != nil {
		return err
	}
	rows, err := s.exec.Query(ctx, check, s.timeout)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return domain.ErrNotFound("record %s not found in %s", id, table)
	}
	res, err := s.exec.Exec(ctx, del, s.timeout)
	if err != nil {
		return err
	}
	if res.RowsAffected == 0 {
		s.logger.Info("row deleted concurrently", "table", table, "id", id)
	}
	return nil
}

// CreateTable creates a table if it does not already exist.
func (s *Service) CreateTable(ctx context.Context, req CreateTableRequest) error {
	var (
		st  domain.Statement
		err error
	)
	if len(req.Columns) > 0 {
		st, err = s.builder.CreateTableColumns(req.TableName, req.Columns)
	} else {
		st, err = s.builder.CreateTable(req.TableName, req.ColumnsDDL)
	}
	if err != nil {
		return err
	}
	if _, err := s.exec.Exec(ctx, st, s.timeout); err != nil {
		return err
	}
	s.logger.Info("table created", "table", req.TableName)
	return nil
}

// AddColumn adds a column to an existing table.
func (s *Service) AddColumn(ctx context.Context, table, column, columnType string) error {
	st, err := s.builder.AddColumn(table, column, columnType)
	if err != nil {
		return err
	}
	if _, err := s.exec.Exec(ctx, st, s.timeout); err != nil {
		return err
	}
	s.logger.Info("column added", "table", table, "column", column)
	return nil
}
