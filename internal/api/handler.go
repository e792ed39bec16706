package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sqlgate/internal/domain"
	"sqlgate/internal/service/records"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the record endpoints.
type Handler struct {
	records *records.Service
	health  Pinger
	dev     bool
	logger  *slog.Logger
}

// NewHandler creates a Handler. In development mode error responses carry the
// raw error and its wrap chain.
func NewHandler(svc *records.Service, health Pinger, dev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{records: svc, health: health, dev: dev, logger: logger}
}

// ListRecords handles GET /api/get/{table}.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	rows, err := h.records.List(r.Context(), chi.URLParam(r, "table"), 0)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, successResponse{Data: rows})
}

// GetRecord handles GET /api/get/{table}/{id}. The row is returned bare.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	row, err := h.records.Get(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// PageRecords handles GET /api/get/pagination/{table}?page=&limit=.
func (h *Handler) PageRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.records.Page(r.Context(), chi.URLParam(r, "table"), q.Get("page"), q.Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := successResponse{
		Data:       page.Rows,
		Pagination: &paginationInfo{Page: page.Page, Limit: page.Limit},
	}
	if len(page.Rows) == 0 {
		resp.Message = "No records found"
	}
	h.writeSuccess(w, resp)
}

// UpdateRecord handles PATCH /api/update/{table}/{id}.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var fields domain.FieldSet
	if err := decodeBody(r, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.records.Update(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id"), fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, successResponse{Message: "Record updated successfully"})
}

// DeleteRecord handles DELETE /api/delete/{table}/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Delete(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, successResponse{Message: "Record deleted successfully"})
}

// CreateRecord handles POST /api/post/create/{table}.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var fields domain.FieldSet
	if err := decodeBody(r, &fields); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.records.Insert(r.Context(), chi.URLParam(r, "table"), fields)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, successResponse{Message: "Record created successfully", InsertID: res.LastInsertID})
}

type addTableRequest struct {
	TableName string          `json:"tableName"`
	Columns   json.RawMessage `json:"columns"`
}

// AddTable handles POST /api/post/add-table. columns is either a raw column
// definition string or an array of {name, type} objects.
func (h *Handler) AddTable(w http.ResponseWriter, r *http.Request) {
	var body addTableRequest
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	req := records.CreateTableRequest{TableName: body.TableName}
	if err := parseColumns(body.Columns, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.records.CreateTable(r.Context(), req); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, successResponse{Message: "Table created successfully"})
}

func parseColumns(raw json.RawMessage, req *records.CreateTableRequest) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return domain.ErrMissingParameter("columns are required")
	}
	switch raw[0] {
	case '"':
		return json.Unmarshal(raw, &req.ColumnsDDL)
	case '[':
		if err := json.Unmarshal(raw, &req.Columns); err != nil {
			return &requestError{status: http.StatusBadRequest, message: "columns must be a string or a list of {name, type}", err: err}
		}
		if len(req.Columns) == 0 {
			return domain.ErrMissingParameter("columns are required")
		}
		return nil
	default:
		return &requestError{status: http.StatusBadRequest, message: "columns must be a string or a list of {name, type}"}
	}
}

type addColumnRequest struct {
	ColumnName string `json:"columnName"`
	ColumnType string `json:"columnType"`
}

// AddColumn handles POST /api/post/add-column/{table}.
func (h *Handler) AddColumn(w http.ResponseWriter, r *http.Request) {
	var body addColumnRequest
	if err := decodeBody(r, &body); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.records.AddColumn(r.Context(), chi.URLParam(r, "table"), body.ColumnName, body.ColumnType); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, successResponse{Message: "Column added successfully"})
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.health.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Status:  statusError,
			Message: "database unavailable",
		})
		return
	}
	h.writeSuccess(w, successResponse{Data: map[string]string{"database": "connected"}})
}

// decodeBody decodes a JSON request body into v. An absent body is an
// EmptyPayload error; oversized bodies surface as *http.MaxBytesError.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return domain.ErrEmptyPayload("request body is required")
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return &requestError{status: http.StatusBadRequest, message: "could not read request body", err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.ErrEmptyPayload("request body is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &requestError{status: http.StatusBadRequest, message: "request body must be a JSON object", err: err}
	}
	return nil
}
