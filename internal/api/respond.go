package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type successResponse struct {
	Status     string          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Data       any             `json:"data,omitempty"`
	InsertID   *int64          `json:"insertId,omitempty"`
	Pagination *paginationInfo `json:"pagination,omitempty"`
}

type paginationInfo struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type errorResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Error   string   `json:"error,omitempty"`
	Trace   []string `json:"trace,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, resp successResponse) {
	resp.Status = statusSuccess
	writeJSON(w, http.StatusOK, resp)
}

// writeError is the single place failures become responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	resp := errorResponse{
		Status:  statusError,
		Message: publicMessage(err, status),
	}
	if h.dev {
		resp.Error = err.Error()
		resp.Trace = errorTrace(err)
	}

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	writeJSON(w, status, resp)
}
