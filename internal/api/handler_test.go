package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlgate/internal/db"
	"sqlgate/internal/gateway"
	"sqlgate/internal/middleware"
	"sqlgate/internal/service/records"
	"sqlgate/internal/statement"
)

type testServer struct {
	handler http.Handler
	gw      *gateway.Gateway
}

func setupTestServer(t *testing.T, dev bool, mutate ...func(*RouterConfig)) *testServer {
	t.Helper()

	target := db.TestTarget(t)
	gw := gateway.New(func(ctx context.Context) (*sql.DB, error) {
		return db.Open(ctx, target)
	}, 5*time.Second, nil)
	t.Cleanup(func() { _ = gw.Close() })

	svc := records.NewService(statement.NewBuilder(target.Dialect), gw, 0, nil)
	h := NewHandler(svc, gw, dev, nil)

	cfg := RouterConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimit:          middleware.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
		MaxBodyBytes:       1 << 20,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &testServer{handler: NewRouter(ctx, h, cfg, nil), gw: gw}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (s *testServer) createUsers(t *testing.T) {
	t.Helper()
	rec, _ := s.do(t, http.MethodPost, "/api/post/add-table",
		`{"tableName":"users","columns":"id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, email TEXT UNIQUE"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestListRecords_EmptyTable(t *testing.T) {
	s := setupTestServer(t, false)
	s.createUsers(t)

	rec, body := s.do(t, http.MethodGet, "/api/get/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, []any{}, body["data"])
}

func TestListRecords_UnknownTable(t *testing.T) {
	s := setupTestServer(t, false)

	rec, body := s.do(t, http.MethodGet, "/api/get/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "ghost")
	assert.NotContains(t, body, "error", "production mode hides error detail")
	assert.NotContains(t, body, "trace")
}

func TestListRecords_InvalidTableName(t *testing.T) {
	s := setupTestServer(t, false)

	rec, body := s.do(t, http.MethodGet, "/api/get/users;DROP", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestCreateRecord_DuplicateUnique(t *testing.T) {
	s := setupTestServer(t, false)
	s.createUsers(t)

	rec, body := s.do(t, http.MethodPost, "/api/post/create/users", `{"name":"A","email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", body["status"])
	assert.InDelta(t, 1, body["insertId"], 0)

	rec, body = s.do(t, http.MethodPost, "/api/post/create/users", `{"name":"B","email":"a@x.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["message"], "email")
}

func TestCreateRecord_BadBodies(t *testing.T) {
	s := setupTestServer(t, false)
	s.createUsers(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty body", body: "", want: http.StatusBadRequest},
		{name: "empty object", body: "{}", want: http.StatusBadRequest},
		{name: "not an object", body: `["a"]`, want: http.StatusBadRequest},
		{name: "malformed", body: `{"name":`, want: http.StatusBadRequest},
		{name: "bad column name", body: `{"na me":"x"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, "/api/post/create/users", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "error", body["status"])
		})
	}
}

func TestCreateRecord_BodyTooLarge(t *testing.T) {
	s := setupTestServer(t, false, func(c *RouterConfig) { c.MaxBodyBytes = 16 })

	rec, body := s.do(t, http.MethodPost, "/api/post/create/users", `{"name":"a much longer name than sixteen bytes"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "request body too large", body["message"])
}

func TestGetRecord(t *testing.T) {
	s := setupTestServer(t, false)
	s.createUsers(t)
	rec, _ := s.do(t, http.MethodPost, "/api/post/create/users", `{"name":"A","email":null}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := s.do(t, http.MethodGet, "/api/get/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A", body["name"], "row is returned without an envelope")
	assert.Contains(t, body, "email")
	assert.Nil(t, body["email"])

	rec, body = s.do(t, http.MethodGet, "/api/get/users/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestUpdateRecord(t *testing.T) {
	s := setupTestServer(t, false)
	s.createUsers(t)
	s.do(t, http.MethodPost, "/api/post/create/users", `{"name":"A"}`)

	rec, body := s.do(t, http.MethodPatch, "/api/update/users/1", `{"name":"B"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Record updated successfully", body["message"])

	_, body = s.do(t, http.MethodGet, "/api/get/users/1", "")
	assert.Equal(t, "B", body["name"])

	rec, body = s.do(t, http.MethodPatch, "/api/update/users/999", `{"name":"C"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "update of a missing id reports success")
	assert.Equal(t, "success", body["status"])

	rec, _ = s.do(t, http.MethodPatch, "/api/update/ghost/1", `{"name":"C"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRecord_Twice(t *testing.T) {
	s := setupTestServer(t, false)
	s.createUsers(t)
	s.do(t, http.MethodPost, "/api/post/create/users", `{"name":"A"}`)

	rec, body := s.do(t, http.MethodDelete, "/api/delete/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Record deleted successfully", body["message"])

	rec, body = s.do(t, http.MethodDelete, "/api/delete/users/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestPageRecords(t *testing.T) {
	s := setupTestServer(t, false)
	s.createUsers(t)
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		rec, _ := s.do(t, http.MethodPost, "/api/post/create/users", `{"name":"`+n+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := s.do(t, http.MethodGet, "/api/get/pagination/users?page=2&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 2)
	assert.Equal(t, "c", data[0].(map[string]any)["name"])
	assert.Equal(t, map[string]any{"page": float64(2), "limit": float64(2)}, body["pagination"])

	rec, body = s.do(t, http.MethodGet, "/api/get/pagination/users?page=9&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No records found", body["message"])
	assert.Equal(t, []any{}, body["data"])

	tests := []struct {
		name  string
		query string
	}{
		{name: "missing both", query: ""},
		{name: "missing limit", query: "?page=1"},
		{name: "missing page", query: "?limit=1"},
		{name: "zero page", query: "?page=0&limit=1"},
		{name: "negative limit", query: "?page=1&limit=-1"},
		{name: "not a number", query: "?page=x&limit=1"},
		{name: "offset overflow", query: "?page=4611686018427387904&limit=4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodGet, "/api/get/pagination/users"+tt.query, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", body["status"])
		})
	}
}

func TestAddTable_Structured(t *testing.T) {
	s := setupTestServer(t, false)

	rec, body := s.do(t, http.MethodPost, "/api/post/add-table",
		`{"tableName":"products","columns":[{"name":"id","type":"INTEGER"},{"name":"title","type":"TEXT"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Table created successfully", body["message"])

	rec, _ = s.do(t, http.MethodPost, "/api/post/add-column/products", `{"columnName":"price","columnType":"REAL"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = s.do(t, http.MethodPost, "/api/post/create/products", `{"id":1,"title":"x","price":2.5}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	_, body = s.do(t, http.MethodGet, "/api/get/products/1", "")
	assert.InDelta(t, 2.5, body["price"], 0.0001)
}

func TestAddTable_Invalid(t *testing.T) {
	s := setupTestServer(t, false)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing table name", body: `{"columns":"id INTEGER"}`},
		{name: "missing columns", body: `{"tableName":"t"}`},
		{name: "empty column list", body: `{"tableName":"t","columns":[]}`},
		{name: "columns wrong shape", body: `{"tableName":"t","columns":42}`},
		{name: "statement terminator", body: `{"tableName":"t","columns":"id INTEGER); DROP TABLE x; --"}`},
		{name: "bad type", body: `{"tableName":"t","columns":[{"name":"id","type":"EVIL()"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, "/api/post/add-table", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "error", body["status"])
		})
	}
}

func TestAddColumn_Errors(t *testing.T) {
	s := setupTestServer(t, false)

	rec, _ := s.do(t, http.MethodPost, "/api/post/add-column/ghost", `{"columnName":"c","columnType":"TEXT"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/api/post/add-column/ghost", `{"columnType":"TEXT"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownEndpoint(t *testing.T) {
	s := setupTestServer(t, false)

	rec, body := s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, map[string]any{"status": "error", "message": "Endpoint not found"}, body)
}

func TestMethodNotAllowed(t *testing.T) {
	s := setupTestServer(t, false)

	rec, body := s.do(t, http.MethodPut, "/api/get/users", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "error", body["status"])
}

func TestDevModeIncludesDetail(t *testing.T) {
	s := setupTestServer(t, true)

	rec, body := s.do(t, http.MethodGet, "/api/get/ghost", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "ghost")
	trace, ok := body["trace"].([]any)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(trace), 2, "trace includes the driver error")
	assert.Contains(t, fmt.Sprint(trace...), "no such table")
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t, false)

	rec, body := s.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"database": "connected"}, body["data"])
}

func TestResponseHeaders(t *testing.T) {
	s := setupTestServer(t, false)

	rec, _ := s.do(t, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouter_RequestIDThroughCORS(t *testing.T) {
	s := setupTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set(middleware.RequestIDHeader, strings.Repeat("a", 128))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.EqualFold(middleware.RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers")),
		"expose header %q", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, strings.Repeat("a", 128), rec.Header().Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(middleware.RequestIDHeader, strings.Repeat("a", 129))
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.NotEqual(t, strings.Repeat("a", 129), rec.Header().Get(middleware.RequestIDHeader))
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodOptions, "/api/get/users", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", middleware.RequestIDHeader)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.True(t, strings.EqualFold(middleware.RequestIDHeader, rec.Header().Get("Access-Control-Allow-Headers")),
		"allow header %q", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestRouter_CompressesJSON(t *testing.T) {
	s := setupTestServer(t, false)
	s.createUsers(t)
	rec, _ := s.do(t, http.MethodPost, "/api/post/create/users", `{"name":"zip"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/get/users", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(zr).Decode(&body))
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	assert.Equal(t, "zip", data[0].(map[string]any)["name"])

	rec, _ = s.do(t, http.MethodGet, "/api/get/users", "")
	assert.Empty(t, rec.Header().Get("Content-Encoding"), "no compression without Accept-Encoding")
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o600))
	s := setupTestServer(t, false, func(c *RouterConfig) { c.StaticDir = dir })

	rec, _ := s.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>hi</h1>")

	rec, body := s.do(t, http.MethodGet, "/missing.js", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Endpoint not found", body["message"])

	rec, _ = s.do(t, http.MethodGet, "/api/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
