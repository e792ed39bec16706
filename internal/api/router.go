package api

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"sqlgate/internal/middleware"
)

// RouterConfig holds the HTTP-level settings of the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RateLimit          middleware.RateLimitConfig
	MaxBodyBytes       int64
	StaticDir          string
}

// NewRouter builds the chi router serving h. ctx bounds background work
// started by middleware (rate-limiter cleanup).
func NewRouter(ctx context.Context, h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(recoverer(h))
	r.Use(chimw.Compress(5))
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RateLimiter(ctx, cfg.RateLimit))
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.MaxBody(cfg.MaxBodyBytes))
	}

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		// The static "pagination" segment takes precedence over {table}.
		r.Get("/get/pagination/{table}", h.PageRecords)
		r.Get("/get/{table}", h.ListRecords)
		r.Get("/get/{table}/{id}", h.GetRecord)
		r.Patch("/update/{table}/{id}", h.UpdateRecord)
		r.Delete("/delete/{table}/{id}", h.DeleteRecord)
		r.Post("/post/create/{table}", h.CreateRecord)
		r.Post("/post/add-table", h.AddTable)
		r.Post("/post/add-column/{table}", h.AddColumn)
	})

	notFound := endpointNotFound
	if cfg.StaticDir != "" {
		notFound = staticOrNotFound(cfg.StaticDir)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Status: statusError, Message: "Method not allowed"})
	})
	return r
}

func endpointNotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Status: statusError, Message: "Endpoint not found"})
}

// staticOrNotFound serves files from dir for GET and HEAD requests outside
// /api, falling back to the JSON 404.
func staticOrNotFound(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if (r.Method != http.MethodGet && r.Method != http.MethodHead) || strings.HasPrefix(r.URL.Path, "/api/") {
			endpointNotFound(w, r)
			return
		}
		name := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		info, err := os.Stat(name)
		if err != nil {
			endpointNotFound(w, r)
			return
		}
		if info.IsDir() {
			if _, err := os.Stat(filepath.Join(name, "index.html")); err != nil {
				endpointNotFound(w, r)
				return
			}
		}
		files.ServeHTTP(w, r)
	}
}

// recoverer turns handler panics into a 500 envelope.
func recoverer(h *Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint // sentinel compared by identity
					panic(rec)
				}
				h.logger.Error("panic in handler",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", middleware.RequestIDFromContext(r.Context()),
				)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Status: statusError, Message: "internal server error"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ReadHeaderTimeout is applied to the http.Server built around the router.
const ReadHeaderTimeout = 10 * time.Second
