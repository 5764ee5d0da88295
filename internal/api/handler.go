// Package api exposes the workbench over HTTP: import, query, export, sort,
// tab management, and the embedded UI.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querydeck/querydeck/internal/assist"
	"github.com/querydeck/querydeck/internal/config"
	"github.com/querydeck/querydeck/internal/engine"
	"github.com/querydeck/querydeck/internal/format"
	"github.com/querydeck/querydeck/internal/observability"
	"github.com/querydeck/querydeck/internal/source"
	"github.com/querydeck/querydeck/internal/statement"
	"github.com/querydeck/querydeck/internal/tabs"
	"github.com/querydeck/querydeck/internal/workbench"
)

type ReadinessCheck func(ctx context.Context) error

// Workbench is the service surface the handlers consume.
type Workbench interface {
	Import(ctx context.Context, src source.Source) (workbench.ImportSummary, error)
	Run(ctx context.Context, req workbench.RunRequest) (workbench.RunResult, error)
	ExportCSV(ctx context.Context, req workbench.RunRequest, sink format.ChunkSink) (format.CSVSummary, error)
	Statements(text string) []statement.Segment
	Tables(ctx context.Context) ([]engine.TableInfo, error)
	Deck() *tabs.Deck
	SaveDeck(ctx context.Context) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Workbench         Workbench
	// ObjectSource serves imports that name the configured bucket prefix.
	ObjectSource source.Source
	Translator   assist.Translator
	UI           http.Handler
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/import", func(w http.ResponseWriter, r *http.Request) {
		handleImport(cfg, deps, w, r)
	})
	mux.HandleFunc("GET /v1/files", func(w http.ResponseWriter, r *http.Request) {
		handleListFiles(deps, w, r)
	})
	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	mux.HandleFunc("POST /v1/statements", func(w http.ResponseWriter, r *http.Request) {
		handleStatements(deps, w, r)
	})
	mux.HandleFunc("POST /v1/export", func(w http.ResponseWriter, r *http.Request) {
		handleExport(deps, w, r)
	})
	mux.HandleFunc("POST /v1/sort", func(w http.ResponseWriter, r *http.Request) {
		handleSort(deps, w, r)
	})
	mux.HandleFunc("POST /v1/query/translate", func(w http.ResponseWriter, r *http.Request) {
		handleTranslate(deps, w, r)
	})

	mux.HandleFunc("GET /v1/tabs", func(w http.ResponseWriter, r *http.Request) {
		handleListTabs(deps, w, r)
	})
	mux.HandleFunc("POST /v1/tabs", func(w http.ResponseWriter, r *http.Request) {
		handleOpenTab(deps, w, r)
	})
	mux.HandleFunc("PATCH /v1/tabs/{tab}", func(w http.ResponseWriter, r *http.Request) {
		handlePatchTab(deps, w, r)
	})
	mux.HandleFunc("DELETE /v1/tabs/{tab}", func(w http.ResponseWriter, r *http.Request) {
		handleCloseTab(deps, w, r)
	})
	mux.HandleFunc("POST /v1/tabs/save", func(w http.ResponseWriter, r *http.Request) {
		handleSaveTabs(deps, w, r)
	})

	if deps.UI != nil {
		mux.Handle("GET /{path...}", deps.UI)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckTabStoreDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.TabStore.DSN == "" {
			return errors.New("tab store dsn is not configured")
		}
		return nil
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
