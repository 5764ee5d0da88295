package api

import (
	"errors"
	"net/http"

	"github.com/querydeck/querydeck/internal/format"
	"github.com/querydeck/querydeck/internal/workbench"
)

// handleExport streams the full result of the addressed statement as
// text/csv. Chunks are flushed to the client as they complete, so a large
// export never materializes server-side.
func handleExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}

	request, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}

	flusher, _ := w.(http.Flusher)
	started := false
	sink := func(chunk []byte) error {
		if !started {
			started = true
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", `attachment; filename="result.csv"`)
			w.WriteHeader(http.StatusOK)
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	_, err := deps.Workbench.ExportCSV(r.Context(), workbench.RunRequest{
		Text:      request.Text,
		Cursor:    request.Cursor,
		Selection: request.Selection,
	}, sink)
	if err != nil {
		// Once a chunk reached the client the status line is gone; the broken
		// download is the only failure signal left.
		if started {
			return
		}
		switch {
		case errors.Is(err, workbench.ErrEmptyStatement):
			writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_STATEMENT", "no statement at the cursor position", false, nil)
		case errors.Is(err, format.ErrNoSchema):
			writeError(r.Context(), w, http.StatusUnprocessableEntity, "NO_RESULT_SCHEMA", "statement produced no result schema to export", false, nil)
		default:
			writeError(r.Context(), w, http.StatusBadRequest, "EXPORT_FAILED", "export failed", false, map[string]any{"details": err.Error()})
		}
	}
}
