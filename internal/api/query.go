package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/querydeck/querydeck/internal/workbench"
)

type runRequest struct {
	Text      string `json:"text"`
	Cursor    int    `json:"cursor"`
	Selection string `json:"selection"`
	TabID     string `json:"tab_id"`
}

type runResponse struct {
	Statement string         `json:"statement"`
	Columns   []string       `json:"columns"`
	Rows      [][]string     `json:"rows"`
	RowCount  int            `json:"row_count"`
	Truncated bool           `json:"truncated"`
	Stats     map[string]any `json:"stats"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}

	request, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}

	result, err := deps.Workbench.Run(r.Context(), workbench.RunRequest{
		Text:      request.Text,
		Cursor:    request.Cursor,
		Selection: request.Selection,
		TabID:     request.TabID,
	})
	if err != nil {
		if errors.Is(err, workbench.ErrEmptyStatement) {
			writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_STATEMENT", "no statement at the cursor position", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{"details": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, runResponse{
		Statement: result.Statement,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		Truncated: result.Truncated,
		Stats: map[string]any{
			"duration_ms": result.Elapsed.Milliseconds(),
		},
	})
}

type statementsResponse struct {
	Statements []statementSegment `json:"statements"`
}

type statementSegment struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
	Blank bool   `json:"blank"`
}

func handleStatements(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}

	var request struct {
		Text string `json:"text"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid statements request body", false, map[string]any{"details": err.Error()})
		return
	}

	segments := deps.Workbench.Statements(request.Text)
	response := statementsResponse{Statements: make([]statementSegment, 0, len(segments))}
	for _, segment := range segments {
		response.Statements = append(response.Statements, statementSegment{
			Start: segment.Start,
			End:   segment.End,
			Text:  segment.Text,
			Blank: strings.TrimSpace(segment.Text) == "",
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func handleListFiles(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}
	infos, err := deps.Workbench.Tables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "FILES_UNAVAILABLE", "failed to list registered files", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": infos})
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (runRequest, bool) {
	var request runRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return runRequest{}, false
	}
	return request, true
}
