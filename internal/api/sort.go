package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/querydeck/querydeck/internal/tablesort"
)

type sortRequest struct {
	Rows      [][]string `json:"rows"`
	Column    int        `json:"column"`
	Direction string     `json:"direction"`
}

type sortResponse struct {
	Rows      [][]string `json:"rows"`
	Column    int        `json:"column"`
	Direction string     `json:"direction"`
}

// handleSort reorders preview rows by one column. Direction "none" returns
// the rows in their original fetch order.
func handleSort(_ Dependencies, w http.ResponseWriter, r *http.Request) {
	var request sortRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid sort request body", false, map[string]any{"details": err.Error()})
		return
	}

	direction, ok := parseDirection(request.Direction)
	if !ok {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DIRECTION", "direction must be asc, desc, or none", false, nil)
		return
	}
	if request.Column < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_COLUMN", "column must not be negative", false, nil)
		return
	}

	sorted := tablesort.SortRows(request.Rows, request.Column, direction)
	writeJSON(w, http.StatusOK, sortResponse{
		Rows:      sorted,
		Column:    request.Column,
		Direction: request.Direction,
	})
}

func parseDirection(value string) (tablesort.Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "asc", "ascending":
		return tablesort.Ascending, true
	case "desc", "descending":
		return tablesort.Descending, true
	case "", "none", "unsorted":
		return tablesort.Unsorted, true
	default:
		return tablesort.Unsorted, false
	}
}
