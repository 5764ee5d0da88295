package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/querydeck/querydeck/internal/assist"
)

type translateRequest struct {
	Prompt string `json:"prompt"`
}

// handleTranslate turns a natural-language prompt into SQL over the
// currently registered views. It is optional and disabled unless a
// translator is configured.
func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil || deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}

	var request translateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translate request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}

	infos, err := deps.Workbench.Tables(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "FILES_UNAVAILABLE", "failed to list registered files", true, map[string]any{"details": err.Error()})
		return
	}
	tables := make([]assist.TableContext, 0, len(infos))
	for _, info := range infos {
		tables = append(tables, assist.TableContext{TableName: info.Name, Path: info.Path})
	}

	result, err := deps.Translator.Translate(r.Context(), assist.Request{
		Prompt: request.Prompt,
		Tables: tables,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "query translation failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}
