package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/querydeck/querydeck/internal/tabs"
)

type openTabRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type patchTabRequest struct {
	Name     *string `json:"name"`
	SQLText  *string `json:"sql_text"`
	Activate bool    `json:"activate"`
}

func handleListTabs(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABS_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}
	deck := deps.Workbench.Deck()
	category := tabs.Category(r.URL.Query().Get("category"))
	if category != "" && !category.Valid() {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CATEGORY", "category must be scripts, bookmarks, or templates", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tabs":      deck.List(category),
		"active_id": deck.ActiveID(),
	})
}

func handleOpenTab(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABS_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}
	var request openTabRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid tab request body", false, map[string]any{"details": err.Error()})
		return
	}
	tab := deps.Workbench.Deck().Open(request.Name, tabs.Category(request.Category))
	writeJSON(w, http.StatusCreated, tab)
}

func handlePatchTab(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABS_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}
	id := r.PathValue("tab")

	var request patchTabRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid tab request body", false, map[string]any{"details": err.Error()})
		return
	}

	deck := deps.Workbench.Deck()
	if request.Name != nil {
		if err := deck.Rename(id, *request.Name); err != nil {
			writeTabError(w, r, err)
			return
		}
	}
	if request.SQLText != nil {
		if err := deck.SetSQL(id, *request.SQLText); err != nil {
			writeTabError(w, r, err)
			return
		}
	}
	if request.Activate {
		if err := deck.Activate(id); err != nil {
			writeTabError(w, r, err)
			return
		}
	}

	tab, err := deck.Get(id)
	if err != nil {
		writeTabError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tab)
}

func handleCloseTab(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABS_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}
	deck := deps.Workbench.Deck()
	if err := deck.Close(r.PathValue("tab")); err != nil {
		writeTabError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_id": deck.ActiveID(),
		"tabs":      deck.List(""),
	})
}

func handleSaveTabs(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TABS_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}
	if err := deps.Workbench.SaveDeck(r.Context()); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "TAB_SAVE_FAILED", "failed to persist the tab deck", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved"})
}

func writeTabError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tabs.ErrTabNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "TAB_NOT_FOUND", "tab was not found", false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TAB_REQUEST", err.Error(), false, nil)
}
