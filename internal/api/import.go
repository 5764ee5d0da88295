package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/querydeck/querydeck/internal/collect"
	"github.com/querydeck/querydeck/internal/config"
	"github.com/querydeck/querydeck/internal/source"
	"github.com/querydeck/querydeck/internal/workbench"
)

type importRequest struct {
	Source string `json:"source"`
	Path   string `json:"path"`
}

// handleImport accepts either a multipart upload (a flat file selection) or
// a JSON body naming a server-side source: {"source":"dir","path":...} for a
// local directory, {"source":"s3"} for the configured bucket prefix.
func handleImport(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Workbench == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "IMPORT_NOT_CONFIGURED", "workbench is not configured", false, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, cfg.Import.MaxUploadBytes)

	src, err := importSource(cfg, deps, r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_IMPORT_REQUEST", err.Error(), false, nil)
		return
	}

	summary, err := deps.Workbench.Import(r.Context(), src)
	if err != nil {
		if errors.Is(err, workbench.ErrNoImportableFiles) {
			writeError(r.Context(), w, http.StatusBadRequest, "NO_IMPORTABLE_FILES", "no files with a supported extension were found", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "IMPORT_FAILED", "import failed", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func importSource(cfg config.Config, deps Dependencies, r *http.Request) (source.Source, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("invalid content type: %w", err)
	}

	if mediaType == "multipart/form-data" {
		return uploadSource(r)
	}

	var request importRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		return nil, fmt.Errorf("invalid import request body: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(request.Source)) {
	case "dir":
		if strings.TrimSpace(request.Path) == "" {
			return nil, fmt.Errorf("path is required for a dir import")
		}
		return source.Dir{Path: request.Path}, nil
	case "s3":
		if deps.ObjectSource == nil {
			return nil, fmt.Errorf("object store source is not configured")
		}
		return deps.ObjectSource, nil
	default:
		return nil, fmt.Errorf("unsupported import source %q", request.Source)
	}
}

// uploadSource reads the parts in order and spools them in memory; the
// request body is already capped by MaxBytesReader.
func uploadSource(r *http.Request) (source.Source, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("parse multipart upload: %w", err)
	}

	var selected []collect.SelectedFile
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart upload: %w", err)
		}
		name := partPath(part)
		if name == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		if err != nil {
			return nil, fmt.Errorf("read upload %q: %w", name, err)
		}
		selected = append(selected, collect.SelectedFile{Path: name, Data: data})
	}
	return source.Selection{Files: selected}, nil
}

// partPath recovers the filename parameter exactly as the client sent it.
// Part.FileName strips directories, but directory uploads carry relative
// paths that must stay unique within the batch.
func partPath(part *multipart.Part) string {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(params["filename"])
}
