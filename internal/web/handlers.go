package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/csvflow/importer/internal/importer"
	"github.com/csvflow/importer/internal/jobs"
	"github.com/csvflow/importer/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// acceptedExtensions are the source file extensions we take. Everything is
// parsed as delimiter-separated text regardless of extension.
var acceptedExtensions = map[string]bool{
	".csv": true,
	".tsv": true,
	".txt": true,
}

// importView is the JSON representation of an Import.
type importView struct {
	ID                uuid.UUID `json:"id"`
	ImportType        string    `json:"importType"`
	Status            string    `json:"status"`
	Records           int       `json:"numberOfRecords"`
	RecordsWithErrors int       `json:"numberOfRecordsWithErrors"`
	HasErrorReport    bool      `json:"hasErrorReport"`
	ImportedBy        string    `json:"importedBy"`
	ImportedFor       string    `json:"importedFor"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toView(imp *importer.Import) importView {
	return importView{
		ID:                imp.ID,
		ImportType:        imp.ImportType,
		Status:            string(imp.Status),
		Records:           imp.Records,
		RecordsWithErrors: imp.RecordsWithErrors,
		HasErrorReport:    imp.ErrorRef != "",
		ImportedBy:        imp.ImportedBy,
		ImportedFor:       imp.ImportedFor,
		CreatedAt:         imp.CreatedAt,
		UpdatedAt:         imp.UpdatedAt,
	}
}

// handleListImportTypes returns the registered import types.
func (s *Server) handleListImportTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"importTypes": importer.Types()})
}

// handleCreateImport accepts a multipart upload, stores the source blob,
// creates the Import in queued, and enqueues its first processing run.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.respondError(w, r, fmt.Errorf("parse upload: %w", err), http.StatusBadRequest)
		return
	}

	importType := r.FormValue("import_type")
	if _, ok := importer.Lookup(importType); !ok {
		s.respondError(w, r, &importer.ConfigurationError{ImportType: importType}, 0)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("import file can't be blank: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !acceptedExtensions[ext] {
		s.respondError(w, r, fmt.Errorf("unsupported file extension %q", ext), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusBadRequest)
		return
	}

	imp := &importer.Import{
		ID:          uuid.New(),
		ImportType:  importType,
		Status:      importer.StatusQueued,
		ImportedBy:  r.FormValue("imported_by"),
		ImportedFor: r.FormValue("imported_for"),
	}
	imp.FileRef = fmt.Sprintf("imports/%s%s", imp.ID, ext)

	ctx := r.Context()
	if err := s.blobs.Put(ctx, imp.FileRef, data); err != nil {
		s.respondError(w, r, fmt.Errorf("store source file: %w", err), 0)
		return
	}
	if err := s.imports.Create(ctx, imp); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if _, err := s.queue.Enqueue(ctx, jobs.KindProcessImport, jobs.ProcessPayload{ImportID: imp.ID}); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	logging.FromContext(ctx).Info("import created",
		"import_id", imp.ID,
		"import_type", importType,
		"file", header.Filename,
		"bytes", len(data),
	)
	respondJSON(w, http.StatusAccepted, toView(imp))
}

// handleProcessImport enqueues a processing run, optionally resuming from
// a later row via the start_row form or query value.
func (s *Server) handleProcessImport(w http.ResponseWriter, r *http.Request) {
	id, err := parseImportID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	startRow := 0
	if raw := r.FormValue("start_row"); raw != "" {
		startRow, err = strconv.Atoi(raw)
		if err != nil || startRow < 0 {
			s.respondError(w, r, fmt.Errorf("start_row must be a non-negative integer, got %q", raw), http.StatusBadRequest)
			return
		}
	}

	ctx := r.Context()
	imp, err := s.imports.Get(ctx, id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if imp.Status.Finished() {
		s.respondError(w, r, fmt.Errorf("import %s is already %s", id, imp.Status), http.StatusConflict)
		return
	}

	if _, err := s.queue.Enqueue(ctx, jobs.KindProcessImport, jobs.ProcessPayload{ImportID: id, StartRow: startRow}); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	logging.FromContext(ctx).Info("import run enqueued", "import_id", id, "start_row", startRow)
	respondJSON(w, http.StatusAccepted, map[string]any{"id": id, "startRow": startRow})
}

// handleDeleteImport initiates batched deletion: the import moves to
// deleting and one delete_batch job is enqueued per batch of tracked
// records.
func (s *Server) handleDeleteImport(w http.ResponseWriter, r *http.Request) {
	id, err := parseImportID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	batches, err := s.deleter.Initiate(ctx, id, s.cfg.Import.DeleteBatchSize)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	for _, batch := range batches {
		if _, err := s.queue.Enqueue(ctx, jobs.KindDeleteBatch, jobs.DeletePayload{ImportID: id, RecordIDs: batch}); err != nil {
			s.respondError(w, r, fmt.Errorf("enqueue delete batch: %w", err), 0)
			return
		}
	}

	logging.FromContext(ctx).Info("import deletion enqueued", "import_id", id, "batches", len(batches))
	respondJSON(w, http.StatusAccepted, map[string]any{"id": id, "batches": len(batches)})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id, err := parseImportID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	imp, err := s.imports.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	respondJSON(w, http.StatusOK, toView(imp))
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	imports, err := s.imports.List(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	views := make([]importView, 0, len(imports))
	for _, imp := range imports {
		views = append(views, toView(imp))
	}
	respondJSON(w, http.StatusOK, map[string]any{"imports": views})
}

// handleDownloadErrors streams the accumulated error report.
func (s *Server) handleDownloadErrors(w http.ResponseWriter, r *http.Request) {
	id, err := parseImportID(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	imp, err := s.imports.Get(ctx, id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if imp.ErrorRef == "" {
		s.respondError(w, r, fmt.Errorf("import %s has no error report", id), http.StatusNotFound)
		return
	}

	data, err := s.blobs.Get(ctx, imp.ErrorRef)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/tab-separated-values")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "import_errors_"+id.String()+".tsv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseImportID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "importID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid import id %q: %w", raw, err)
	}
	return id, nil
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
