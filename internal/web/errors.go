package web

import (
	"errors"
	"net/http"

	"github.com/csvflow/importer/internal/blob"
	"github.com/csvflow/importer/internal/importer"
	"github.com/csvflow/importer/internal/logging"
)

// errorResponse is the JSON envelope for API errors.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError logs the technical error with the request context and writes
// the JSON error envelope. A zero statusCode means "derive from the error
// type".
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	code := "internal"
	if statusCode == 0 {
		statusCode, code = classify(err)
	} else {
		code = codeForStatus(statusCode)
	}

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"code", code,
		"error", err,
	)

	respondJSON(w, statusCode, errorResponse{Error: err.Error(), Code: code})
}

// classify maps pipeline error types to HTTP statuses.
func classify(err error) (int, string) {
	var (
		notFound  *importer.NotFoundError
		configErr *importer.ConfigurationError
		structErr *importer.FileStructureError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &configErr):
		return http.StatusUnprocessableEntity, "unknown_import_type"
	case errors.As(err, &structErr):
		return http.StatusUnprocessableEntity, "bad_file"
	case errors.Is(err, importer.ErrNotDeletable):
		return http.StatusConflict, "not_deletable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return "internal"
	}
}
