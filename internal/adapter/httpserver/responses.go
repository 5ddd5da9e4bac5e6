// Package httpserver contains HTTP handlers and middleware.
//
// It provides the REST surface of the text evaluator: chunking, analysis
// with a server-sent-events progress stream, and result retrieval/export.
// The package keeps HTTP concerns separate from business logic.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, _ *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrProviderCall):
		code = http.StatusServiceUnavailable
		codeStr = "PROVIDER_CALL_FAILED"
	case errors.Is(err, domain.ErrSchemaInvalid):
		code = http.StatusServiceUnavailable
		codeStr = "SCHEMA_INVALID"
	case errors.Is(err, domain.ErrAllChunksFailed):
		code = http.StatusServiceUnavailable
		codeStr = "ALL_CHUNKS_FAILED"
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}
