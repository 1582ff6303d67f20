package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lychee-technology/sigmaql"
	"go.uber.org/zap"
)

// APIResponse is the standard response format
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Code    string `json:"code,omitempty"`
	Path    string `json:"path,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError maps err to a status code and writes the error envelope.
// Server-side failures are reported without their message.
func writeError(w http.ResponseWriter, err error) error {
	status := statusForError(err)
	resp := APIResponse{Success: false, Error: err.Error()}
	if qe, ok := sigmaql.AsQueryError(err); ok {
		resp.Error = qe.Message
		resp.Kind = string(qe.Kind)
		resp.Code = qe.Code
		resp.Path = qe.Path
	}
	if status == http.StatusInternalServerError {
		resp = APIResponse{Success: false, Error: "internal server error", Kind: string(sigmaql.ErrorKindInternal)}
	}
	return writeJSON(w, status, resp)
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return writeJSON(w, statusCode, APIResponse{Success: true, Data: data})
}

func statusForError(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}

	kind := sigmaql.KindOf(err)
	if kind.IsClientError() {
		return http.StatusBadRequest
	}
	zap.S().Errorw("request failed", "error", err, "kind", kind)
	return http.StatusInternalServerError
}
