package main

import (
	"net/http"

	"github.com/lychee-technology/sigmaql"
)

// handleValidateQuery handles POST /api/v1/query. The validated query is
// echoed back in canonical form.
func (s *Server) handleValidateQuery(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxBodyBytes)
	defer body.Close()

	req, err := sigmaql.DecodeQueryRequestWithMaxDepth(body, s.config.Validation.MaxIncludeDepth)
	if err != nil {
		writeError(w, unwrapBodyError(err))
		return
	}

	validated, err := s.service.Validate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, validated)
}

// handleListEntities handles GET /api/v1/schema
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"entities": s.service.ListEntities(r.Context()),
	})
}

// handleDescribeEntity handles GET /api/v1/schema/{entity}
func (s *Server) handleDescribeEntity(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("entity")
	entity, err := s.service.DescribeEntity(r.Context(), name)
	if err != nil {
		if sigmaql.IsKind(err, sigmaql.ErrorKindUnknownEntity) {
			qe, _ := sigmaql.AsQueryError(err)
			writeJSON(w, http.StatusNotFound, APIResponse{
				Success: false,
				Error:   qe.Message,
				Kind:    string(qe.Kind),
				Code:    qe.Code,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, entity)
}

// handleHealth handles GET /healthz. The registry is immutable once loaded,
// so a running process is always ready.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"entities": len(s.service.ListEntities(r.Context())),
	})
}

// unwrapBodyError surfaces a body size violation hidden behind a payload error.
func unwrapBodyError(err error) error {
	if qe, ok := sigmaql.AsQueryError(err); ok && qe.Cause != nil {
		if _, tooLarge := qe.Cause.(*http.MaxBytesError); tooLarge {
			return qe.Cause
		}
	}
	return err
}
