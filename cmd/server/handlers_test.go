package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lychee-technology/sigmaql"
	"github.com/lychee-technology/sigmaql/factory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	config := sigmaql.DefaultConfig()
	config.Schema.Path = filepath.Join("..", "..", "testdata", "schema.json")
	config.Server.MaxBodyBytes = 1024

	reg := prometheus.NewRegistry()
	service, err := factory.NewQueryServiceWithConfig(context.Background(), config, reg)
	require.NoError(t, err)

	server := NewServer(service, config, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server.RegisterRoutes()
	return server
}

func doRequest(t *testing.T, server *Server, method, path, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHandleValidateQuerySuccess(t *testing.T) {
	server := newTestServer(t)

	payload := `{
		"entity": "users",
		"fields": ["id", "name"],
		"filter": {"age": {"between": [18, 65]}},
		"include": {"posts": {"fields": ["title"], "orderBy": [{"field": "created_at", "direction": "DESC"}]}}
	}`
	rec, resp := doRequest(t, server, http.MethodPost, "/api/v1/query", payload)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "users", data["entity"])
	assert.Contains(t, data, "include")
}

func TestHandleValidateQueryRejections(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantKind   sigmaql.ErrorKind
		wantPath   string
	}{
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest, wantKind: sigmaql.ErrorKindInvalidQuery},
		{name: "malformed", body: "{", wantStatus: http.StatusBadRequest, wantKind: sigmaql.ErrorKindInvalidQuery},
		{name: "unknown entity", body: `{"entity":"orders","fields":["id"]}`, wantStatus: http.StatusBadRequest, wantKind: sigmaql.ErrorKindUnknownEntity},
		{name: "unknown operator", body: `{"entity":"users","fields":["id"],"filter":{"age":{"like":1}}}`, wantStatus: http.StatusBadRequest, wantKind: sigmaql.ErrorKindInvalidOperator},
		{
			name:       "nested unknown field",
			body:       `{"entity":"users","fields":["id"],"include":{"posts":{"fields":["nope"]}}}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   sigmaql.ErrorKindUnknownField,
			wantPath:   "include.posts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doRequest(t, server, http.MethodPost, "/api/v1/query", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, resp.Success)
			assert.Equal(t, string(tt.wantKind), resp.Kind)
			assert.Equal(t, tt.wantPath, resp.Path)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleValidateQueryBodyTooLarge(t *testing.T) {
	server := newTestServer(t)

	big := `{"entity":"users","fields":["` + strings.Repeat("x", 2048) + `"]}`
	rec, resp := doRequest(t, server, http.MethodPost, "/api/v1/query", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, resp.Success)
}

func TestHandleValidateQueryIncludeDepthBound(t *testing.T) {
	config := sigmaql.DefaultConfig()
	config.Schema.Path = filepath.Join("..", "..", "testdata", "schema.json")
	config.Validation.MaxIncludeDepth = 2

	reg := prometheus.NewRegistry()
	service, err := factory.NewQueryServiceWithConfig(context.Background(), config, reg)
	require.NoError(t, err)
	server := NewServer(service, config, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server.RegisterRoutes()

	var body strings.Builder
	body.WriteString(`{"entity":"users","fields":["id"]`)
	for i := 0; i < 2000; i++ {
		body.WriteString(`,"include":{"posts":{"fields":["id"]`)
	}
	body.WriteString(strings.Repeat("}}", 2000) + "}")

	rec, resp := doRequest(t, server, http.MethodPost, "/api/v1/query", body.String())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(sigmaql.ErrorKindInvalidQuery), resp.Kind)
	assert.Equal(t, sigmaql.ErrCodeDepthExceeded, resp.Code)
	assert.Equal(t, "include.posts.include.posts.include.posts", resp.Path)
}

func TestHandleValidateQueryMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)
	rec, _ := doRequest(t, server, http.MethodGet, "/api/v1/query", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleSchemaEndpoints(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doRequest(t, server, http.MethodGet, "/api/v1/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"entities": []any{"comments", "posts", "profiles", "users"}}, resp.Data)

	rec, resp = doRequest(t, server, http.MethodGet, "/api/v1/schema/posts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "posts", data["table"])
	assert.Contains(t, data["relations"], "author")

	rec, resp = doRequest(t, server, http.MethodGet, "/api/v1/schema/orders", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(sigmaql.ErrorKindUnknownEntity), resp.Kind)
	assert.Equal(t, "unknown entity: orders", resp.Error)
}

func TestHandleHealthAndMetrics(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doRequest(t, server, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp.Data.(map[string]any)["status"])

	doRequest(t, server, http.MethodPost, "/api/v1/query", `{"entity":"users","fields":["id"]}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	server.Handler().ServeHTTP(mrec, req)
	require.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), `sigmaql_validations_total{kind="",outcome="accepted"} 1`)
}

func TestRequestIDMiddleware(t *testing.T) {
	server := newTestServer(t)

	rec, _ := doRequest(t, server, http.MethodGet, "/healthz", "")
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", bytes.NewReader(nil))
	req.Header.Set(requestIDHeader, id)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, id, rec.Header().Get(requestIDHeader))
}

func TestRequestIDMiddlewareForeignIDs(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name   string
		id     string
		reused bool
	}{
		{name: "opaque token", id: "req-42/frontend:a1", reused: true},
		{name: "hex id", id: "a1b2c3d4e5f60718293a4b5c6d7e8f90", reused: true},
		{name: "max length", id: strings.Repeat("x", maxRequestIDLength), reused: true},
		{name: "too long", id: strings.Repeat("x", maxRequestIDLength+1)},
		{name: "contains space", id: "req 42"},
		{name: "non ascii", id: "req-\u00e9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set(requestIDHeader, tt.id)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			got := rec.Header().Get(requestIDHeader)
			if tt.reused {
				assert.Equal(t, tt.id, got)
				return
			}
			assert.NotEqual(t, tt.id, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}
