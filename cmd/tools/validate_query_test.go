package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeQuery(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "query.json")
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))
	return path
}

func TestValidateQueryAccepted(t *testing.T) {
	path := writeQuery(t, `{"entity":"users","fields":["id"],"include":{"posts":{"fields":["title"]}}}`)

	out, err := executeCommand(t, "validate-query", "--schema", fixtureSchema, path)
	require.NoError(t, err)
	assert.Equal(t, "query OK\n", out)
}

func TestValidateQueryRejectedText(t *testing.T) {
	path := writeQuery(t, `{"entity":"users","fields":["id"],"include":{"posts":{"fields":["id"],"filter":{"title":{"in":[]}}}}}`)

	out, err := executeCommand(t, "validate-query", "--schema", fixtureSchema, path)
	require.EqualError(t, err, "query rejected: invalid_filter_value")
	assert.Equal(t,
		"[invalid_filter_value:INVALID_FILTER_VALUE] at include.posts: operator 'in' requires a non-empty array for field 'title'\n",
		out)
}

func TestValidateQueryRejectedJSON(t *testing.T) {
	path := writeQuery(t, `{"entity":"users","fields":["id"],"include":{"posts":{"fields":["id"],"include":{"likes":{"fields":["id"]}}}}}`)

	out, err := executeCommand(t, "validate-query", "--schema", fixtureSchema, "--format", "json", path)
	require.EqualError(t, err, "query rejected: unknown_relation")

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, map[string]any{
		"success": false,
		"error":   "unknown relation: likes",
		"kind":    "unknown_relation",
		"code":    "UNKNOWN_RELATION",
		"path":    "include.posts",
	}, resp)
}

func TestValidateQueryAcceptedJSON(t *testing.T) {
	path := writeQuery(t, `{"entity":"users","fields":["id"],"limit":5}`)

	out, err := executeCommand(t, "validate-query", "--schema", fixtureSchema, "--format", "json", path)
	require.NoError(t, err)

	var resp struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
		Error   string         `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "users", resp.Data["entity"])
	assert.Equal(t, float64(5), resp.Data["limit"])
}

func TestValidateQueryFromStdinWithDepthBound(t *testing.T) {
	cmd := newRootCommand()
	buf := &strings.Builder{}
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader(`{"entity":"posts","fields":["id"],"include":{"author":{"fields":["id"],"include":{"posts":{"fields":["id"]}}}}}`))
	cmd.SetArgs([]string{"validate-query", "--schema", fixtureSchema, "--max-depth", "1", "-"})

	err := cmd.Execute()
	require.EqualError(t, err, "query rejected: invalid_query")
	assert.Contains(t, buf.String(), "INCLUDE_DEPTH_EXCEEDED")
	assert.Contains(t, buf.String(), "at include.author.include.posts")
}

func TestValidateQueryErrors(t *testing.T) {
	_, err := executeCommand(t, "validate-query", "--schema", fixtureSchema, "--format", "xml", "q.json")
	assert.ErrorContains(t, err, "invalid format")

	_, err = executeCommand(t, "validate-query", "--schema", fixtureSchema, filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "open query file")

	_, err = executeCommand(t, "validate-query", "--schema", filepath.Join(t.TempDir(), "none.json"), "-")
	assert.ErrorContains(t, err, "failed to read schema file")
}
