package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leca/autoscale-bat/internal/config"
	"github.com/leca/autoscale-bat/internal/database"
	"github.com/leca/autoscale-bat/internal/router"
	"github.com/leca/autoscale-bat/internal/storage"
)

const testTenant = "000000"

// testServer creates a simulator HTTP server backed by in-memory
// SQLite and a temporary storage directory. Build delay is zero so
// servers go ACTIVE on the next read.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := database.NewSQLiteDB("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tmpDir, err := os.MkdirTemp("", "mimic-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store := storage.NewFileSystem(tmpDir)

	cfg := &config.MimicConfig{
		BaseURL:           "http://localhost:8900",
		Region:            "ORD",
		BuildDelaySeconds: 0,
	}

	srv := router.New(db, store, cfg)
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts
}

// authenticate performs a Keystone v2 token request for the given
// tenant and returns the issued token.
func authenticate(t *testing.T, ts *httptest.Server, tenantID string) string {
	t.Helper()

	body := map[string]interface{}{
		"auth": map[string]interface{}{
			"passwordCredentials": map[string]string{
				"username": "tester",
				"password": "secret",
			},
			"tenantId": tenantID,
		},
	}
	resp := doJSON(t, ts, http.MethodPost, "/identity/v2.0/tokens", "", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Access struct {
			Token struct {
				ID string `json:"id"`
			} `json:"token"`
		} `json:"access"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Access.Token.ID)
	return out.Access.Token.ID
}

// doJSON issues a request with an optional auth token and JSON body.
func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Auth-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// decode unmarshals a response body into a generic map and closes it.
func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
