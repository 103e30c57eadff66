package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper that returns "ok" when the request reaches the inner handler.
func okHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"ok":true}`)); err != nil {
			t.Errorf("okHandler: failed to write response: %v", err)
		}
	})
}

// ---------- AuthMiddleware ----------

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	handler := AuthMiddleware(NewTokenStore())(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var fault Fault
	err := json.NewDecoder(w.Result().Body).Decode(&fault)
	require.NoError(t, err)
	require.Contains(t, fault, "unauthorized")
	assert.Equal(t, http.StatusUnauthorized, fault["unauthorized"].Code)
}

func TestAuthMiddleware_RejectsUnknownToken(t *testing.T) {
	handler := AuthMiddleware(NewTokenStore())(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Auth-Token", "never-issued")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_AcceptsIssuedToken(t *testing.T) {
	tokens := NewTokenStore()
	tokens.Issue("tok-abc", "000000")
	handler := AuthMiddleware(tokens)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Auth-Token", "tok-abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_RejectsRevokedToken(t *testing.T) {
	tokens := NewTokenStore()
	tokens.Issue("tok-gone", "000000")
	tokens.Revoke("tok-gone")
	handler := AuthMiddleware(tokens)(okHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Auth-Token", "tok-gone")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// ---------- TenantIDMiddleware ----------

func tenantRouter(tokens *TokenStore, inner http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Route("/v1.0/{tenant_id}", func(r chi.Router) {
		r.Use(AuthMiddleware(tokens))
		r.Use(TenantIDMiddleware(tokens))
		r.Get("/groups", inner.ServeHTTP)
	})
	return r
}

func TestTenantIDMiddleware_ExtractsTenantID(t *testing.T) {
	tokens := NewTokenStore()
	tokens.Issue("tok-abc", "000000")

	var captured string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetTenantID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1.0/000000/groups", nil)
	req.Header.Set("X-Auth-Token", "tok-abc")
	w := httptest.NewRecorder()
	tenantRouter(tokens, inner).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "000000", captured)
}

func TestTenantIDMiddleware_RejectsCrossTenantToken(t *testing.T) {
	tokens := NewTokenStore()
	tokens.Issue("tok-abc", "000000")

	req := httptest.NewRequest(http.MethodGet, "/v1.0/000010/groups", nil)
	req.Header.Set("X-Auth-Token", "tok-abc")
	w := httptest.NewRecorder()
	tenantRouter(tokens, okHandler(t)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var fault Fault
	require.NoError(t, json.NewDecoder(w.Result().Body).Decode(&fault))
	assert.Contains(t, fault, "forbidden")
}

func TestGetTenantID_EmptyContext(t *testing.T) {
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	assert.Equal(t, "", GetTenantID(ctx))
}
