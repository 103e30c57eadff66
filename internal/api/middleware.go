package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	tokenKey    contextKey = "token"
)

// TokenStore tracks tokens issued by the identity endpoint and which
// tenant each one belongs to.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]string)}
}

// Issue records token as belonging to tenantID.
func (ts *TokenStore) Issue(token, tenantID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tokens[token] = tenantID
}

// TenantFor returns the tenant a token was issued to.
func (ts *TokenStore) TenantFor(token string) (string, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	tenant, ok := ts.tokens[token]
	return tenant, ok
}

// Revoke removes a token.
func (ts *TokenStore) Revoke(token string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.tokens, token)
}

// AuthMiddleware returns middleware that requires a valid X-Auth-Token
// header issued by the identity endpoint.
func AuthMiddleware(tokens *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				Unauthorized(w)
				return
			}
			if _, ok := tokens.TenantFor(token); !ok {
				Unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantIDMiddleware extracts the tenant_id URL parameter, verifies it
// matches the tenant the request's token was issued to, and stores it
// in the request context. A token for a different tenant gets 403, the
// same answer a live deployment gives for cross-tenant access.
func TenantIDMiddleware(tokens *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := chi.URLParam(r, "tenant_id")
			if tenantID == "" {
				BadRequest(w, "tenant_id is required")
				return
			}
			token, _ := r.Context().Value(tokenKey).(string)
			if owner, ok := tokens.TenantFor(token); !ok || owner != tenantID {
				Forbidden(w, "token is not scoped to tenant "+tenantID)
				return
			}
			ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenantID retrieves the tenant_id stored in the context by TenantIDMiddleware.
func GetTenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantIDKey).(string)
	return v
}
