package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Session is the product of one authentication exchange: a token and
// the service catalog visible to that identity.
type Session struct {
	Token    string
	TenantID string
	Catalog  Catalog
}

// AuthError indicates the identity service rejected the credentials or
// tenant.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("identity: authentication failed with status %d: %s", e.StatusCode, e.Body)
}

// Client authenticates against a Keystone v2 identity endpoint and
// caches one session per tenant. A cached session is reused until
// Invalidate is called for that tenant or the cache entry expires.
type Client struct {
	endpoint string
	username string
	password string

	httpClient *http.Client
	sessions   *gocache.Cache
}

// NewClient creates a Client for the given identity endpoint and
// credentials. Sessions are cached for ttl; pass zero for the default
// of ten minutes.
func NewClient(endpoint, username, password string, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		sessions:   gocache.New(ttl, ttl),
	}
}

type authRequest struct {
	Auth struct {
		PasswordCredentials struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"passwordCredentials"`
		TenantID string `json:"tenantId,omitempty"`
	} `json:"auth"`
}

type authResponse struct {
	Access struct {
		Token struct {
			ID     string `json:"id"`
			Tenant struct {
				ID string `json:"id"`
			} `json:"tenant"`
		} `json:"token"`
		ServiceCatalog Catalog `json:"serviceCatalog"`
	} `json:"access"`
}

// Authenticate returns a session for tenantID, reusing a cached one
// when available.
func (c *Client) Authenticate(ctx context.Context, tenantID string) (*Session, error) {
	if cached, ok := c.sessions.Get(tenantID); ok {
		return cached.(*Session), nil
	}

	var reqBody authRequest
	reqBody.Auth.PasswordCredentials.Username = c.username
	reqBody.Auth.PasswordCredentials.Password = c.password
	reqBody.Auth.TenantID = tenantID

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("identity: marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/tokens", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("identity: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: auth request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("identity: read auth response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed authResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("identity: decode auth response: %w", err)
	}
	if parsed.Access.Token.ID == "" {
		return nil, fmt.Errorf("identity: auth response carried no token")
	}

	sess := &Session{
		Token:    parsed.Access.Token.ID,
		TenantID: parsed.Access.Token.Tenant.ID,
		Catalog:  parsed.Access.ServiceCatalog,
	}
	if sess.TenantID == "" {
		sess.TenantID = tenantID
	}
	c.sessions.Set(tenantID, sess, gocache.DefaultExpiration)
	return sess, nil
}

// Invalidate drops the cached session for tenantID so the next
// Authenticate call performs a fresh exchange. Callers use this after a
// 401/403 from a service API.
func (c *Client) Invalidate(tenantID string) {
	c.sessions.Delete(tenantID)
}
