package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/leca/autoscale-bat/internal/api"
)

// tokensRequest is the Keystone v2 authentication request body.
type tokensRequest struct {
	Auth struct {
		PasswordCredentials struct {
			Username string `json:"username"`
			Password string `json:"password"`
		} `json:"passwordCredentials"`
		TenantID string `json:"tenantId"`
	} `json:"auth"`
}

// Authenticate handles POST /identity/v2.0/tokens. Like any local
// simulator it accepts whatever credentials it is given and issues a
// fresh token scoped to the requested tenant. The returned catalog
// publishes nova and load-balancer endpoints only: the autoscale
// service is deliberately absent, so harnesses must reach it through
// their override URL.
func (h *Handler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req tokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid authentication request: "+err.Error())
		return
	}
	if req.Auth.PasswordCredentials.Username == "" || req.Auth.PasswordCredentials.Password == "" {
		api.BadRequest(w, "passwordCredentials with username and password are required")
		return
	}
	tenantID := req.Auth.TenantID
	if tenantID == "" {
		api.BadRequest(w, "tenantId is required")
		return
	}

	token := uuid.New().String()
	h.Tokens.Issue(token, tenantID)

	resp := map[string]interface{}{
		"access": map[string]interface{}{
			"token": map[string]interface{}{
				"id": token,
				"tenant": map[string]interface{}{
					"id": tenantID,
				},
			},
			"serviceCatalog": []map[string]interface{}{
				{
					"name": "cloudServersOpenStack",
					"type": "compute",
					"endpoints": []map[string]interface{}{
						{
							"region":    h.Config.Region,
							"publicURL": h.Config.BaseURL + "/nova/v2/" + tenantID,
						},
					},
				},
				{
					"name": "cloudLoadBalancers",
					"type": "rax:load-balancer",
					"endpoints": []map[string]interface{}{
						{
							"region":    h.Config.Region,
							"publicURL": h.Config.BaseURL + "/clb/v1.0/" + tenantID,
						},
					},
				},
			},
		},
	}
	api.WriteJSON(w, http.StatusOK, resp)
}
