package cloud

import (
	"context"
	"net/http"
	"time"

	"github.com/leca/autoscale-bat/internal/model"
)

// Nova is a compute client bound to one tenant's resolved endpoint.
type Nova struct {
	*ServiceClient
}

// NewNova binds a compute client to a resolved base URL.
func NewNova(base, token string) *Nova {
	return &Nova{ServiceClient: NewServiceClient(base, token)}
}

// CreateServer boots a server from the given template.
func (c *Nova) CreateServer(ctx context.Context, tmpl model.ServerTemplate) (*model.Server, error) {
	req := map[string]model.ServerTemplate{"server": tmpl}
	var resp struct {
		Server *model.Server `json:"server"`
	}
	if err := c.do(ctx, http.MethodPost, "servers", req, &resp, http.StatusAccepted); err != nil {
		return nil, err
	}
	return resp.Server, nil
}

// GetServer fetches one server.
func (c *Nova) GetServer(ctx context.Context, serverID string) (*model.Server, error) {
	var resp struct {
		Server *model.Server `json:"server"`
	}
	if err := c.do(ctx, http.MethodGet, "servers/"+serverID, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Server, nil
}

// ListServers fetches every non-deleted server the tenant owns.
func (c *Nova) ListServers(ctx context.Context) ([]*model.Server, error) {
	var resp struct {
		Servers []*model.Server `json:"servers"`
	}
	if err := c.do(ctx, http.MethodGet, "servers", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Servers, nil
}

// DeleteServer deletes a server.
func (c *Nova) DeleteServer(ctx context.Context, serverID string) error {
	return c.do(ctx, http.MethodDelete, "servers/"+serverID, nil, nil, http.StatusNoContent)
}

// WaitForStatus polls a server until it reaches the wanted status.
// ERROR short-circuits the wait unless ERROR is what was asked for.
func (c *Nova) WaitForStatus(ctx context.Context, serverID, status string, timeout, interval time.Duration) error {
	return poll(ctx, timeout, interval, func() (bool, error) {
		server, err := c.GetServer(ctx, serverID)
		if err != nil {
			return false, err
		}
		if server.Status == status {
			return true, nil
		}
		if server.Status == model.ServerStatusError {
			return false, &APIError{Method: "GET", URL: c.Base() + "/servers/" + serverID, StatusCode: http.StatusOK, Body: "server entered ERROR"}
		}
		return false, nil
	})
}
