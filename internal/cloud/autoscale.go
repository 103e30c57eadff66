package cloud

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/leca/autoscale-bat/internal/model"
)

// Autoscale is a client for the autoscale API bound to one tenant's
// resolved endpoint.
type Autoscale struct {
	*ServiceClient
}

// NewAutoscale binds an autoscale client to a resolved base URL. The
// URL is expected to be tenant-scoped, i.e. the product of resolving
// the autoscale service for one tenant.
func NewAutoscale(base, token string) *Autoscale {
	return &Autoscale{ServiceClient: NewServiceClient(base, token)}
}

// GroupRequest is the payload for creating a scaling group.
type GroupRequest struct {
	GroupConfiguration  model.GroupConfiguration  `json:"groupConfiguration"`
	LaunchConfiguration model.LaunchConfiguration `json:"launchConfiguration"`
}

// PolicyRequest is one policy in a create-policies payload.
type PolicyRequest struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	Cooldown        int    `json:"cooldown"`
	Change          *int   `json:"change,omitempty"`
	ChangePercent   *int   `json:"changePercent,omitempty"`
	DesiredCapacity *int   `json:"desiredCapacity,omitempty"`
}

// CreateGroup creates a scaling group and returns the server's view of it.
func (c *Autoscale) CreateGroup(ctx context.Context, req GroupRequest) (*model.ScalingGroup, error) {
	var resp struct {
		Group *model.ScalingGroup `json:"group"`
	}
	if err := c.do(ctx, http.MethodPost, "groups", req, &resp, http.StatusCreated); err != nil {
		return nil, err
	}
	return resp.Group, nil
}

// GetGroup fetches one scaling group.
func (c *Autoscale) GetGroup(ctx context.Context, groupID string) (*model.ScalingGroup, error) {
	var resp struct {
		Group *model.ScalingGroup `json:"group"`
	}
	if err := c.do(ctx, http.MethodGet, "groups/"+groupID, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Group, nil
}

// ListGroups fetches every scaling group the tenant owns.
func (c *Autoscale) ListGroups(ctx context.Context) ([]*model.ScalingGroup, error) {
	var resp struct {
		Groups []*model.ScalingGroup `json:"groups"`
	}
	if err := c.do(ctx, http.MethodGet, "groups", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Groups, nil
}

// GetState fetches a group's convergence state.
func (c *Autoscale) GetState(ctx context.Context, groupID string) (*model.GroupState, error) {
	var resp struct {
		Group *model.GroupState `json:"group"`
	}
	if err := c.do(ctx, http.MethodGet, "groups/"+groupID+"/state", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Group, nil
}

// DeleteGroup deletes a group; force also deletes its servers.
func (c *Autoscale) DeleteGroup(ctx context.Context, groupID string, force bool) error {
	path := "groups/" + groupID
	if force {
		path += "?force=true"
	}
	return c.do(ctx, http.MethodDelete, path, nil, nil, http.StatusNoContent)
}

// UpdateGroupConfig replaces a group's configuration.
func (c *Autoscale) UpdateGroupConfig(ctx context.Context, groupID string, cfg model.GroupConfiguration) error {
	return c.do(ctx, http.MethodPut, "groups/"+groupID+"/config", cfg, nil, http.StatusNoContent)
}

// PauseGroup suspends policy execution for a group.
func (c *Autoscale) PauseGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "groups/"+groupID+"/pause", nil, nil, http.StatusNoContent)
}

// ResumeGroup re-enables policy execution for a group.
func (c *Autoscale) ResumeGroup(ctx context.Context, groupID string) error {
	return c.do(ctx, http.MethodPost, "groups/"+groupID+"/resume", nil, nil, http.StatusNoContent)
}

// CreatePolicies creates the given policies on a group.
func (c *Autoscale) CreatePolicies(ctx context.Context, groupID string, reqs []PolicyRequest) ([]*model.ScalingPolicy, error) {
	var resp struct {
		Policies []*model.ScalingPolicy `json:"policies"`
	}
	if err := c.do(ctx, http.MethodPost, "groups/"+groupID+"/policies", reqs, &resp, http.StatusCreated); err != nil {
		return nil, err
	}
	return resp.Policies, nil
}

// ExecutePolicy triggers a policy.
func (c *Autoscale) ExecutePolicy(ctx context.Context, groupID, policyID string) error {
	return c.do(ctx, http.MethodPost, "groups/"+groupID+"/policies/"+policyID+"/execute", nil, nil, http.StatusAccepted)
}

// CreateWebhooks creates named webhooks on a policy.
func (c *Autoscale) CreateWebhooks(ctx context.Context, groupID, policyID string, names ...string) ([]*model.Webhook, error) {
	reqs := make([]map[string]string, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, map[string]string{"name": name})
	}
	var resp struct {
		Webhooks []*model.Webhook `json:"webhooks"`
	}
	path := "groups/" + groupID + "/policies/" + policyID + "/webhooks"
	if err := c.do(ctx, http.MethodPost, path, reqs, &resp, http.StatusCreated); err != nil {
		return nil, err
	}
	return resp.Webhooks, nil
}

// ExecuteCapability triggers a webhook anonymously through its
// capability hash. The execute endpoint lives at the service root, one
// level above the tenant-scoped base this client is bound to.
func (c *Autoscale) ExecuteCapability(ctx context.Context, capability string) error {
	base := c.Base()
	root := base[:strings.LastIndex(base, "/")]
	anon := NewServiceClient(root, "")
	return anon.do(ctx, http.MethodPost, "execute/1/"+capability, nil, nil, http.StatusAccepted)
}

// WaitForCapacity polls a group's state until its active capacity
// reaches want with nothing pending. timeout is typically the
// operator-configured build timeout.
func (c *Autoscale) WaitForCapacity(ctx context.Context, groupID string, want int, timeout, interval time.Duration) error {
	var last *model.GroupState
	err := poll(ctx, timeout, interval, func() (bool, error) {
		state, err := c.GetState(ctx, groupID)
		if err != nil {
			return false, err
		}
		last = state
		return state.ActiveCapacity == want && state.PendingCapacity == 0, nil
	})
	if err != nil && last != nil {
		return fmt.Errorf("group %s: want %d active servers, last saw %d active / %d pending: %w",
			groupID, want, last.ActiveCapacity, last.PendingCapacity, err)
	}
	return err
}
