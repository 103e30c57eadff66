package cloud

import (
	"context"
	"net/http"

	"github.com/leca/autoscale-bat/internal/model"
)

// LoadBalancers is a load balancer client bound to one tenant's
// resolved endpoint.
type LoadBalancers struct {
	*ServiceClient
}

// NewLoadBalancers binds a load balancer client to a resolved base URL.
func NewLoadBalancers(base, token string) *LoadBalancers {
	return &LoadBalancers{ServiceClient: NewServiceClient(base, token)}
}

// LoadBalancerRequest is the payload for creating a load balancer.
type LoadBalancerRequest struct {
	Name     string `json:"name"`
	Port     int    `json:"port,omitempty"`
	Protocol string `json:"protocol,omitempty"`
}

// NodeRequest is one node in an add-nodes payload.
type NodeRequest struct {
	Address   string `json:"address"`
	Port      int    `json:"port,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Create provisions a load balancer.
func (c *LoadBalancers) Create(ctx context.Context, req LoadBalancerRequest) (*model.LoadBalancer, error) {
	payload := map[string]LoadBalancerRequest{"loadBalancer": req}
	var resp struct {
		LoadBalancer *model.LoadBalancer `json:"loadBalancer"`
	}
	if err := c.do(ctx, http.MethodPost, "loadbalancers", payload, &resp, http.StatusAccepted); err != nil {
		return nil, err
	}
	return resp.LoadBalancer, nil
}

// Get fetches one load balancer.
func (c *LoadBalancers) Get(ctx context.Context, lbID string) (*model.LoadBalancer, error) {
	var resp struct {
		LoadBalancer *model.LoadBalancer `json:"loadBalancer"`
	}
	if err := c.do(ctx, http.MethodGet, "loadbalancers/"+lbID, nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.LoadBalancer, nil
}

// List fetches every load balancer the tenant owns.
func (c *LoadBalancers) List(ctx context.Context) ([]*model.LoadBalancer, error) {
	var resp struct {
		LoadBalancers []*model.LoadBalancer `json:"loadBalancers"`
	}
	if err := c.do(ctx, http.MethodGet, "loadbalancers", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.LoadBalancers, nil
}

// Delete removes a load balancer and its nodes.
func (c *LoadBalancers) Delete(ctx context.Context, lbID string) error {
	return c.do(ctx, http.MethodDelete, "loadbalancers/"+lbID, nil, nil, http.StatusAccepted)
}

// AddNodes attaches backends to a load balancer.
func (c *LoadBalancers) AddNodes(ctx context.Context, lbID string, reqs []NodeRequest) ([]*model.Node, error) {
	payload := map[string][]NodeRequest{"nodes": reqs}
	var resp struct {
		Nodes []*model.Node `json:"nodes"`
	}
	if err := c.do(ctx, http.MethodPost, "loadbalancers/"+lbID+"/nodes", payload, &resp, http.StatusAccepted); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// ListNodes fetches the backends attached to a load balancer.
func (c *LoadBalancers) ListNodes(ctx context.Context, lbID string) ([]*model.Node, error) {
	var resp struct {
		Nodes []*model.Node `json:"nodes"`
	}
	if err := c.do(ctx, http.MethodGet, "loadbalancers/"+lbID+"/nodes", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// RemoveNode detaches one backend.
func (c *LoadBalancers) RemoveNode(ctx context.Context, lbID string, nodeID string) error {
	return c.do(ctx, http.MethodDelete, "loadbalancers/"+lbID+"/nodes/"+nodeID, nil, nil, http.StatusAccepted)
}
