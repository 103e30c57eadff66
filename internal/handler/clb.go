package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/leca/autoscale-bat/internal/api"
	"github.com/leca/autoscale-bat/internal/database"
	"github.com/leca/autoscale-bat/internal/model"
)

type createLBRequest struct {
	LoadBalancer struct {
		Name     string `json:"name"`
		Port     int    `json:"port"`
		Protocol string `json:"protocol"`
	} `json:"loadBalancer"`
}

// CreateLoadBalancer handles POST /clb/v1.0/{tenant_id}/loadbalancers.
func (h *Handler) CreateLoadBalancer(w http.ResponseWriter, r *http.Request) {
	tenantID := api.GetTenantID(r.Context())

	var req createLBRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid load balancer request: "+err.Error())
		return
	}
	if req.LoadBalancer.Name == "" {
		api.BadRequest(w, "loadBalancer.name is required")
		return
	}

	lb := &model.LoadBalancer{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Name:     req.LoadBalancer.Name,
		Port:     req.LoadBalancer.Port,
		Protocol: req.LoadBalancer.Protocol,
		Status:   "ACTIVE",
		Created:  time.Now().UTC(),
	}
	if lb.Port == 0 {
		lb.Port = 80
	}
	if lb.Protocol == "" {
		lb.Protocol = "HTTP"
	}

	if err := h.DB.CreateLoadBalancer(lb); err != nil {
		api.InternalError(w, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"loadBalancer": lb})
}

// ListLoadBalancers handles GET /clb/v1.0/{tenant_id}/loadbalancers.
func (h *Handler) ListLoadBalancers(w http.ResponseWriter, r *http.Request) {
	tenantID := api.GetTenantID(r.Context())

	lbs, err := h.DB.ListLoadBalancers(tenantID)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	if lbs == nil {
		lbs = []*model.LoadBalancer{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"loadBalancers": lbs})
}

// GetLoadBalancer handles GET .../loadbalancers/{lb_id}.
func (h *Handler) GetLoadBalancer(w http.ResponseWriter, r *http.Request) {
	lb, ok := h.loadLB(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"loadBalancer": lb})
}

// DeleteLoadBalancer handles DELETE .../loadbalancers/{lb_id}.
func (h *Handler) DeleteLoadBalancer(w http.ResponseWriter, r *http.Request) {
	lb, ok := h.loadLB(w, r)
	if !ok {
		return
	}
	if err := h.DB.DeleteLoadBalancer(lb.TenantID, lb.ID); err != nil {
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type addNodesRequest struct {
	Nodes []struct {
		Address   string `json:"address"`
		Port      int    `json:"port"`
		Condition string `json:"condition"`
	} `json:"nodes"`
}

// AddNodes handles POST .../loadbalancers/{lb_id}/nodes.
func (h *Handler) AddNodes(w http.ResponseWriter, r *http.Request) {
	lb, ok := h.loadLB(w, r)
	if !ok {
		return
	}

	var req addNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid nodes request: "+err.Error())
		return
	}
	if len(req.Nodes) == 0 {
		api.BadRequest(w, "at least one node is required")
		return
	}

	created := make([]*model.Node, 0, len(req.Nodes))
	for _, n := range req.Nodes {
		if n.Address == "" {
			api.BadRequest(w, "node address is required")
			return
		}
		node := &model.Node{
			ID:             uuid.New().String(),
			LoadBalancerID: lb.ID,
			Address:        n.Address,
			Port:           n.Port,
			Condition:      n.Condition,
		}
		if node.Port == 0 {
			node.Port = 80
		}
		if node.Condition == "" {
			node.Condition = "ENABLED"
		}
		if err := h.DB.CreateNode(node); err != nil {
			api.InternalError(w, err.Error())
			return
		}
		created = append(created, node)
	}
	api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{"nodes": created})
}

// ListNodes handles GET .../loadbalancers/{lb_id}/nodes.
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	lb, ok := h.loadLB(w, r)
	if !ok {
		return
	}
	nodes, err := h.DB.ListNodes(lb.ID)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	if nodes == nil {
		nodes = []*model.Node{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"nodes": nodes})
}

// RemoveNode handles DELETE .../loadbalancers/{lb_id}/nodes/{node_id}.
func (h *Handler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	lb, ok := h.loadLB(w, r)
	if !ok {
		return
	}
	nodeID := chi.URLParam(r, "node_id")
	if err := h.DB.DeleteNode(lb.ID, nodeID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			api.NotFound(w, "node "+nodeID+" not found")
			return
		}
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) loadLB(w http.ResponseWriter, r *http.Request) (*model.LoadBalancer, bool) {
	tenantID := api.GetTenantID(r.Context())
	lbID := chi.URLParam(r, "lb_id")

	lb, err := h.DB.GetLoadBalancer(tenantID, lbID)
	if errors.Is(err, database.ErrNotFound) {
		api.NotFound(w, "load balancer "+lbID+" not found")
		return nil, false
	}
	if err != nil {
		api.InternalError(w, err.Error())
		return nil, false
	}
	return lb, true
}
