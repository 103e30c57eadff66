package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/leca/autoscale-bat/internal/api"
	"github.com/leca/autoscale-bat/internal/database"
	"github.com/leca/autoscale-bat/internal/model"
)

type createGroupRequest struct {
	GroupConfiguration  model.GroupConfiguration  `json:"groupConfiguration"`
	LaunchConfiguration model.LaunchConfiguration `json:"launchConfiguration"`
}

func validateGroupConfig(cfg *model.GroupConfiguration) error {
	if cfg.Name == "" {
		return errors.New("groupConfiguration.name is required")
	}
	if cfg.MinEntities < 0 || cfg.MaxEntities < 0 {
		return errors.New("entity bounds must not be negative")
	}
	if cfg.MaxEntities > 0 && cfg.MinEntities > cfg.MaxEntities {
		return errors.New("minEntities must not exceed maxEntities")
	}
	return nil
}

// CreateGroup handles POST /autoscale/v1.0/{tenant_id}/groups.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	tenantID := api.GetTenantID(r.Context())

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid group request: "+err.Error())
		return
	}
	if err := validateGroupConfig(&req.GroupConfiguration); err != nil {
		api.BadRequest(w, err.Error())
		return
	}
	if req.LaunchConfiguration.Type != "launch_server" {
		api.BadRequest(w, "launchConfiguration.type must be launch_server")
		return
	}
	if req.LaunchConfiguration.Args.Server.FlavorRef == "" || req.LaunchConfiguration.Args.Server.ImageRef == "" {
		api.BadRequest(w, "launch configuration server needs flavorRef and imageRef")
		return
	}

	g := &model.ScalingGroup{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		GroupConfiguration:  req.GroupConfiguration,
		LaunchConfiguration: req.LaunchConfiguration,
		State: model.GroupState{
			DesiredCapacity: req.GroupConfiguration.MinEntities,
		},
		Created: time.Now().UTC(),
	}
	if err := h.DB.CreateGroup(g); err != nil {
		api.InternalError(w, "failed to create group: "+err.Error())
		return
	}
	if err := h.converge(g); err != nil {
		api.InternalError(w, "failed to launch initial servers: "+err.Error())
		return
	}

	h.fillState(g)
	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"group": g})
}

// ListGroups handles GET /autoscale/v1.0/{tenant_id}/groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	h.maybeActivate()
	tenantID := api.GetTenantID(r.Context())

	groups, err := h.DB.ListGroups(tenantID)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	if groups == nil {
		groups = []*model.ScalingGroup{}
	}
	for _, g := range groups {
		h.fillState(g)
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

// GetGroup handles GET /autoscale/v1.0/{tenant_id}/groups/{group_id}.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	h.maybeActivate()
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	h.fillState(g)
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"group": g})
}

// GetGroupState handles GET /autoscale/v1.0/{tenant_id}/groups/{group_id}/state.
func (h *Handler) GetGroupState(w http.ResponseWriter, r *http.Request) {
	h.maybeActivate()
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	h.fillState(g)
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"group": g.State})
}

// GetGroupConfig handles GET .../groups/{group_id}/config.
func (h *Handler) GetGroupConfig(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"groupConfiguration": g.GroupConfiguration})
}

// UpdateGroupConfig handles PUT .../groups/{group_id}/config. Changing
// the entity bounds re-clamps desired capacity and converges.
func (h *Handler) UpdateGroupConfig(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}

	var cfg model.GroupConfiguration
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		api.BadRequest(w, "invalid group configuration: "+err.Error())
		return
	}
	if err := validateGroupConfig(&cfg); err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	if err := h.DB.UpdateGroupConfig(g.TenantID, g.ID, cfg); err != nil {
		api.InternalError(w, err.Error())
		return
	}

	g.GroupConfiguration = cfg
	desired := clamp(g.State.DesiredCapacity, cfg.MinEntities, cfg.MaxEntities)
	if desired != g.State.DesiredCapacity {
		g.State.DesiredCapacity = desired
		if err := h.DB.SetDesiredCapacity(g.TenantID, g.ID, desired); err != nil {
			api.InternalError(w, err.Error())
			return
		}
	}
	if err := h.converge(g); err != nil {
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetLaunchConfig handles GET .../groups/{group_id}/launch.
func (h *Handler) GetLaunchConfig(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"launchConfiguration": g.LaunchConfiguration})
}

// UpdateLaunchConfig handles PUT .../groups/{group_id}/launch. Only
// future launches pick up the new template; running servers keep the
// configuration they were built from.
func (h *Handler) UpdateLaunchConfig(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}

	var lc model.LaunchConfiguration
	if err := json.NewDecoder(r.Body).Decode(&lc); err != nil {
		api.BadRequest(w, "invalid launch configuration: "+err.Error())
		return
	}
	if lc.Type != "launch_server" {
		api.BadRequest(w, "launchConfiguration.type must be launch_server")
		return
	}

	if err := h.DB.UpdateLaunchConfig(g.TenantID, g.ID, lc); err != nil {
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteGroup handles DELETE .../groups/{group_id}. A group that still
// owns servers is only deleted with ?force=true, which scales it to
// zero first.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}

	servers, err := h.DB.ListGroupServers(g.TenantID, g.ID)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	if len(servers) > 0 {
		if r.URL.Query().Get("force") != "true" {
			api.Conflict(w, fmt.Sprintf("group %s still has %d servers; delete with force=true", g.ID, len(servers)))
			return
		}
		for _, srv := range servers {
			if err := h.DB.DeleteServer(g.TenantID, srv.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
				api.InternalError(w, err.Error())
				return
			}
			_ = h.Store.Delete(g.TenantID, srv.ID)
		}
	}

	if err := h.DB.DeleteGroup(g.TenantID, g.ID); err != nil {
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PauseGroup handles POST .../groups/{group_id}/pause.
func (h *Handler) PauseGroup(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// ResumeGroup handles POST .../groups/{group_id}/resume.
func (h *Handler) ResumeGroup(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	if err := h.DB.SetGroupPaused(g.TenantID, g.ID, paused); err != nil {
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Policies
// ---------------------------------------------------------------------------

type policyRequest struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	Cooldown        int    `json:"cooldown"`
	Change          *int   `json:"change,omitempty"`
	ChangePercent   *int   `json:"changePercent,omitempty"`
	DesiredCapacity *int   `json:"desiredCapacity,omitempty"`
}

func (p *policyRequest) validate() error {
	if p.Name == "" {
		return errors.New("policy name is required")
	}
	set := 0
	for _, v := range []*int{p.Change, p.ChangePercent, p.DesiredCapacity} {
		if v != nil {
			set++
		}
	}
	if set != 1 {
		return errors.New("exactly one of change, changePercent, desiredCapacity must be set")
	}
	if p.DesiredCapacity != nil && *p.DesiredCapacity < 0 {
		return errors.New("desiredCapacity must not be negative")
	}
	return nil
}

// CreatePolicies handles POST .../groups/{group_id}/policies. The body
// is a JSON array; every policy is created or none are reported back.
func (h *Handler) CreatePolicies(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}

	var reqs []policyRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		api.BadRequest(w, "invalid policies request: "+err.Error())
		return
	}
	if len(reqs) == 0 {
		api.BadRequest(w, "at least one policy is required")
		return
	}

	created := make([]*model.ScalingPolicy, 0, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		if err := req.validate(); err != nil {
			api.BadRequest(w, err.Error())
			return
		}
		typ := req.Type
		if typ == "" {
			typ = "webhook"
		}
		p := &model.ScalingPolicy{
			ID:              uuid.New().String(),
			GroupID:         g.ID,
			Name:            req.Name,
			Type:            typ,
			Cooldown:        req.Cooldown,
			Change:          req.Change,
			ChangePercent:   req.ChangePercent,
			DesiredCapacity: req.DesiredCapacity,
		}
		if err := h.DB.CreatePolicy(p); err != nil {
			api.InternalError(w, err.Error())
			return
		}
		created = append(created, p)
	}

	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"policies": created})
}

// ListPolicies handles GET .../groups/{group_id}/policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return
	}
	policies, err := h.DB.ListPolicies(g.ID)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	if policies == nil {
		policies = []*model.ScalingPolicy{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"policies": policies})
}

// GetPolicy handles GET .../policies/{policy_id}.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"policy": p})
}

// UpdatePolicy handles PUT .../policies/{policy_id}.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}

	var req policyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid policy request: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	p.Name = req.Name
	if req.Type != "" {
		p.Type = req.Type
	}
	p.Cooldown = req.Cooldown
	p.Change = req.Change
	p.ChangePercent = req.ChangePercent
	p.DesiredCapacity = req.DesiredCapacity

	if err := h.DB.UpdatePolicy(p); err != nil {
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeletePolicy handles DELETE .../policies/{policy_id}.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	g, p, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}
	if err := h.DB.DeletePolicy(g.ID, p.ID); err != nil {
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExecutePolicy handles POST .../policies/{policy_id}/execute.
func (h *Handler) ExecutePolicy(w http.ResponseWriter, r *http.Request) {
	g, p, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}
	if err := h.executePolicy(g, p); err != nil {
		var paused *groupPausedError
		if errors.As(err, &paused) {
			api.Forbidden(w, err.Error())
			return
		}
		api.InternalError(w, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{})
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

type webhookRequest struct {
	Name string `json:"name"`
}

// CreateWebhooks handles POST .../policies/{policy_id}/webhooks. The
// body is a JSON array, mirroring the policies endpoint.
func (h *Handler) CreateWebhooks(w http.ResponseWriter, r *http.Request) {
	g, p, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}

	var reqs []webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		api.BadRequest(w, "invalid webhooks request: "+err.Error())
		return
	}
	if len(reqs) == 0 {
		api.BadRequest(w, "at least one webhook is required")
		return
	}

	created := make([]*model.Webhook, 0, len(reqs))
	for _, req := range reqs {
		if req.Name == "" {
			api.BadRequest(w, "webhook name is required")
			return
		}
		wh := &model.Webhook{
			ID:         uuid.New().String(),
			PolicyID:   p.ID,
			GroupID:    g.ID,
			TenantID:   g.TenantID,
			Name:       req.Name,
			Capability: uuid.New().String(),
		}
		if err := h.DB.CreateWebhook(wh); err != nil {
			api.InternalError(w, err.Error())
			return
		}
		created = append(created, wh)
	}

	api.WriteJSON(w, http.StatusCreated, map[string]interface{}{"webhooks": created})
}

// ListWebhooks handles GET .../policies/{policy_id}/webhooks.
func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}
	hooks, err := h.DB.ListWebhooks(p.ID)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	if hooks == nil {
		hooks = []*model.Webhook{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"webhooks": hooks})
}

// DeleteWebhook handles DELETE .../webhooks/{webhook_id}.
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	_, p, ok := h.loadPolicy(w, r)
	if !ok {
		return
	}
	webhookID := chi.URLParam(r, "webhook_id")
	if err := h.DB.DeleteWebhook(p.ID, webhookID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			api.NotFound(w, "webhook "+webhookID+" not found")
			return
		}
		api.InternalError(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteWebhook handles POST /autoscale/v1.0/execute/1/{capability}.
// Capability URLs are unauthenticated: holding the hash is the
// authorization. To avoid turning the endpoint into an existence
// oracle, every answer is 202 regardless of outcome.
func (h *Handler) ExecuteWebhook(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")

	wh, err := h.DB.GetWebhookByCapability(capability)
	if err != nil {
		api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{})
		return
	}
	g, err := h.DB.GetGroup(wh.TenantID, wh.GroupID)
	if err != nil {
		api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{})
		return
	}
	p, err := h.DB.GetPolicy(wh.GroupID, wh.PolicyID)
	if err != nil {
		api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{})
		return
	}
	_ = h.executePolicy(g, p)
	api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{})
}

// ---------------------------------------------------------------------------
// Convergence
// ---------------------------------------------------------------------------

type groupPausedError struct {
	groupID string
}

func (e *groupPausedError) Error() string {
	return "group " + e.groupID + " is paused; policy execution is rejected"
}

// executePolicy applies a policy to its group's desired capacity,
// clamped to the configured entity bounds, then converges.
func (h *Handler) executePolicy(g *model.ScalingGroup, p *model.ScalingPolicy) error {
	if g.State.Paused {
		return &groupPausedError{groupID: g.ID}
	}

	desired := g.State.DesiredCapacity
	switch {
	case p.Change != nil:
		desired += *p.Change
	case p.ChangePercent != nil:
		delta := desired * *p.ChangePercent / 100
		if delta == 0 {
			// Percentage scaling always moves by at least one entity.
			if *p.ChangePercent > 0 {
				delta = 1
			} else if *p.ChangePercent < 0 {
				delta = -1
			}
		}
		desired += delta
	case p.DesiredCapacity != nil:
		desired = *p.DesiredCapacity
	}

	desired = clamp(desired, g.GroupConfiguration.MinEntities, g.GroupConfiguration.MaxEntities)
	if err := h.DB.SetDesiredCapacity(g.TenantID, g.ID, desired); err != nil {
		return err
	}
	g.State.DesiredCapacity = desired
	return h.converge(g)
}

// converge launches or removes servers until the group's live count
// matches its desired capacity. ERROR servers never count towards
// capacity, so convergence replaces them.
func (h *Handler) converge(g *model.ScalingGroup) error {
	servers, err := h.DB.ListGroupServers(g.TenantID, g.ID)
	if err != nil {
		return err
	}

	var live []*model.Server
	for _, srv := range servers {
		if srv.Status == model.ServerStatusActive || srv.Status == model.ServerStatusBuild {
			live = append(live, srv)
		}
	}

	desired := g.State.DesiredCapacity
	for i := len(live); i < desired; i++ {
		if err := h.launchServer(g); err != nil {
			return err
		}
	}
	// Scale down newest-first.
	for i := len(live); i > desired; i-- {
		victim := live[i-1]
		if err := h.DB.DeleteServer(g.TenantID, victim.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		_ = h.Store.Delete(g.TenantID, victim.ID)
	}
	return nil
}

// launchServer creates one server from the group's launch template.
func (h *Handler) launchServer(g *model.ScalingGroup) error {
	tmpl := g.LaunchConfiguration.Args.Server
	files, err := decodePersonality(tmpl.Personality)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	srv := &model.Server{
		ID:        uuid.New().String(),
		TenantID:  g.TenantID,
		Name:      tmpl.Name + "-" + uuid.New().String()[:8],
		FlavorRef: tmpl.FlavorRef,
		ImageRef:  tmpl.ImageRef,
		Status:    model.ServerStatusBuild,
		GroupID:   g.ID,
		Created:   now,
		Updated:   now,
	}
	if err := h.DB.CreateServer(srv); err != nil {
		return err
	}
	return h.storePersonality(g.TenantID, srv.ID, files)
}

// fillState populates the computed half of a group's state.
func (h *Handler) fillState(g *model.ScalingGroup) {
	active, pending, err := h.DB.GroupCapacity(g.TenantID, g.ID)
	if err != nil {
		return
	}
	g.State.ActiveCapacity = active
	g.State.PendingCapacity = pending
}

// loadGroup fetches the group named by the request, writing the fault
// itself when that fails.
func (h *Handler) loadGroup(w http.ResponseWriter, r *http.Request) (*model.ScalingGroup, bool) {
	tenantID := api.GetTenantID(r.Context())
	groupID := chi.URLParam(r, "group_id")

	g, err := h.DB.GetGroup(tenantID, groupID)
	if errors.Is(err, database.ErrNotFound) {
		api.NotFound(w, "group "+groupID+" not found")
		return nil, false
	}
	if err != nil {
		api.InternalError(w, err.Error())
		return nil, false
	}
	return g, true
}

// loadPolicy fetches the group and policy named by the request.
func (h *Handler) loadPolicy(w http.ResponseWriter, r *http.Request) (*model.ScalingGroup, *model.ScalingPolicy, bool) {
	g, ok := h.loadGroup(w, r)
	if !ok {
		return nil, nil, false
	}
	policyID := chi.URLParam(r, "policy_id")

	p, err := h.DB.GetPolicy(g.ID, policyID)
	if errors.Is(err, database.ErrNotFound) {
		api.NotFound(w, "policy "+policyID+" not found")
		return nil, nil, false
	}
	if err != nil {
		api.InternalError(w, err.Error())
		return nil, nil, false
	}
	return g, p, true
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
