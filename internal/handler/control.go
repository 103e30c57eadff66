package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/leca/autoscale-bat/internal/api"
	"github.com/leca/autoscale-bat/internal/database"
	"github.com/leca/autoscale-bat/internal/model"
)

// serverAttributesRequest maps server IDs to the status each should be
// forced into.
type serverAttributesRequest struct {
	Status map[string]string `json:"status"`
}

var validStatuses = map[string]bool{
	model.ServerStatusBuild:   true,
	model.ServerStatusActive:  true,
	model.ServerStatusError:   true,
	model.ServerStatusDeleted: true,
}

// SetServerAttributes handles POST /mimicctl/nova/{tenant_id}/attributes.
// It is the out-of-band control plane tests use to force servers into
// arbitrary statuses, e.g. pushing a build into ERROR to exercise
// convergence replacement paths.
func (h *Handler) SetServerAttributes(w http.ResponseWriter, r *http.Request) {
	tenantID := api.GetTenantID(r.Context())

	var req serverAttributesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid attributes request: "+err.Error())
		return
	}
	if len(req.Status) == 0 {
		api.BadRequest(w, "status map is required")
		return
	}
	for id, status := range req.Status {
		if !validStatuses[status] {
			api.BadRequest(w, "unknown status "+status+" for server "+id)
			return
		}
	}

	for id, status := range req.Status {
		if err := h.DB.UpdateServerStatus(tenantID, id, status); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				api.NotFound(w, "server "+id+" not found")
				return
			}
			api.InternalError(w, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusCreated)
}

// GetInjectedFile handles GET
// /mimicctl/nova/{tenant_id}/servers/{server_id}/files?path=…
// It returns the raw contents of one personality file as it would have
// landed on the instance, so tests can verify the injection.
func (h *Handler) GetInjectedFile(w http.ResponseWriter, r *http.Request) {
	tenantID := api.GetTenantID(r.Context())
	serverID := chi.URLParam(r, "server_id")
	injectPath := r.URL.Query().Get("path")
	if injectPath == "" {
		api.BadRequest(w, "path query parameter is required")
		return
	}

	exists, err := h.Store.Exists(tenantID, serverID, injectPath)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	if !exists {
		api.NotFound(w, "no injected file "+injectPath+" for server "+serverID)
		return
	}

	f, err := h.Store.Retrieve(tenantID, serverID, injectPath)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	// Headers are already out; a copy failure here can only mean the
	// client went away.
	_, _ = io.Copy(w, f)
}
