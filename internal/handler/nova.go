package handler

import (
	"bytes"
	"encoding/base64"
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

type createServerRequest struct {
	Server struct {
		Name        string                  `json:"name"`
		FlavorRef   string                  `json:"flavorRef"`
		ImageRef    string                  `json:"imageRef"`
		Personality []model.PersonalityFile `json:"personality"`
	} `json:"server"`
}

// CreateServer handles POST /nova/v2/{tenant_id}/servers.
func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	tenantID := api.GetTenantID(r.Context())

	var req createServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.BadRequest(w, "invalid server request: "+err.Error())
		return
	}
	if req.Server.Name == "" || req.Server.FlavorRef == "" || req.Server.ImageRef == "" {
		api.BadRequest(w, "name, flavorRef and imageRef are required")
		return
	}

	// Validate and decode before touching the database: a rejected
	// request must not leave a server row behind.
	files, err := decodePersonality(req.Server.Personality)
	if err != nil {
		api.BadRequest(w, err.Error())
		return
	}

	now := time.Now().UTC()
	srv := &model.Server{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      req.Server.Name,
		FlavorRef: req.Server.FlavorRef,
		ImageRef:  req.Server.ImageRef,
		Status:    model.ServerStatusBuild,
		Created:   now,
		Updated:   now,
	}
	if err := h.DB.CreateServer(srv); err != nil {
		api.InternalError(w, "failed to create server: "+err.Error())
		return
	}

	if err := h.storePersonality(tenantID, srv.ID, files); err != nil {
		api.InternalError(w, err.Error())
		return
	}

	api.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"server": map[string]interface{}{
			"id":        srv.ID,
			"adminPass": uuid.New().String(),
		},
	})
}

// injectedFile is one decoded personality entry, ready to write.
type injectedFile struct {
	path     string
	contents []byte
}

// decodePersonality validates personality entries and decodes their
// base64 contents. It writes nothing; callers only persist once every
// entry has checked out.
func decodePersonality(files []model.PersonalityFile) ([]injectedFile, error) {
	decoded := make([]injectedFile, 0, len(files))
	for _, f := range files {
		if f.Path == "" {
			return nil, errors.New("personality file path must not be empty")
		}
		contents, err := base64.StdEncoding.DecodeString(f.Contents)
		if err != nil {
			return nil, errors.New("personality contents for " + f.Path + " are not valid base64")
		}
		decoded = append(decoded, injectedFile{path: f.Path, contents: contents})
	}
	return decoded, nil
}

// storePersonality materialises decoded personality files for a server
// so tests can inspect what would have landed on the instance.
func (h *Handler) storePersonality(tenantID, serverID string, files []injectedFile) error {
	for _, f := range files {
		if _, err := h.Store.Store(tenantID, serverID, f.path, bytes.NewReader(f.contents)); err != nil {
			return errors.New("failed to store personality file " + f.path)
		}
	}
	return nil
}

// GetServer handles GET /nova/v2/{tenant_id}/servers/{server_id}.
func (h *Handler) GetServer(w http.ResponseWriter, r *http.Request) {
	h.maybeActivate()
	tenantID := api.GetTenantID(r.Context())
	serverID := chi.URLParam(r, "server_id")

	srv, err := h.DB.GetServer(tenantID, serverID)
	if errors.Is(err, database.ErrNotFound) {
		api.NotFound(w, "server "+serverID+" not found")
		return
	}
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"server": srv})
}

// ListServers handles GET /nova/v2/{tenant_id}/servers.
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	h.maybeActivate()
	tenantID := api.GetTenantID(r.Context())

	servers, err := h.DB.ListServers(tenantID)
	if err != nil {
		api.InternalError(w, err.Error())
		return
	}
	if servers == nil {
		servers = []*model.Server{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{"servers": servers})
}

// DeleteServer handles DELETE /nova/v2/{tenant_id}/servers/{server_id}.
func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	tenantID := api.GetTenantID(r.Context())
	serverID := chi.URLParam(r, "server_id")

	if err := h.DB.DeleteServer(tenantID, serverID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			api.NotFound(w, "server "+serverID+" not found")
			return
		}
		api.InternalError(w, err.Error())
		return
	}
	// Injected files go with the server.
	_ = h.Store.Delete(tenantID, serverID)
	w.WriteHeader(http.StatusNoContent)
}
