package handler

import (
	"time"

	"github.com/leca/autoscale-bat/internal/api"
	"github.com/leca/autoscale-bat/internal/config"
	"github.com/leca/autoscale-bat/internal/database"
	"github.com/leca/autoscale-bat/internal/storage"
)

// Handler holds dependencies for the simulator's HTTP handlers.
type Handler struct {
	DB     database.Database
	Store  storage.Storage
	Config *config.MimicConfig
	Tokens *api.TokenStore
}

// maybeActivate flips servers that have been building longer than the
// configured build delay to ACTIVE. Called on every nova read so the
// simulator needs no background worker.
func (h *Handler) maybeActivate() {
	delay := time.Duration(h.Config.BuildDelaySeconds) * time.Second
	if _, err := h.DB.ActivateServersBuiltBefore(time.Now().Add(-delay)); err != nil {
		// Reads still serve the last known state.
		return
	}
}
