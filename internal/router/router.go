package router

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leca/autoscale-bat/internal/api"
	"github.com/leca/autoscale-bat/internal/config"
	"github.com/leca/autoscale-bat/internal/database"
	"github.com/leca/autoscale-bat/internal/handler"
	"github.com/leca/autoscale-bat/internal/storage"
)

// Server holds the simulator dependencies and HTTP router.
type Server struct {
	DB     database.Database
	Store  storage.Storage
	Config *config.MimicConfig
	Tokens *api.TokenStore
	Router chi.Router
}

// New creates a new Server with a fully configured chi router.
func New(db database.Database, store storage.Storage, cfg *config.MimicConfig) *Server {
	tokens := api.NewTokenStore()
	s := &Server{DB: db, Store: store, Config: cfg, Tokens: tokens}

	h := &handler.Handler{
		DB:     db,
		Store:  store,
		Config: cfg,
		Tokens: tokens,
	}

	r := chi.NewRouter()

	// CORS — must be before other middleware to handle preflight OPTIONS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check (no auth required).
	r.Get("/health", s.Health)

	// Identity (no auth required; it is where tokens come from).
	r.Post("/identity/v2.0/tokens", h.Authenticate)

	// Nova compute API.
	r.Route("/nova/v2/{tenant_id}", func(r chi.Router) {
		r.Use(api.AuthMiddleware(tokens))
		r.Use(api.TenantIDMiddleware(tokens))

		r.Post("/servers", h.CreateServer)
		r.Get("/servers", h.ListServers)
		r.Get("/servers/{server_id}", h.GetServer)
		r.Delete("/servers/{server_id}", h.DeleteServer)
	})

	// Cloud load balancer API.
	r.Route("/clb/v1.0/{tenant_id}", func(r chi.Router) {
		r.Use(api.AuthMiddleware(tokens))
		r.Use(api.TenantIDMiddleware(tokens))

		r.Post("/loadbalancers", h.CreateLoadBalancer)
		r.Get("/loadbalancers", h.ListLoadBalancers)
		r.Get("/loadbalancers/{lb_id}", h.GetLoadBalancer)
		r.Delete("/loadbalancers/{lb_id}", h.DeleteLoadBalancer)
		r.Post("/loadbalancers/{lb_id}/nodes", h.AddNodes)
		r.Get("/loadbalancers/{lb_id}/nodes", h.ListNodes)
		r.Delete("/loadbalancers/{lb_id}/nodes/{node_id}", h.RemoveNode)
	})

	// Autoscale API. Not published in the service catalog; harnesses
	// reach it through their override URL.
	r.Route("/autoscale/v1.0", func(r chi.Router) {
		// Capability execution is anonymous by design.
		r.Post("/execute/1/{capability}", h.ExecuteWebhook)

		r.Route("/{tenant_id}", func(r chi.Router) {
			r.Use(api.AuthMiddleware(tokens))
			r.Use(api.TenantIDMiddleware(tokens))

			r.Post("/groups", h.CreateGroup)
			r.Get("/groups", h.ListGroups)

			r.Route("/groups/{group_id}", func(r chi.Router) {
				r.Get("/", h.GetGroup)
				r.Delete("/", h.DeleteGroup)
				r.Get("/state", h.GetGroupState)
				r.Get("/config", h.GetGroupConfig)
				r.Put("/config", h.UpdateGroupConfig)
				r.Get("/launch", h.GetLaunchConfig)
				r.Put("/launch", h.UpdateLaunchConfig)
				r.Post("/pause", h.PauseGroup)
				r.Post("/resume", h.ResumeGroup)

				r.Post("/policies", h.CreatePolicies)
				r.Get("/policies", h.ListPolicies)
				r.Route("/policies/{policy_id}", func(r chi.Router) {
					r.Get("/", h.GetPolicy)
					r.Put("/", h.UpdatePolicy)
					r.Delete("/", h.DeletePolicy)
					r.Post("/execute", h.ExecutePolicy)
					r.Post("/webhooks", h.CreateWebhooks)
					r.Get("/webhooks", h.ListWebhooks)
					r.Delete("/webhooks/{webhook_id}", h.DeleteWebhook)
				})
			})
		})
	})

	// Mimic control plane: force server statuses out-of-band.
	r.Route("/mimicctl/nova/{tenant_id}", func(r chi.Router) {
		r.Use(api.AuthMiddleware(tokens))
		r.Use(api.TenantIDMiddleware(tokens))

		r.Post("/attributes", h.SetServerAttributes)
		r.Get("/servers/{server_id}/files", h.GetInjectedFile)
	})

	s.Router = r
	return s
}

// Health returns a simple health-check response.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		log.Printf("Health: failed to encode response: %v", err)
	}
}
