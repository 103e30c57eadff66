// Package endpoint maps logical service names to the base URLs their
// API calls should use, either through the authenticated service
// catalog or through an operator-supplied override.
package endpoint

import (
	"fmt"
	"strings"

	"github.com/leca/autoscale-bat/internal/config"
	"github.com/leca/autoscale-bat/internal/identity"
)

// TenantPlaceholder is the single literal token recognized inside a
// templated override URL. Substitution is plain substring replacement,
// not a templating language, and no other component interprets it.
const TenantPlaceholder = "{0}"

// Service names a logical cloud service the harness talks to. The
// identity service is resolved separately (it is the input to
// authentication, not an output of it) and is never templated.
type Service string

const (
	ServiceAutoscale    Service = "autoscale"
	ServiceNova         Service = "nova"
	ServiceLoadBalancer Service = "load-balancer"
)

// binding is how one logical service gets resolved: by catalog key,
// or short-circuited by an override URL.
type binding struct {
	catalogKey string
	override   string
}

// Resolver resolves logical services against an immutable catalog and
// configuration. It holds no mutable state, so concurrent Resolve
// calls are safe without locking.
type Resolver struct {
	region   string
	catalog  identity.Catalog
	bindings map[Service]binding
}

// New builds a Resolver from the harness configuration and an
// authenticated service catalog. Services that have neither a catalog
// key nor an override configured are rejected here, before any test
// runs, rather than on first use.
func New(cfg *config.Config, catalog identity.Catalog) (*Resolver, error) {
	bindings := map[Service]binding{
		ServiceAutoscale: {
			catalogKey: cfg.AutoscaleServiceName,
			override:   cfg.AutoscaleLocalURL,
		},
		ServiceNova:         {catalogKey: cfg.NovaServiceName},
		ServiceLoadBalancer: {catalogKey: cfg.LoadBalancerServiceName},
	}

	for svc, b := range bindings {
		if b.catalogKey == "" && b.override == "" {
			return nil, &config.ConfigurationError{
				Reason: fmt.Sprintf("service %q has neither a catalog key nor an override URL configured", svc),
			}
		}
	}

	return &Resolver{
		region:   cfg.Region,
		catalog:  catalog,
		bindings: bindings,
	}, nil
}

// Resolve returns the base URL for service in the context of tenantID.
//
// An override, when configured, always wins: it is returned after
// replacing every occurrence of TenantPlaceholder with tenantID (or
// unchanged if it contains none). Otherwise the service's catalog key
// is looked up in the catalog, filtered to the configured region with
// a case-sensitive match. Zero matches and multiple matches are both
// errors; an ambiguous catalog is a data integrity problem, never
// something to silently pick from.
func (r *Resolver) Resolve(service Service, tenantID string) (string, error) {
	b, ok := r.bindings[service]
	if !ok {
		return "", &config.ConfigurationError{
			Reason: fmt.Sprintf("unknown service %q", service),
		}
	}
	if tenantID == "" {
		return "", &config.ConfigurationError{
			Reason: fmt.Sprintf("resolving service %q requires a non-empty tenant ID", service),
		}
	}

	if b.override != "" {
		return strings.ReplaceAll(b.override, TenantPlaceholder, tenantID), nil
	}

	urls := r.catalog.EndpointsFor(b.catalogKey, r.region)
	switch len(urls) {
	case 0:
		return "", &ResolutionError{
			Service:    service,
			CatalogKey: b.catalogKey,
			Region:     r.region,
			Reason:     "no matching catalog entry and no override configured",
		}
	case 1:
		return urls[0], nil
	default:
		return "", &ResolutionError{
			Service:    service,
			CatalogKey: b.catalogKey,
			Region:     r.region,
			Reason:     fmt.Sprintf("%d catalog entries match; catalog data is ambiguous", len(urls)),
		}
	}
}

// ResolutionError means an endpoint could not be determined for a
// service the configuration does know about. It carries everything
// needed to diagnose the misconfiguration.
type ResolutionError struct {
	Service    Service
	CatalogKey string
	Region     string
	Reason     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("endpoint not resolvable for service %q (catalog key %q, region %q): %s",
		e.Service, e.CatalogKey, e.Region, e.Reason)
}
