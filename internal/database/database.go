package database

import (
	"errors"
	"time"

	"github.com/leca/autoscale-bat/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Database defines the persistence interface for all simulator state.
type Database interface {
	// Scaling groups
	CreateGroup(g *model.ScalingGroup) error
	GetGroup(tenantID, groupID string) (*model.ScalingGroup, error)
	ListGroups(tenantID string) ([]*model.ScalingGroup, error)
	UpdateGroupConfig(tenantID, groupID string, cfg model.GroupConfiguration) error
	UpdateLaunchConfig(tenantID, groupID string, lc model.LaunchConfiguration) error
	SetDesiredCapacity(tenantID, groupID string, desired int) error
	SetGroupPaused(tenantID, groupID string, paused bool) error
	DeleteGroup(tenantID, groupID string) error
	// GroupCapacity reports how many of the group's servers are active
	// and how many are still building.
	GroupCapacity(tenantID, groupID string) (active, pending int, err error)

	// Scaling policies
	CreatePolicy(p *model.ScalingPolicy) error
	GetPolicy(groupID, policyID string) (*model.ScalingPolicy, error)
	ListPolicies(groupID string) ([]*model.ScalingPolicy, error)
	UpdatePolicy(p *model.ScalingPolicy) error
	DeletePolicy(groupID, policyID string) error

	// Webhooks
	CreateWebhook(wh *model.Webhook) error
	ListWebhooks(policyID string) ([]*model.Webhook, error)
	GetWebhookByCapability(capability string) (*model.Webhook, error)
	DeleteWebhook(policyID, webhookID string) error

	// Servers
	CreateServer(srv *model.Server) error
	GetServer(tenantID, serverID string) (*model.Server, error)
	ListServers(tenantID string) ([]*model.Server, error)
	ListGroupServers(tenantID, groupID string) ([]*model.Server, error)
	UpdateServerStatus(tenantID, serverID, status string) error
	DeleteServer(tenantID, serverID string) error
	// ActivateServersBuiltBefore flips BUILD servers created before the
	// cutoff to ACTIVE and reports how many changed.
	ActivateServersBuiltBefore(cutoff time.Time) (int, error)

	// Load balancers
	CreateLoadBalancer(lb *model.LoadBalancer) error
	GetLoadBalancer(tenantID, lbID string) (*model.LoadBalancer, error)
	ListLoadBalancers(tenantID string) ([]*model.LoadBalancer, error)
	DeleteLoadBalancer(tenantID, lbID string) error
	CreateNode(n *model.Node) error
	ListNodes(lbID string) ([]*model.Node, error)
	DeleteNode(lbID, nodeID string) error

	Close() error
}
