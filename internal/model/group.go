package model

import "time"

// ScalingGroup is one autoscaling group owned by a tenant.
type ScalingGroup struct {
	ID                  string              `json:"id"`
	TenantID            string              `json:"-"`
	GroupConfiguration  GroupConfiguration  `json:"groupConfiguration"`
	LaunchConfiguration LaunchConfiguration `json:"launchConfiguration"`
	State               GroupState          `json:"state"`
	Created             time.Time           `json:"-"`
}

// GroupConfiguration holds the scaling bounds and cooldown for a group.
type GroupConfiguration struct {
	Name        string            `json:"name"`
	Cooldown    int               `json:"cooldown"`
	MinEntities int               `json:"minEntities"`
	MaxEntities int               `json:"maxEntities"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// LaunchConfiguration describes what the group launches when it scales
// up. Only the launch_server type is supported.
type LaunchConfiguration struct {
	Type string     `json:"type"`
	Args LaunchArgs `json:"args"`
}

// LaunchArgs carries the server template for launch_server groups.
type LaunchArgs struct {
	Server ServerTemplate `json:"server"`
}

// ServerTemplate is the nova create-server request a group repeats for
// every entity it launches.
type ServerTemplate struct {
	Name        string            `json:"name"`
	FlavorRef   string            `json:"flavorRef"`
	ImageRef    string            `json:"imageRef"`
	Personality []PersonalityFile `json:"personality,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PersonalityFile is a file injected into a server at build time.
// Contents are base64 per the nova API.
type PersonalityFile struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// GroupState is the convergence view of a group: how many entities it
// wants and how many it has.
type GroupState struct {
	DesiredCapacity int  `json:"desiredCapacity"`
	ActiveCapacity  int  `json:"activeCapacity"`
	PendingCapacity int  `json:"pendingCapacity"`
	Paused          bool `json:"paused"`
}

// ScalingPolicy adjusts a group's desired capacity when executed.
// Exactly one of Change, ChangePercent, DesiredCapacity is meaningful,
// selected by which was supplied at creation.
type ScalingPolicy struct {
	ID              string `json:"id"`
	GroupID         string `json:"-"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	Cooldown        int    `json:"cooldown"`
	Change          *int   `json:"change,omitempty"`
	ChangePercent   *int   `json:"changePercent,omitempty"`
	DesiredCapacity *int   `json:"desiredCapacity,omitempty"`
}

// Webhook is an unauthenticated capability URL that executes its
// policy. Tenant and group are recorded so capability execution can
// find its way back without a token.
type Webhook struct {
	ID         string `json:"id"`
	PolicyID   string `json:"-"`
	GroupID    string `json:"-"`
	TenantID   string `json:"-"`
	Name       string `json:"name"`
	Capability string `json:"capability"`
}
