package model

import "time"

// Server statuses the simulator moves instances through.
const (
	ServerStatusBuild   = "BUILD"
	ServerStatusActive  = "ACTIVE"
	ServerStatusError   = "ERROR"
	ServerStatusDeleted = "DELETED"
)

// Server is a nova compute instance.
type Server struct {
	ID        string `json:"id"`
	TenantID  string `json:"-"`
	Name      string `json:"name"`
	FlavorRef string `json:"flavorRef"`
	ImageRef  string `json:"imageRef"`
	Status    string `json:"status"`
	// GroupID is set when a scaling group launched the server.
	GroupID string    `json:"-"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}
