package model

import "time"

// LoadBalancer is a cloud load balancer instance.
type LoadBalancer struct {
	ID       string    `json:"id"`
	TenantID string    `json:"-"`
	Name     string    `json:"name"`
	Port     int       `json:"port"`
	Protocol string    `json:"protocol"`
	Status   string    `json:"status"`
	Created  time.Time `json:"-"`
}

// Node is one backend behind a load balancer.
type Node struct {
	ID             string `json:"id"`
	LoadBalancerID string `json:"-"`
	Address        string `json:"address"`
	Port           int    `json:"port"`
	Condition      string `json:"condition"`
}
