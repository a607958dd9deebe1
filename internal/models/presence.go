package models

import (
	"time"
)

// Presence is the connectivity status a node publishes for other devices.
type Presence struct {
	NodeID       string    `json:"node_id"`
	Status       string    `json:"status"`
	PendingCount int       `json:"pending_count"`
	LastSeen     time.Time `json:"last_seen"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
