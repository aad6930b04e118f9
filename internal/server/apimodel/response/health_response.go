package response

import (
	"time"

	"vendormonitor/internal/broadcast"
	"vendormonitor/internal/framework"
	"vendormonitor/internal/store"
)

// HealthResponse 存活检查
type HealthResponse struct {
	Status    string    `json:"status" example:"healthy"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse 就绪检查
type ReadyResponse struct {
	Status    string                                 `json:"status" example:"ready"`
	Checks    map[string]bool                        `json:"checks"`
	Domains   map[framework.Domain]store.DomainState `json:"domains,omitempty"`
	Sessions  map[store.Status]int                   `json:"sessions,omitempty"`
	Broadcast *broadcast.Stats                       `json:"broadcast,omitempty"`
	Timestamp time.Time                              `json:"timestamp"`
}

// JobsResponse 后台任务心跳
type JobsResponse struct {
	Status           string     `json:"status" example:"healthy"`
	Running          bool       `json:"running"`
	Cycles           int64      `json:"cycles"`
	LastHeartbeat    *time.Time `json:"last_heartbeat,omitempty"`
	AgeSeconds       float64    `json:"age_seconds"`
	ThresholdSeconds float64    `json:"threshold_seconds"`
	Timestamp        time.Time  `json:"timestamp"`
}
