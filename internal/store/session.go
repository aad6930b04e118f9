package store

import (
	"time"

	"vendormonitor/internal/business"
	"vendormonitor/internal/framework"
	"vendormonitor/pkg/lockx"
)

// Status 会话生命周期状态
type Status string

const (
	StatusActive       Status = "active"
	StatusDisconnected Status = "disconnected"
	StatusExpired      Status = "expired"
)

// Session 会话：商家过滤集合、生命周期时间戳与独立的告警簿
// 生命周期字段受 Store 锁保护；book 受会话自身的锁保护
type Session struct {
	id             string
	vendors        business.VendorSet
	status         Status
	createdAt      time.Time
	lastAccessed   time.Time
	connectedAt    time.Time
	disconnectedAt time.Time
	connections    int

	lock    *lockx.TimedMutex
	book    *business.AlertBook
	applied map[framework.Domain]time.Time
}

// Info 会话状态的只读副本
type Info struct {
	ID             string     `json:"session_id"`
	Status         Status     `json:"status"`
	VendorCount    int        `json:"vendor_count"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessed   time.Time  `json:"last_accessed"`
	ConnectedAt    *time.Time `json:"connected_at,omitempty"`
	DisconnectedAt *time.Time `json:"disconnected_at,omitempty"`
	Connections    int        `json:"connections"`
	ExpiresIn      float64    `json:"expires_in_seconds"`
}

// Scope 在会话锁内可见的内容
type Scope struct {
	ID      string
	Vendors business.VendorSet
	Book    *business.AlertBook
	// Applied 各数据域已差分过的快照时间，同一份快照不重复差分
	Applied map[framework.Domain]time.Time
}

func (s *Session) infoLocked(now time.Time, timeout time.Duration) Info {
	info := Info{
		ID:           s.id,
		Status:       s.status,
		VendorCount:  len(s.vendors),
		CreatedAt:    s.createdAt,
		LastAccessed: s.lastAccessed,
		Connections:  s.connections,
	}
	if !s.connectedAt.IsZero() {
		t := s.connectedAt
		info.ConnectedAt = &t
	}
	if !s.disconnectedAt.IsZero() {
		t := s.disconnectedAt
		info.DisconnectedAt = &t
	}
	if remaining := timeout - now.Sub(s.lastAccessed); remaining > 0 && s.status != StatusExpired {
		info.ExpiresIn = remaining.Seconds()
	}
	return info
}

// timedOutLocked 距离 last_accessed 超过不活跃超时
func (s *Session) timedOutLocked(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.lastAccessed) > timeout
}
