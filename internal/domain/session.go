package domain

import "strings"

// SessionStatus is the lifecycle state of a tenant. Values are persisted.
type SessionStatus int

const (
	StatusConnecting    SessionStatus = 1
	StatusConnected     SessionStatus = 2
	StatusDisconnected  SessionStatus = 3
	StatusPairing       SessionStatus = 4
	StatusPausedUser    SessionStatus = 5
	StatusPausedNetwork SessionStatus = 6
	StatusActive        SessionStatus = 7
	StatusInactive      SessionStatus = 8 // logged out, terminal
)

var statusNames = map[SessionStatus]string{
	StatusConnecting:    "connecting",
	StatusConnected:     "connected",
	StatusDisconnected:  "disconnected",
	StatusPairing:       "pairing",
	StatusPausedUser:    "paused_user",
	StatusPausedNetwork: "paused_network",
	StatusActive:        "active",
	StatusInactive:      "inactive",
}

func (s SessionStatus) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// Live reports whether the status means a client is (or is becoming) connected.
func (s SessionStatus) Live() bool {
	return s == StatusConnected || s == StatusActive || s == StatusConnecting
}

// ParseSessionStatus is the inverse of String.
func ParseSessionStatus(v string) (SessionStatus, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	for k, n := range statusNames {
		if n == v {
			return k, true
		}
	}
	return 0, false
}

// UserInfo is the protocol-level self identity of a tenant once known.
type UserInfo struct {
	ID   string `json:"id"`
	LID  string `json:"lid,omitempty"`
	Name string `json:"name,omitempty"`
}

// Session is the durable registry row of a tenant.
type Session struct {
	ID          string        `gorm:"primaryKey;size:64" json:"id"`
	PhoneNumber string        `gorm:"uniqueIndex;size:32" json:"phone_number"`
	Status      SessionStatus `gorm:"index" json:"status"`
	UserInfo    *UserInfo     `gorm:"type:text;serializer:json" json:"user_info"`
	CreatedAt   int64         `gorm:"autoCreateTime:milli" json:"created_at"`
}

func (Session) TableName() string {
	return "sessions"
}
