package models

import "time"

// SessionEventType names a session lifecycle transition.
type SessionEventType string

const (
	SessionLogin           SessionEventType = "login"
	SessionLoginFailed     SessionEventType = "login_failed"
	SessionRefresh         SessionEventType = "refresh"
	SessionRefreshRejected SessionEventType = "refresh_rejected"
	SessionLogout          SessionEventType = "logout"
	SessionPasswordChange  SessionEventType = "password_change"
)

// SessionEvent is one row of the session audit trail (PostgreSQL)
type SessionEvent struct {
	ID         uint             `json:"id" gorm:"primaryKey"`
	Type       SessionEventType `json:"type" gorm:"size:30;index"`
	IdentityID string           `json:"identity_id" gorm:"size:24;index"` // Mongo ObjectID hex, empty when unknown
	Login      string           `json:"login" gorm:"size:255"`            // handle or email presented at login
	Reason     string           `json:"reason"`
	IPAddress  string           `json:"ip_address" gorm:"size:64"`
	UserAgent  string           `json:"user_agent"`
	CreatedAt  time.Time        `json:"created_at" gorm:"index"`
}
