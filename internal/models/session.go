package models

import "time"

// Session is a persisted login. Only the hash of the issued token is stored.
type Session struct {
	TokenHash string    `gorm:"type:varchar(64);primaryKey" json:"-"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	UserAgent string    `gorm:"type:varchar(255)" json:"user_agent"`
	IPAddress string    `gorm:"type:varchar(64)" json:"ip_address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
}

// ExpiredAt reports whether the session is no longer valid at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
