package constants

import "time"

// Session carrier
const (
	SessionCookieName = "task_session"
	SessionTokenKey   = "token"
	DefaultSessionTTL = 7 * 24 * time.Hour
)

// Gin context keys
const (
	ContextKeyUserID     = "user_id"
	ContextKeySession    = "session"
	ContextKeyResourceID = "resource_id"
	ContextKeyRequestID  = "request_id"
	HeaderRequestID      = "X-Request-ID"
)

// Validation
const (
	MinPasswordLength = 6
	MaxPasswordBytes  = 72 // bcrypt input limit
	MaxNameLength     = 100
	MaxEmailLength    = 255
	MaxTitleLength    = 255
	MinPriority       = 1
	MaxPriority       = 4
	DefaultPriority   = 4
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AI
const (
	MaxAIGeneratedTasks = 20
)

// Calendar
const (
	CalendarTokenPurpose = "calendar"
	CalendarFeedSuffix   = ".ics"
)
