package middleware

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/taskflow/internal/constants"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/services"
)

// RequireAuth resolves the session cookie and rejects the request with 401
// when there is no active session. Storage failures become 500.
func RequireAuth(sessionService *services.SessionService, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := resolve(c, sessionService)
		if err != nil {
			apierrors.Respond(c, logger, err)
			c.Abort()
			return
		}
		if sess == nil {
			apierrors.Unauthorized(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth resolves the session cookie when present and lets the request
// through either way.
func OptionalAuth(sessionService *services.SessionService, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := resolve(c, sessionService); err != nil {
			apierrors.Respond(c, logger, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func resolve(c *gin.Context, sessionService *services.SessionService) (*services.Session, error) {
	sess, err := sessionService.Get(c.Request.Context(), SessionToken(c))
	if err != nil || sess == nil {
		return nil, err
	}

	c.Set(constants.ContextKeySession, sess)
	c.Set(constants.ContextKeyUserID, sess.UserID())
	return sess, nil
}

// SessionToken returns the raw token carried by the session cookie, or "".
// A cookie holding anything but a string is treated as absent.
func SessionToken(c *gin.Context) string {
	token, _ := sessions.Default(c).Get(constants.SessionTokenKey).(string)
	return token
}

// CurrentSession returns the session resolved for this request
func CurrentSession(c *gin.Context) (*services.Session, bool) {
	value, exists := c.Get(constants.ContextKeySession)
	if !exists {
		return nil, false
	}
	sess, ok := value.(*services.Session)
	return sess, ok && sess != nil
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}

	switch v := userID.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
