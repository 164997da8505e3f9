package handlers

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/taskflow/internal/constants"
	"github.com/yukikurage/taskflow/internal/dto"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/middleware"
	"github.com/yukikurage/taskflow/internal/services"
)

// AuthHandler coordinates authentication-related HTTP handlers.
type AuthHandler struct {
	authService    *services.AuthService
	sessionService *services.SessionService
	logger         logging.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, sessionService *services.SessionService, logger logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuthHandler{
		authService:    authService,
		sessionService: sessionService,
		logger:         logger,
	}
}

// Register creates a user and logs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	type RegisterRequest struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	user, token, _, err := h.authService.RegisterWithSession(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}, requestMeta(c))
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	if !h.saveToken(c, token) {
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": dto.ToUserDTO(*user)})
}

// Login authenticates a user and initializes the session.
func (h *AuthHandler) Login(c *gin.Context) {
	type LoginRequest struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	user, token, _, err := h.authService.Login(c.Request.Context(), req.Email, req.Password, requestMeta(c))
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	if !h.saveToken(c, token) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": dto.ToUserDTO(*user)})
}

// Logout revokes the current session and clears the cookie. Logging out
// without a session succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	if token := middleware.SessionToken(c); token != "" {
		if err := h.sessionService.Invalidate(c.Request.Context(), token); err != nil {
			apierrors.Respond(c, h.logger, err)
			return
		}
	}

	if !h.clearCookie(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

// LogoutAll revokes every session of the current user, this one included.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	revoked, err := h.sessionService.InvalidateAllForUser(c.Request.Context(), sess.UserID(), "")
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	if !h.clearCookie(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out of all sessions",
		"revoked": revoked,
	})
}

// GetSession returns the current session.
func (h *AuthHandler) GetSession(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, dto.ToSessionDTO(sess.User, sess.IssuedAt, sess.ExpiresAt))
}

// GetCurrentUser returns the authenticated user, or authenticated=false.
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"authenticated": false,
			"message":       "Not authenticated",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          dto.ToUserDTO(sess.User),
	})
}

// UpdateCurrentUser changes the profile of the authenticated user.
func (h *AuthHandler) UpdateCurrentUser(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	type UpdateProfileRequest struct {
		Name     *string `json:"name"`
		Email    *string `json:"email"`
		Password *string `json:"password"`
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	user, err := h.authService.UpdateProfile(c.Request.Context(), sess, middleware.SessionToken(c), services.UpdateProfileInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": dto.ToUserDTO(*user)})
}

// saveToken stores token in the session cookie. A session that cannot be
// handed to the client is revoked again.
func (h *AuthHandler) saveToken(c *gin.Context, token string) bool {
	session := sessions.Default(c)
	session.Set(constants.SessionTokenKey, token)
	if err := session.Save(); err != nil {
		if revokeErr := h.sessionService.Invalidate(c.Request.Context(), token); revokeErr != nil {
			h.logger.Error(c.Request.Context(), "failed to revoke unsaved session", "error", revokeErr)
		}
		apierrors.Respond(c, h.logger, apierrors.Wrap(apierrors.KindUnexpected, "failed to save session", err))
		return false
	}
	return true
}

func (h *AuthHandler) clearCookie(c *gin.Context) bool {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true})
	if err := session.Save(); err != nil {
		apierrors.Respond(c, h.logger, apierrors.Wrap(apierrors.KindUnexpected, "failed to clear session", err))
		return false
	}
	return true
}

func requestMeta(c *gin.Context) services.Meta {
	return services.Meta{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}
}
