package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/middleware"
	"github.com/yukikurage/taskflow/internal/services"
)

// currentSession returns the session set by RequireAuth, answering 401 when
// the route was mounted without it.
func currentSession(c *gin.Context) (*services.Session, bool) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		apierrors.Unauthorized(c)
		return nil, false
	}
	return sess, true
}

// resourceID returns the :id parameter parsed by RequireIDParam, parsing it
// here when the middleware was not mounted.
func resourceID(c *gin.Context) (uint64, bool) {
	if id, ok := middleware.GetResourceID(c); ok {
		return id, true
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		apierrors.BadRequest(c, "Invalid ID")
		return 0, false
	}
	return id, true
}

// optionalUint64Query parses an optional numeric query parameter.
func optionalUint64Query(c *gin.Context, key string) (*uint64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid "+key)
		return nil, false
	}
	return &value, true
}

// optionalBoolQuery parses an optional boolean query parameter.
func optionalBoolQuery(c *gin.Context, key string) (*bool, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		apierrors.BadRequest(c, "Invalid "+key)
		return nil, false
	}
	return &value, true
}

// patchField decodes the field key of a PATCH body into dst. present reports
// whether the key was sent at all; null reports an explicit null.
func patchField(body map[string]json.RawMessage, key string, dst any) (present, null bool, err error) {
	raw, ok := body[key]
	if !ok {
		return false, false, nil
	}
	if string(raw) == "null" {
		return true, true, nil
	}
	return true, false, json.Unmarshal(raw, dst)
}
