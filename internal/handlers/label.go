package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/taskflow/internal/dto"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/services"
)

type LabelHandler struct {
	labelService *services.LabelService
	logger       logging.Logger
}

func NewLabelHandler(labelService *services.LabelService, logger logging.Logger) *LabelHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LabelHandler{labelService: labelService, logger: logger}
}

func (h *LabelHandler) ListLabels(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	labels, err := h.labelService.List(c.Request.Context(), sess)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"labels": dto.ToLabelDTOs(labels)})
}

func (h *LabelHandler) GetLabel(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	label, err := h.labelService.Get(c.Request.Context(), sess, id)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"label": dto.ToLabelDTO(*label)})
}

func (h *LabelHandler) CreateLabel(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	var req nameColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	label, err := h.labelService.Create(c.Request.Context(), sess, req.input())
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"label": dto.ToLabelDTO(*label)})
}

func (h *LabelHandler) UpdateLabel(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	var req nameColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	label, err := h.labelService.Update(c.Request.Context(), sess, id, req.input())
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"label": dto.ToLabelDTO(*label)})
}

// DeleteLabel deletes a label and detaches it from tasks
func (h *LabelHandler) DeleteLabel(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	if err := h.labelService.Delete(c.Request.Context(), sess, id); err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Label deleted successfully",
	})
}
