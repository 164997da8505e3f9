package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/taskflow/internal/dto"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/services"
)

// nameColorRequest is the body of project and label writes
type nameColorRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

func (r nameColorRequest) input() services.ProjectInput {
	return services.ProjectInput{Name: r.Name, Color: r.Color}
}

type ProjectHandler struct {
	projectService *services.ProjectService
	logger         logging.Logger
}

func NewProjectHandler(projectService *services.ProjectService, logger logging.Logger) *ProjectHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ProjectHandler{projectService: projectService, logger: logger}
}

// ListProjects returns the user's projects ordered by name
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	projects, err := h.projectService.List(c.Request.Context(), sess)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": dto.ToProjectDTOs(projects)})
}

func (h *ProjectHandler) GetProject(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	project, err := h.projectService.Get(c.Request.Context(), sess, id)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": dto.ToProjectDTO(*project)})
}

func (h *ProjectHandler) CreateProject(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	var req nameColorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	project, err := h.projectService.Create(c.Request.Context(), sess, req.input())
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"project": dto.ToProjectDTO(*project)})
}

func (h *ProjectHandler) UpdateProject(c *gin.Context) {
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

	project, err := h.projectService.Update(c.Request.Context(), sess, id, req.input())
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": dto.ToProjectDTO(*project)})
}

// DeleteProject deletes a project and its tasks
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	if err := h.projectService.Delete(c.Request.Context(), sess, id); err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Project deleted successfully",
	})
}
