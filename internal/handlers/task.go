package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/taskflow/internal/dto"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/services"
	"github.com/yukikurage/taskflow/internal/utils"
)

type TaskHandler struct {
	taskService *services.TaskService
	logger      logging.Logger
}

func NewTaskHandler(taskService *services.TaskService, logger logging.Logger) *TaskHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TaskHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// ListTasks returns a page of the user's tasks.
// Can filter by project_id, label_id and completed; sort=due_date orders by due date.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	projectID, ok := optionalUint64Query(c, "project_id")
	if !ok {
		return
	}
	labelID, ok := optionalUint64Query(c, "label_id")
	if !ok {
		return
	}
	completed, ok := optionalBoolQuery(c, "completed")
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)

	tasks, total, err := h.taskService.ListTasks(c.Request.Context(), sess, services.ListTasksInput{
		ProjectID:     projectID,
		LabelID:       labelID,
		Completed:     completed,
		SortByDueDate: c.Query("sort") == "due_date",
		Page:          params.Page,
		PageSize:      params.Limit,
	})
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskListResponse(tasks, params, total))
}

// Inbox returns incomplete tasks without a project
func (h *TaskHandler) Inbox(c *gin.Context) {
	h.view(c, h.taskService.Inbox)
}

// Today returns incomplete tasks due today or overdue
func (h *TaskHandler) Today(c *gin.Context) {
	h.view(c, h.taskService.Today)
}

// Upcoming returns incomplete tasks due after today
func (h *TaskHandler) Upcoming(c *gin.Context) {
	h.view(c, h.taskService.Upcoming)
}

// ProjectTasks returns the tasks of one project
func (h *TaskHandler) ProjectTasks(c *gin.Context) {
	h.viewByID(c, h.taskService.ProjectTasks)
}

// LabelTasks returns the tasks carrying one label
func (h *TaskHandler) LabelTasks(c *gin.Context) {
	h.viewByID(c, h.taskService.LabelTasks)
}

type taskView func(ctx context.Context, sess *services.Session) ([]models.Task, error)

func (h *TaskHandler) view(c *gin.Context, list taskView) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	tasks, err := list(c.Request.Context(), sess)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": dto.ToTaskDTOs(tasks)})
}

func (h *TaskHandler) viewByID(c *gin.Context, list func(ctx context.Context, sess *services.Session, id uint64) ([]models.Task, error)) {
	id, ok := resourceID(c)
	if !ok {
		return
	}
	h.view(c, func(ctx context.Context, sess *services.Session) ([]models.Task, error) {
		return list(ctx, sess, id)
	})
}

// GetTask returns a specific task by ID
func (h *TaskHandler) GetTask(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(c.Request.Context(), sess, id)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": dto.ToTaskDTO(*task)})
}

// CreateTask creates a new task
func (h *TaskHandler) CreateTask(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	type CreateTaskRequest struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		Priority    int        `json:"priority"`
		DueDate     *time.Time `json:"due_date"`
		ProjectID   *uint64    `json:"project_id"`
		LabelIDs    []uint64   `json:"label_ids"`
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), sess, services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		ProjectID:   req.ProjectID,
		LabelIDs:    req.LabelIDs,
	})
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"task": dto.ToTaskDTO(*task)})
}

// UpdateTask updates an existing task. Only the fields present in the body
// change; due_date and project_id can be cleared with null.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	// Parse raw JSON to detect which fields were sent
	var rawReq map[string]json.RawMessage
	if err := c.ShouldBindJSON(&rawReq); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	input, err := parseTaskPatch(rawReq)
	if err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), sess, id, input)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": dto.ToTaskDTO(*task)})
}

func parseTaskPatch(body map[string]json.RawMessage) (services.UpdateTaskInput, error) {
	var input services.UpdateTaskInput

	var title, description string
	if present, null, err := patchField(body, "title", &title); err != nil {
		return input, err
	} else if present && !null {
		input.Title = &title
	}
	if present, null, err := patchField(body, "description", &description); err != nil {
		return input, err
	} else if present {
		if null {
			description = ""
		}
		input.Description = &description
	}

	var priority int
	if present, null, err := patchField(body, "priority", &priority); err != nil {
		return input, err
	} else if present && !null {
		input.Priority = &priority
	}

	var dueDate time.Time
	if present, null, err := patchField(body, "due_date", &dueDate); err != nil {
		return input, err
	} else if present {
		if null {
			input.ClearDueDate = true
		} else {
			input.DueDate = &dueDate
		}
	}

	var projectID uint64
	if present, null, err := patchField(body, "project_id", &projectID); err != nil {
		return input, err
	} else if present {
		if null {
			input.ClearProject = true
		} else {
			input.ProjectID = &projectID
		}
	}

	var completed bool
	if present, null, err := patchField(body, "completed", &completed); err != nil {
		return input, err
	} else if present && !null {
		input.Completed = &completed
	}

	var labelIDs []uint64
	if present, _, err := patchField(body, "label_ids", &labelIDs); err != nil {
		return input, err
	} else if present {
		if labelIDs == nil {
			labelIDs = []uint64{}
		}
		input.LabelIDs = &labelIDs
	}

	return input, nil
}

// DeleteTask deletes a task
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), sess, id); err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// ToggleCompletion flips the completed flag of a task
func (h *TaskHandler) ToggleCompletion(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	id, ok := resourceID(c)
	if !ok {
		return
	}

	task, err := h.taskService.ToggleCompletion(c.Request.Context(), sess, id)
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task": dto.ToTaskDTO(*task)})
}

// GenerateTasks returns AI task suggestions for a piece of text. Nothing is saved.
func (h *TaskHandler) GenerateTasks(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	type GenerateTasksRequest struct {
		Text      string  `json:"text"`
		ProjectID *uint64 `json:"project_id"`
	}

	var req GenerateTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	generatedTasks, err := h.taskService.GenerateTasks(c.Request.Context(), sess, services.GenerateTasksInput{
		Text:      req.Text,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		apierrors.Respond(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": generatedTasks,
	})
}
