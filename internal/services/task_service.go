package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yukikurage/taskflow/internal/constants"
	"github.com/yukikurage/taskflow/internal/database"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/repository"
)

var (
	ErrTaskNotFound           = apierrors.New(apierrors.KindNotFound, "Task not found")
	ErrTitleRequired          = apierrors.Validation("Title is required")
	ErrTitleTooLong           = apierrors.Validation(fmt.Sprintf("Title must be at most %d characters", constants.MaxTitleLength))
	ErrInvalidPriority        = apierrors.Validation(fmt.Sprintf("Priority must be between %d and %d", constants.MinPriority, constants.MaxPriority))
	ErrTextRequired           = apierrors.Validation("Text is required")
	ErrAIServiceNotConfigured = apierrors.New(apierrors.KindUnavailable, "AI service is not configured")
	ErrAINoTasksGenerated     = apierrors.New(apierrors.KindUnexpected, "AI did not generate any tasks")
	ErrAINoValidTasks         = apierrors.New(apierrors.KindUnexpected, "No valid tasks could be created from AI output")
)

// TaskService handles task business logic. Every operation is scoped to the
// user of the given session.
type TaskService struct {
	tasks      repository.TaskRepository
	projects   repository.ProjectRepository
	labels     repository.LabelRepository
	transactor database.Transactor
	ai         TaskGenerator
	now        func() time.Time
}

// NewTaskService creates a new TaskService. ai may be nil.
func NewTaskService(
	tasks repository.TaskRepository,
	projects repository.ProjectRepository,
	labels repository.LabelRepository,
	transactor database.Transactor,
	ai TaskGenerator,
) *TaskService {
	return &TaskService{
		tasks:      tasks,
		projects:   projects,
		labels:     labels,
		transactor: transactor,
		ai:         ai,
		now:        time.Now,
	}
}

// ListTasksInput represents filters for listing tasks
type ListTasksInput struct {
	ProjectID     *uint64
	LabelID       *uint64
	Completed     *bool
	SortByDueDate bool
	Page          int
	PageSize      int
}

// CreateTaskInput represents input for creating a task
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    int
	DueDate     *time.Time
	ProjectID   *uint64
	LabelIDs    []uint64
}

// UpdateTaskInput represents input for updating a task
type UpdateTaskInput struct {
	Title        *string
	Description  *string
	Priority     *int
	DueDate      *time.Time
	ClearDueDate bool
	ProjectID    *uint64
	ClearProject bool
	Completed    *bool
	LabelIDs     *[]uint64
}

// ListTasks returns the user's tasks matching the filters
func (s *TaskService) ListTasks(ctx context.Context, sess *Session, input ListTasksInput) ([]models.Task, int64, error) {
	if input.ProjectID != nil {
		if _, err := s.projects.FindByID(ctx, sess.UserID(), *input.ProjectID); err != nil {
			return nil, 0, notFoundOr(ErrProjectNotFound, "failed to find project", err)
		}
	}
	if input.LabelID != nil {
		if _, err := s.labels.FindByID(ctx, sess.UserID(), *input.LabelID); err != nil {
			return nil, 0, notFoundOr(ErrLabelNotFound, "failed to find label", err)
		}
	}

	return s.list(ctx, repository.TaskFilter{
		UserID:        sess.UserID(),
		ProjectID:     input.ProjectID,
		LabelID:       input.LabelID,
		Completed:     input.Completed,
		SortByDueDate: input.SortByDueDate,
		Page:          input.Page,
		PageSize:      input.PageSize,
	})
}

// Inbox returns incomplete tasks without a project
func (s *TaskService) Inbox(ctx context.Context, sess *Session) ([]models.Task, error) {
	tasks, _, err := s.list(ctx, repository.TaskFilter{
		UserID:    sess.UserID(),
		InboxOnly: true,
		Completed: boolPtr(false),
	})
	return tasks, err
}

// Today returns incomplete tasks due before the end of today, overdue ones included
func (s *TaskService) Today(ctx context.Context, sess *Session) ([]models.Task, error) {
	_, endOfToday := dayBounds(s.now())
	tasks, _, err := s.list(ctx, repository.TaskFilter{
		UserID:        sess.UserID(),
		Completed:     boolPtr(false),
		DueBefore:     &endOfToday,
		SortByDueDate: true,
	})
	return tasks, err
}

// Upcoming returns incomplete tasks due from tomorrow on, soonest first
func (s *TaskService) Upcoming(ctx context.Context, sess *Session) ([]models.Task, error) {
	_, startOfTomorrow := dayBounds(s.now())
	tasks, _, err := s.list(ctx, repository.TaskFilter{
		UserID:        sess.UserID(),
		Completed:     boolPtr(false),
		DueFrom:       &startOfTomorrow,
		SortByDueDate: true,
	})
	return tasks, err
}

// ProjectTasks returns the tasks of one of the user's projects
func (s *TaskService) ProjectTasks(ctx context.Context, sess *Session, projectID uint64) ([]models.Task, error) {
	tasks, _, err := s.ListTasks(ctx, sess, ListTasksInput{ProjectID: &projectID})
	return tasks, err
}

// LabelTasks returns the tasks carrying one of the user's labels
func (s *TaskService) LabelTasks(ctx context.Context, sess *Session, labelID uint64) ([]models.Task, error) {
	tasks, _, err := s.ListTasks(ctx, sess, ListTasksInput{LabelID: &labelID})
	return tasks, err
}

func (s *TaskService) list(ctx context.Context, filter repository.TaskFilter) ([]models.Task, int64, error) {
	tasks, total, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, 0, apierrors.Storage("failed to list tasks", err)
	}
	return tasks, total, nil
}

// GetTask returns a task with its project and labels
func (s *TaskService) GetTask(ctx context.Context, sess *Session, taskID uint64) (*models.Task, error) {
	return s.find(ctx, sess, taskID, "Project", "Labels")
}

// CreateTask creates a new task in the inbox or in one of the user's projects
func (s *TaskService) CreateTask(ctx context.Context, sess *Session, input CreateTaskInput) (*models.Task, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return nil, err
	}
	priority := input.Priority
	if priority == 0 {
		priority = constants.DefaultPriority
	}
	if err := validatePriority(priority); err != nil {
		return nil, err
	}

	task := &models.Task{
		UserID:      sess.UserID(),
		ProjectID:   input.ProjectID,
		Title:       title,
		Description: input.Description,
		Priority:    priority,
		DueDate:     input.DueDate,
	}

	err = s.transactor.Transaction(ctx, func(ctx context.Context) error {
		if err := s.ensureProject(ctx, sess, input.ProjectID); err != nil {
			return err
		}
		labels, err := s.ownedLabels(ctx, sess, input.LabelIDs)
		if err != nil {
			return err
		}

		if err := s.tasks.Create(ctx, task); err != nil {
			return apierrors.Storage("failed to create task", err)
		}
		if len(labels) > 0 {
			if err := s.tasks.ReplaceLabels(ctx, task, labels); err != nil {
				return apierrors.Storage("failed to attach labels", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.find(ctx, sess, task.ID, "Project", "Labels")
}

// UpdateTask updates an existing task
func (s *TaskService) UpdateTask(ctx context.Context, sess *Session, taskID uint64, input UpdateTaskInput) (*models.Task, error) {
	err := s.transactor.Transaction(ctx, func(ctx context.Context) error {
		task, err := s.find(ctx, sess, taskID)
		if err != nil {
			return err
		}

		if input.Title != nil {
			if task.Title, err = normalizeTitle(*input.Title); err != nil {
				return err
			}
		}
		if input.Description != nil {
			task.Description = *input.Description
		}
		if input.Priority != nil {
			if err := validatePriority(*input.Priority); err != nil {
				return err
			}
			task.Priority = *input.Priority
		}
		if input.ClearDueDate {
			task.DueDate = nil
		} else if input.DueDate != nil {
			task.DueDate = input.DueDate
		}
		if input.ClearProject {
			task.ProjectID = nil
		} else if input.ProjectID != nil {
			if err := s.ensureProject(ctx, sess, input.ProjectID); err != nil {
				return err
			}
			task.ProjectID = input.ProjectID
		}
		if input.Completed != nil && *input.Completed != task.Completed {
			task.SetCompleted(*input.Completed, s.now())
		}

		if err := s.tasks.Update(ctx, task); err != nil {
			return notFoundOr(ErrTaskNotFound, "failed to update task", err)
		}

		if input.LabelIDs != nil {
			labels, err := s.ownedLabels(ctx, sess, *input.LabelIDs)
			if err != nil {
				return err
			}
			if err := s.tasks.ReplaceLabels(ctx, task, labels); err != nil {
				return apierrors.Storage("failed to replace labels", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.find(ctx, sess, taskID, "Project", "Labels")
}

// DeleteTask deletes one of the user's tasks
func (s *TaskService) DeleteTask(ctx context.Context, sess *Session, taskID uint64) error {
	if err := s.tasks.Delete(ctx, sess.UserID(), taskID); err != nil {
		return notFoundOr(ErrTaskNotFound, "failed to delete task", err)
	}
	return nil
}

// ToggleCompletion flips the completion state of one of the user's tasks
func (s *TaskService) ToggleCompletion(ctx context.Context, sess *Session, taskID uint64) (*models.Task, error) {
	task, err := s.find(ctx, sess, taskID, "Labels")
	if err != nil {
		return nil, err
	}
	if err := Authorize(sess, task.UserID); err != nil {
		return nil, err
	}

	task.SetCompleted(!task.Completed, s.now())
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, notFoundOr(ErrTaskNotFound, "failed to toggle task", err)
	}

	return task, nil
}

// GenerateTasksInput represents input for AI task generation
type GenerateTasksInput struct {
	Text      string
	ProjectID *uint64
}

// GenerateTasks asks the AI service for task suggestions. Nothing is saved.
func (s *TaskService) GenerateTasks(ctx context.Context, sess *Session, input GenerateTasksInput) ([]GeneratedTask, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, ErrTextRequired
	}
	if err := s.ensureProject(ctx, sess, input.ProjectID); err != nil {
		return nil, err
	}
	if s.ai == nil {
		return nil, ErrAIServiceNotConfigured
	}

	aiTasks, err := s.ai.GenerateTasksFromText(ctx, text)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindUnexpected, "failed to generate tasks", err)
	}

	if len(aiTasks) == 0 {
		return nil, ErrAINoTasksGenerated
	}
	if len(aiTasks) > constants.MaxAIGeneratedTasks {
		aiTasks = aiTasks[:constants.MaxAIGeneratedTasks]
	}

	validTasks := make([]GeneratedTask, 0, len(aiTasks))
	cutoff := s.now().Add(-24 * time.Hour)
	for _, aiTask := range aiTasks {
		title, err := normalizeTitle(aiTask.Title)
		if err != nil {
			continue
		}
		aiTask.Title = title

		if aiTask.DueDate != nil && aiTask.DueDate.Before(cutoff) {
			aiTask.DueDate = nil
		}
		if validatePriority(aiTask.Priority) != nil {
			aiTask.Priority = constants.DefaultPriority
		}
		aiTask.ProjectID = input.ProjectID

		validTasks = append(validTasks, aiTask)
	}

	if len(validTasks) == 0 {
		return nil, ErrAINoValidTasks
	}

	return validTasks, nil
}

func (s *TaskService) find(ctx context.Context, sess *Session, taskID uint64, preload ...string) (*models.Task, error) {
	task, err := s.tasks.FindByID(ctx, sess.UserID(), taskID, preload...)
	if err != nil {
		return nil, notFoundOr(ErrTaskNotFound, "failed to find task", err)
	}
	return task, nil
}

func (s *TaskService) ensureProject(ctx context.Context, sess *Session, projectID *uint64) error {
	if projectID == nil {
		return nil
	}
	if _, err := s.projects.FindByID(ctx, sess.UserID(), *projectID); err != nil {
		return notFoundOr(ErrProjectNotFound, "failed to find project", err)
	}
	return nil
}

// ownedLabels loads the labels by id, failing if any of them is not the user's.
func (s *TaskService) ownedLabels(ctx context.Context, sess *Session, labelIDs []uint64) ([]models.Label, error) {
	ids := uniqueUint64(labelIDs)
	if len(ids) == 0 {
		return []models.Label{}, nil
	}

	labels, err := s.labels.FindByIDs(ctx, sess.UserID(), ids)
	if err != nil {
		return nil, apierrors.Storage("failed to find labels", err)
	}
	if len(labels) != len(ids) {
		return nil, ErrLabelNotFound
	}
	return labels, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrTitleRequired
	}
	if utf8.RuneCountInString(title) > constants.MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}

func validatePriority(priority int) error {
	if priority < constants.MinPriority || priority > constants.MaxPriority {
		return ErrInvalidPriority
	}
	return nil
}

// dayBounds returns the start of the day containing now and the start of the next day.
func dayBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

func boolPtr(v bool) *bool {
	return &v
}

// uniqueUint64 removes duplicate values from a slice of uint64
func uniqueUint64(values []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(values))
	result := make([]uint64, 0, len(values))

	for _, v := range values {
		if _, exists := seen[v]; exists {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}

	return result
}
