package services

import (
	"context"
	"fmt"
	"time"

	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/repository"
)

// Notification kinds
const (
	NotificationOverdue  = "overdue"
	NotificationDueToday = "due_today"
)

// Notification points the user at a task that needs attention.
type Notification struct {
	Type    string    `json:"type"`
	TaskID  uint64    `json:"task_id"`
	Title   string    `json:"title"`
	DueDate time.Time `json:"due_date"`
	Message string    `json:"message"`
}

// NotificationService derives notifications from due dates
type NotificationService struct {
	tasks repository.TaskRepository
	now   func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(tasks repository.TaskRepository) *NotificationService {
	return &NotificationService{tasks: tasks, now: time.Now}
}

// List returns one notification per incomplete task that is overdue or due today, oldest due date first
func (s *NotificationService) List(ctx context.Context, sess *Session) ([]Notification, error) {
	startOfToday, startOfTomorrow := dayBounds(s.now())

	tasks, _, err := s.tasks.List(ctx, repository.TaskFilter{
		UserID:        sess.UserID(),
		Completed:     boolPtr(false),
		DueBefore:     &startOfTomorrow,
		SortByDueDate: true,
	})
	if err != nil {
		return nil, apierrors.Storage("failed to list due tasks", err)
	}

	notifications := make([]Notification, 0, len(tasks))
	for _, task := range tasks {
		if task.DueDate == nil {
			continue
		}
		n := Notification{
			Type:    NotificationDueToday,
			TaskID:  task.ID,
			Title:   task.Title,
			DueDate: *task.DueDate,
			Message: fmt.Sprintf("%q is due today", task.Title),
		}
		if task.DueDate.Before(startOfToday) {
			n.Type = NotificationOverdue
			n.Message = fmt.Sprintf("%q is overdue since %s", task.Title, task.DueDate.Format("2006-01-02"))
		}
		notifications = append(notifications, n)
	}

	return notifications, nil
}
