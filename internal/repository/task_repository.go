package repository

import (
	"context"

	"github.com/yukikurage/taskflow/internal/database"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/utils"
	"gorm.io/gorm"
)

// GormTaskRepository is a GORM implementation of TaskRepository
type GormTaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &GormTaskRepository{db: db}
}

// Create creates a new task
func (r *GormTaskRepository) Create(ctx context.Context, task *models.Task) error {
	return translate(database.Conn(ctx, r.db).Omit("Labels", "Project").Create(task).Error)
}

// FindByID finds a task owned by userID. Tasks of other users are reported as ErrNotFound.
func (r *GormTaskRepository) FindByID(ctx context.Context, userID, id uint64, preload ...string) (*models.Task, error) {
	var task models.Task
	query := database.Conn(ctx, r.db)

	for _, p := range preload {
		query = query.Preload(p)
	}

	if err := query.Where("id = ? AND user_id = ?", id, userID).First(&task).Error; err != nil {
		return nil, translate(err)
	}

	return &task, nil
}

func (r *GormTaskRepository) filtered(ctx context.Context, filter TaskFilter) *gorm.DB {
	query := database.Conn(ctx, r.db).Model(&models.Task{}).Scopes(database.OwnedBy("tasks", filter.UserID))

	if filter.ProjectID != nil {
		query = query.Where("tasks.project_id = ?", *filter.ProjectID)
	}
	if filter.InboxOnly {
		query = query.Where("tasks.project_id IS NULL")
	}
	if filter.LabelID != nil {
		labelSubQuery := database.Conn(ctx, r.db).Table("task_labels").
			Select("1").
			Where("task_labels.task_id = tasks.id").
			Where("task_labels.label_id = ?", *filter.LabelID)
		query = query.Where("EXISTS (?)", labelSubQuery)
	}
	if filter.Completed != nil {
		query = query.Where("tasks.completed = ?", *filter.Completed)
	}
	if filter.HasDueDate {
		query = query.Where("tasks.due_date IS NOT NULL")
	}
	if filter.DueFrom != nil {
		query = query.Where("tasks.due_date >= ?", *filter.DueFrom)
	}
	if filter.DueBefore != nil {
		query = query.Where("tasks.due_date < ?", *filter.DueBefore)
	}
	if filter.CompletedSince != nil {
		query = query.Where("tasks.completed_at >= ?", *filter.CompletedSince)
	}
	return query
}

// List retrieves tasks with filtering and pagination
func (r *GormTaskRepository) List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error) {
	tasks := []models.Task{}
	query := r.filtered(ctx, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	listQuery := query
	if filter.SortByDueDate {
		listQuery = listQuery.Order("CASE WHEN tasks.due_date IS NULL THEN 1 ELSE 0 END, tasks.due_date ASC, tasks.priority ASC")
	} else {
		listQuery = listQuery.Order("tasks.completed ASC, tasks.priority ASC, tasks.created_at DESC")
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		listQuery = listQuery.Scopes(database.Paginate(utils.NewPaginationParams(filter.Page, filter.PageSize)))
	}

	if err := listQuery.Preload("Labels").Find(&tasks).Error; err != nil {
		return nil, 0, translate(err)
	}

	return tasks, total, nil
}

// Count counts tasks matching the filter
func (r *GormTaskRepository) Count(ctx context.Context, filter TaskFilter) (int64, error) {
	var total int64
	if err := r.filtered(ctx, filter).Count(&total).Error; err != nil {
		return 0, translate(err)
	}
	return total, nil
}

// CountByProject groups a user's tasks by project and completion state
func (r *GormTaskRepository) CountByProject(ctx context.Context, userID uint64) ([]ProjectTaskCount, error) {
	var counts []ProjectTaskCount
	err := database.Conn(ctx, r.db).Model(&models.Task{}).
		Select("project_id, completed, COUNT(*) AS count").
		Scopes(database.OwnedBy("tasks", userID)).
		Group("project_id, completed").
		Scan(&counts).Error
	if err != nil {
		return nil, translate(err)
	}
	return counts, nil
}

// Update updates a task's mutable fields. The owner is part of the WHERE clause.
func (r *GormTaskRepository) Update(ctx context.Context, task *models.Task) error {
	result := database.Conn(ctx, r.db).
		Model(&models.Task{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Updates(map[string]interface{}{
			"title":        task.Title,
			"description":  task.Description,
			"priority":     task.Priority,
			"due_date":     task.DueDate,
			"project_id":   task.ProjectID,
			"completed":    task.Completed,
			"completed_at": task.CompletedAt,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceLabels sets the task's labels
func (r *GormTaskRepository) ReplaceLabels(ctx context.Context, task *models.Task, labels []models.Label) error {
	return translate(database.Conn(ctx, r.db).Model(task).Association("Labels").Replace(labels))
}

// Delete soft deletes a task
func (r *GormTaskRepository) Delete(ctx context.Context, userID, id uint64) error {
	result := database.Conn(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Task{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
