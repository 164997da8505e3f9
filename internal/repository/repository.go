package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/taskflow/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no row matches, including rows owned by another user.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("repository: duplicate key")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// Create creates a new user. Fails with ErrDuplicate when the email is taken.
	Create(ctx context.Context, user *models.User) error

	// FindByID finds a user by ID
	FindByID(ctx context.Context, id uint64) (*models.User, error)

	// FindByEmail finds a user by normalized email
	FindByEmail(ctx context.Context, email string) (*models.User, error)

	// Update persists name, email and password hash
	Update(ctx context.Context, user *models.User) error
}

// SessionRepository stores sessions keyed by token hash.
type SessionRepository interface {
	// Create persists a session. Fails with ErrDuplicate when the hash exists.
	Create(ctx context.Context, session *models.Session) error

	// FindByTokenHash returns the session or ErrNotFound.
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)

	// Delete removes a session and reports whether one existed. Deleting a
	// missing session is not an error.
	Delete(ctx context.Context, tokenHash string) (bool, error)

	// DeleteByUser removes every session of userID except keepTokenHash.
	DeleteByUser(ctx context.Context, userID uint64, keepTokenHash string) (int64, error)

	// DeleteExpired removes sessions whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Transactional reports whether writes join the database transaction on ctx.
	Transactional() bool
}

// TaskRepository defines the interface for task data access.
// Every lookup is scoped to the owning user.
type TaskRepository interface {
	// Create creates a new task
	Create(ctx context.Context, task *models.Task) error

	// FindByID finds a task owned by userID with optional preloading
	FindByID(ctx context.Context, userID, id uint64, preload ...string) (*models.Task, error)

	// List retrieves tasks with filtering and pagination
	List(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error)

	// Count counts tasks matching the filter
	Count(ctx context.Context, filter TaskFilter) (int64, error)

	// CountByProject groups a user's tasks by project and completion
	CountByProject(ctx context.Context, userID uint64) ([]ProjectTaskCount, error)

	// Update updates a task's mutable fields
	Update(ctx context.Context, task *models.Task) error

	// ReplaceLabels sets the task's labels
	ReplaceLabels(ctx context.Context, task *models.Task, labels []models.Label) error

	// Delete soft deletes a task
	Delete(ctx context.Context, userID, id uint64) error
}

// TaskFilter holds filtering options for listing tasks. UserID is mandatory.
type TaskFilter struct {
	UserID         uint64
	ProjectID      *uint64
	InboxOnly      bool
	LabelID        *uint64
	Completed      *bool
	HasDueDate     bool
	DueFrom        *time.Time
	DueBefore      *time.Time
	CompletedSince *time.Time
	SortByDueDate  bool
	Page           int
	PageSize       int
}

// ProjectTaskCount is a per-project aggregate. ProjectID is nil for the inbox.
type ProjectTaskCount struct {
	ProjectID *uint64
	Completed bool
	Count     int64
}

// ProjectRepository defines the interface for project data access
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, userID, id uint64) (*models.Project, error)
	List(ctx context.Context, userID uint64) ([]models.Project, error)
	Update(ctx context.Context, project *models.Project) error

	// Delete deletes a project and its tasks
	Delete(ctx context.Context, userID, id uint64) error
}

// LabelRepository defines the interface for label data access
type LabelRepository interface {
	Create(ctx context.Context, label *models.Label) error
	FindByID(ctx context.Context, userID, id uint64) (*models.Label, error)

	// FindByIDs returns the labels among ids that userID owns
	FindByIDs(ctx context.Context, userID uint64, ids []uint64) ([]models.Label, error)
	List(ctx context.Context, userID uint64) ([]models.Label, error)
	Update(ctx context.Context, label *models.Label) error

	// Delete deletes a label and detaches it from tasks
	Delete(ctx context.Context, userID, id uint64) error
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
