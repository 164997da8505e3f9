package repository

import (
	"context"

	"github.com/yukikurage/taskflow/internal/database"
	"github.com/yukikurage/taskflow/internal/models"
	"gorm.io/gorm"
)

// GormProjectRepository is a GORM implementation of ProjectRepository
type GormProjectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &GormProjectRepository{db: db}
}

// Create creates a new project
func (r *GormProjectRepository) Create(ctx context.Context, project *models.Project) error {
	return translate(database.Conn(ctx, r.db).Create(project).Error)
}

// FindByID finds a project owned by userID
func (r *GormProjectRepository) FindByID(ctx context.Context, userID, id uint64) (*models.Project, error) {
	var project models.Project
	if err := database.Conn(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).First(&project).Error; err != nil {
		return nil, translate(err)
	}
	return &project, nil
}

// List lists the user's projects by name
func (r *GormProjectRepository) List(ctx context.Context, userID uint64) ([]models.Project, error) {
	projects := []models.Project{}
	if err := database.Conn(ctx, r.db).Scopes(database.OwnedBy("projects", userID)).Order("name ASC").Find(&projects).Error; err != nil {
		return nil, translate(err)
	}
	return projects, nil
}

// Update updates a project's name and color
func (r *GormProjectRepository) Update(ctx context.Context, project *models.Project) error {
	result := database.Conn(ctx, r.db).
		Model(&models.Project{}).
		Where("id = ? AND user_id = ?", project.ID, project.UserID).
		Updates(map[string]interface{}{
			"name":  project.Name,
			"color": project.Color,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes a project and all of its tasks in a transaction
func (r *GormProjectRepository) Delete(ctx context.Context, userID, id uint64) error {
	return database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Project{})
		if result.Error != nil {
			return translate(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Where("project_id = ? AND user_id = ?", id, userID).Delete(&models.Task{}).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}
