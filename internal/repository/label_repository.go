package repository

import (
	"context"

	"github.com/yukikurage/taskflow/internal/database"
	"github.com/yukikurage/taskflow/internal/models"
	"gorm.io/gorm"
)

// GormLabelRepository is a GORM implementation of LabelRepository
type GormLabelRepository struct {
	db *gorm.DB
}

// NewLabelRepository creates a new LabelRepository
func NewLabelRepository(db *gorm.DB) LabelRepository {
	return &GormLabelRepository{db: db}
}

func (r *GormLabelRepository) Create(ctx context.Context, label *models.Label) error {
	return translate(database.Conn(ctx, r.db).Create(label).Error)
}

func (r *GormLabelRepository) FindByID(ctx context.Context, userID, id uint64) (*models.Label, error) {
	var label models.Label
	if err := database.Conn(ctx, r.db).Where("id = ? AND user_id = ?", id, userID).First(&label).Error; err != nil {
		return nil, translate(err)
	}
	return &label, nil
}

func (r *GormLabelRepository) FindByIDs(ctx context.Context, userID uint64, ids []uint64) ([]models.Label, error) {
	labels := []models.Label{}
	if len(ids) == 0 {
		return labels, nil
	}
	if err := database.Conn(ctx, r.db).Where("id IN ? AND user_id = ?", ids, userID).Find(&labels).Error; err != nil {
		return nil, translate(err)
	}
	return labels, nil
}

func (r *GormLabelRepository) List(ctx context.Context, userID uint64) ([]models.Label, error) {
	labels := []models.Label{}
	if err := database.Conn(ctx, r.db).Scopes(database.OwnedBy("labels", userID)).Order("name ASC").Find(&labels).Error; err != nil {
		return nil, translate(err)
	}
	return labels, nil
}

func (r *GormLabelRepository) Update(ctx context.Context, label *models.Label) error {
	result := database.Conn(ctx, r.db).
		Model(&models.Label{}).
		Where("id = ? AND user_id = ?", label.ID, label.UserID).
		Updates(map[string]interface{}{
			"name":  label.Name,
			"color": label.Color,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the label and its task associations in a transaction
func (r *GormLabelRepository) Delete(ctx context.Context, userID, id uint64) error {
	return database.Conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var label models.Label
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&label).Error; err != nil {
			return translate(err)
		}

		if err := tx.Exec("DELETE FROM task_labels WHERE label_id = ?", id).Error; err != nil {
			return translate(err)
		}

		return translate(tx.Delete(&label).Error)
	})
}
