package repository

import (
	"context"
	"time"

	"github.com/yukikurage/taskflow/internal/database"
	"github.com/yukikurage/taskflow/internal/models"
	"gorm.io/gorm"
)

// GormSessionRepository stores sessions in the application database.
type GormSessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, session *models.Session) error {
	return translate(database.Conn(ctx, r.db).Create(session).Error)
}

func (r *GormSessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var session models.Session
	if err := database.Conn(ctx, r.db).Where("token_hash = ?", tokenHash).First(&session).Error; err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (r *GormSessionRepository) Delete(ctx context.Context, tokenHash string) (bool, error) {
	result := database.Conn(ctx, r.db).Where("token_hash = ?", tokenHash).Delete(&models.Session{})
	return result.RowsAffected > 0, translate(result.Error)
}

func (r *GormSessionRepository) DeleteByUser(ctx context.Context, userID uint64, keepTokenHash string) (int64, error) {
	query := database.Conn(ctx, r.db).Where("user_id = ?", userID)
	if keepTokenHash != "" {
		query = query.Where("token_hash <> ?", keepTokenHash)
	}
	result := query.Delete(&models.Session{})
	return result.RowsAffected, translate(result.Error)
}

func (r *GormSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := database.Conn(ctx, r.db).Where("expires_at <= ?", now).Delete(&models.Session{})
	return result.RowsAffected, translate(result.Error)
}

func (r *GormSessionRepository) Transactional() bool {
	return true
}
