package database

import (
	"fmt"

	"gorm.io/gorm"
)

// AddIndexes adds the composite indexes used by owner-scoped list queries.
// Single-column indexes are declared on the models.
func AddIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		name    string
		columns string
	}{
		{"tasks", "idx_tasks_user_project", "user_id, project_id"},
		{"tasks", "idx_tasks_user_due", "user_id, completed, due_date"},
		{"projects", "idx_projects_user_name", "user_id, name"},
		{"labels", "idx_labels_user_name", "user_id, name"},
		{"sessions", "idx_sessions_user_expires", "user_id, expires_at"},
	}

	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.table, idx.name) {
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
