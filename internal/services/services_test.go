package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yukikurage/taskflow/internal/database"
	"github.com/yukikurage/taskflow/internal/metrics"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/password"
	"github.com/yukikurage/taskflow/internal/repository"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db       *gorm.DB
	metrics  *metrics.Metrics
	users    repository.UserRepository
	sessions *SessionService
	auth     *AuthService
	tasks    *TaskService
	projects *ProjectService
	labels   *LabelService
	taskRepo repository.TaskRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.OpenSQLite(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	m := metrics.New()
	users := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	labelRepo := repository.NewLabelRepository(db)
	transactor := database.NewTransactor(db)

	sessions := NewSessionService(repository.NewSessionRepository(db), users, time.Hour, nil, m)
	return &testEnv{
		db:       db,
		metrics:  m,
		users:    users,
		sessions: sessions,
		auth:     NewAuthService(users, sessions, password.NewBcrypt(bcrypt.MinCost), transactor, nil, m),
		tasks:    NewTaskService(taskRepo, projectRepo, labelRepo, transactor, nil),
		projects: NewProjectService(projectRepo),
		labels:   NewLabelService(labelRepo),
		taskRepo: taskRepo,
	}
}

// login registers a user and returns the token and session of its first login.
func (e *testEnv) login(t *testing.T, name, email string) (string, *Session) {
	t.Helper()
	_, token, sess, err := e.auth.RegisterWithSession(context.Background(), RegisterInput{
		Name: name, Email: email, Password: "secret1",
	}, Meta{UserAgent: "test"})
	require.NoError(t, err)
	return token, sess
}

func (e *testEnv) countUsers(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&models.User{}).Count(&count).Error)
	return count
}
