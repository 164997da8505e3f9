package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/taskflow/internal/constants"
	"github.com/yukikurage/taskflow/internal/database"
	"github.com/yukikurage/taskflow/internal/middleware"
	"github.com/yukikurage/taskflow/internal/password"
	"github.com/yukikurage/taskflow/internal/repository"
	"github.com/yukikurage/taskflow/internal/services"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testServer struct {
	db       *gorm.DB
	router   *gin.Engine
	auth     *services.AuthService
	sessions *services.SessionService
	tasks    *services.TaskService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB.Close()
	})

	users := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	labelRepo := repository.NewLabelRepository(db)
	transactor := database.NewTransactor(db)

	sessionService := services.NewSessionService(repository.NewSessionRepository(db), users, time.Hour, nil, nil)
	authService := services.NewAuthService(users, sessionService, password.NewBcrypt(bcrypt.MinCost), transactor, nil, nil)
	taskService := services.NewTaskService(taskRepo, projectRepo, labelRepo, transactor, nil)
	calendarService := services.NewCalendarService(users, taskRepo, []byte("calendar-secret"), "http://example.test")

	authHandler := NewAuthHandler(authService, sessionService, nil)
	taskHandler := NewTaskHandler(taskService, nil)
	projectHandler := NewProjectHandler(services.NewProjectService(projectRepo), nil)
	labelHandler := NewLabelHandler(services.NewLabelService(labelRepo), nil)
	reportHandler := NewReportHandler(
		services.NewReportService(taskRepo, projectRepo),
		services.NewNotificationService(taskRepo),
		calendarService,
		nil,
	)

	r := gin.New()
	store := cookie.NewStore([]byte("secret"))
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	requireAuth := middleware.RequireAuth(sessionService, nil)
	requireID := middleware.RequireIDParam()

	r.GET("/calendar/:token", reportHandler.CalendarFeed)

	auth := r.Group("/api/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", middleware.OptionalAuth(sessionService, nil), authHandler.GetCurrentUser)
	auth.PATCH("/me", requireAuth, authHandler.UpdateCurrentUser)
	auth.GET("/session", requireAuth, authHandler.GetSession)
	auth.POST("/logout-all", requireAuth, authHandler.LogoutAll)

	tasks := r.Group("/api/tasks", requireAuth)
	tasks.GET("", taskHandler.ListTasks)
	tasks.POST("", taskHandler.CreateTask)
	tasks.GET("/inbox", taskHandler.Inbox)
	tasks.GET("/today", taskHandler.Today)
	tasks.GET("/upcoming", taskHandler.Upcoming)
	tasks.POST("/generate", taskHandler.GenerateTasks)
	tasks.GET("/:id", requireID, taskHandler.GetTask)
	tasks.PATCH("/:id", requireID, taskHandler.UpdateTask)
	tasks.DELETE("/:id", requireID, taskHandler.DeleteTask)
	tasks.PATCH("/:id/toggle", requireID, taskHandler.ToggleCompletion)

	projects := r.Group("/api/projects", requireAuth)
	projects.GET("", projectHandler.ListProjects)
	projects.POST("", projectHandler.CreateProject)
	projects.GET("/:id", requireID, projectHandler.GetProject)
	projects.PATCH("/:id", requireID, projectHandler.UpdateProject)
	projects.DELETE("/:id", requireID, projectHandler.DeleteProject)
	projects.GET("/:id/tasks", requireID, taskHandler.ProjectTasks)

	labels := r.Group("/api/labels", requireAuth)
	labels.GET("", labelHandler.ListLabels)
	labels.POST("", labelHandler.CreateLabel)
	labels.DELETE("/:id", requireID, labelHandler.DeleteLabel)
	labels.GET("/:id/tasks", requireID, taskHandler.LabelTasks)

	r.GET("/api/notifications", requireAuth, reportHandler.Notifications)
	r.GET("/api/reports/summary", requireAuth, reportHandler.Summary)
	r.GET("/api/calendar/link", requireAuth, reportHandler.CalendarLink)

	return &testServer{
		db:       db,
		router:   r,
		auth:     authService,
		sessions: sessionService,
		tasks:    taskService,
	}
}

// do sends a JSON request with the given cookies and returns the recorder.
func (s *testServer) do(t *testing.T, method, path string, payload any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if payload != nil {
		body, err := json.Marshal(payload)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// register creates a user through the API and returns its session cookies.
func (s *testServer) register(t *testing.T, name, email string) []*http.Cookie {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": "supersecret",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies, "expected session cookie to be set")
	return cookies
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
