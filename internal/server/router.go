package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/taskflow/internal/constants"
	"github.com/yukikurage/taskflow/internal/handlers"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/metrics"
	"github.com/yukikurage/taskflow/internal/middleware"
	"github.com/yukikurage/taskflow/internal/services"
)

// Options configures the router.
type Options struct {
	SessionSecret  string
	Secure         bool
	RequestTimeout time.Duration
}

// Services are the domain services the routes call into.
type Services struct {
	Auth          *services.AuthService
	Sessions      *services.SessionService
	Tasks         *services.TaskService
	Projects      *services.ProjectService
	Labels        *services.LabelService
	Reports       *services.ReportService
	Notifications *services.NotificationService
	Calendar      *services.CalendarService
}

// NewRouter wires middleware, handlers and routes.
func NewRouter(svc Services, opts Options, logger logging.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Metrics(m))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.RequestTimeout(opts.RequestTimeout))
	}

	// The cookie only carries the session token; session state lives in the session store.
	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(svc.Sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(constants.SessionCookieName, store))

	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Sessions, logger)
	taskHandler := handlers.NewTaskHandler(svc.Tasks, logger)
	projectHandler := handlers.NewProjectHandler(svc.Projects, logger)
	labelHandler := handlers.NewLabelHandler(svc.Labels, logger)
	reportHandler := handlers.NewReportHandler(svc.Reports, svc.Notifications, svc.Calendar, logger)

	requireAuth := middleware.RequireAuth(svc.Sessions, logger)
	requireID := middleware.RequireIDParam()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Task API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	// Calendar feed (token in path)
	r.GET("/calendar/:token", reportHandler.CalendarFeed)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", middleware.OptionalAuth(svc.Sessions, logger), authHandler.GetCurrentUser)
			auth.PATCH("/me", requireAuth, authHandler.UpdateCurrentUser)
			auth.GET("/session", requireAuth, authHandler.GetSession)
			auth.POST("/logout-all", requireAuth, authHandler.LogoutAll)
		}

		// Task routes (protected)
		tasks := api.Group("/tasks")
		tasks.Use(requireAuth)
		{
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
		}

		// Project routes (protected)
		projects := api.Group("/projects")
		projects.Use(requireAuth)
		{
			projects.GET("", projectHandler.ListProjects)
			projects.POST("", projectHandler.CreateProject)
			projects.GET("/:id", requireID, projectHandler.GetProject)
			projects.PATCH("/:id", requireID, projectHandler.UpdateProject)
			projects.DELETE("/:id", requireID, projectHandler.DeleteProject)
			projects.GET("/:id/tasks", requireID, taskHandler.ProjectTasks)
		}

		// Label routes (protected)
		labels := api.Group("/labels")
		labels.Use(requireAuth)
		{
			labels.GET("", labelHandler.ListLabels)
			labels.POST("", labelHandler.CreateLabel)
			labels.GET("/:id", requireID, labelHandler.GetLabel)
			labels.PATCH("/:id", requireID, labelHandler.UpdateLabel)
			labels.DELETE("/:id", requireID, labelHandler.DeleteLabel)
			labels.GET("/:id/tasks", requireID, taskHandler.LabelTasks)
		}

		api.GET("/notifications", requireAuth, reportHandler.Notifications)
		api.GET("/reports/summary", requireAuth, reportHandler.Summary)
		api.GET("/calendar/link", requireAuth, reportHandler.CalendarLink)
	}

	return r
}
