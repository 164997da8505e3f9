package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/yukikurage/taskflow/internal/config"
	"github.com/yukikurage/taskflow/internal/database"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/metrics"
	"github.com/yukikurage/taskflow/internal/password"
	"github.com/yukikurage/taskflow/internal/repository"
	"github.com/yukikurage/taskflow/internal/server"
	"github.com/yukikurage/taskflow/internal/services"
	"gorm.io/gorm"
)

const (
	Version = "0.1.0"
	appName = "taskflow"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Personal task management API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer app.close()

			if err := database.Migrate(app.db); err != nil {
				return err
			}
			app.logger.Info(cmd.Context(), "migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep-sessions",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer app.close()

			removed, err := app.services.Sessions.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			app.logger.Info(cmd.Context(), "expired sessions swept", "count", removed)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

type app struct {
	cfg      *config.Config
	logger   logging.Logger
	metrics  *metrics.Metrics
	db       *gorm.DB
	redis    *redis.Client
	services server.Services
}

// newApp loads the configuration and builds every dependency of the server.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.IsProduction())
	m := metrics.New()

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: m, db: db}

	users := repository.NewUserRepository(db)
	tasks := repository.NewTaskRepository(db)
	projects := repository.NewProjectRepository(db)
	labels := repository.NewLabelRepository(db)
	transactor := database.NewTransactor(db)

	var sessionRepo repository.SessionRepository
	switch cfg.SessionStore {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
		})
		sessionRepo = repository.NewRedisSessionRepository(a.redis)
	default:
		sessionRepo = repository.NewSessionRepository(db)
	}

	hasher, err := password.New(cfg.PasswordHasher)
	if err != nil {
		a.close()
		return nil, err
	}

	// A nil *AIService must not end up in the interface.
	var generator services.TaskGenerator
	if cfg.OpenAIAPIKey != "" {
		generator = services.NewAIService(cfg.OpenAIAPIKey)
	}

	sessionService := services.NewSessionService(sessionRepo, users, cfg.SessionTTL, logger, m)
	a.services = server.Services{
		Auth:          services.NewAuthService(users, sessionService, hasher, transactor, logger, m),
		Sessions:      sessionService,
		Tasks:         services.NewTaskService(tasks, projects, labels, transactor, generator),
		Projects:      services.NewProjectService(projects),
		Labels:        services.NewLabelService(labels),
		Reports:       services.NewReportService(tasks, projects),
		Notifications: services.NewNotificationService(tasks),
		Calendar:      services.NewCalendarService(users, tasks, []byte(cfg.SessionSecret), cfg.AppURL),
	}

	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn(context.Background(), "failed to close redis client", "error", err)
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func serve(ctx context.Context, configPath string) error {
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := database.Migrate(a.db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.redis != nil {
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	if a.cfg.SessionSweepInterval > 0 {
		go a.services.Sessions.RunSweeper(ctx, a.cfg.SessionSweepInterval)
	}

	gin.SetMode(a.cfg.GinMode)
	router := server.NewRouter(a.services, server.Options{
		SessionSecret:  a.cfg.SessionSecret,
		Secure:         a.cfg.IsProduction(),
		RequestTimeout: a.cfg.RequestTimeout,
	}, a.logger, a.metrics)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "server starting", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.logger.Info(shutdownCtx, "server shutting down")
	return srv.Shutdown(shutdownCtx)
}
