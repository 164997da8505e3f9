package services

import (
	"context"
	"math"
	"time"

	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/repository"
)

// Summary aggregates a user's tasks.
type Summary struct {
	TotalTasks        int64            `json:"total_tasks"`
	CompletedTasks    int64            `json:"completed_tasks"`
	OpenTasks         int64            `json:"open_tasks"`
	OverdueTasks      int64            `json:"overdue_tasks"`
	DueToday          int64            `json:"due_today"`
	CompletedThisWeek int64            `json:"completed_this_week"`
	CompletionRate    float64          `json:"completion_rate"`
	Projects          []ProjectSummary `json:"projects"`
}

// ProjectSummary counts the tasks of one project. ProjectID is nil for the inbox.
type ProjectSummary struct {
	ProjectID *uint64 `json:"project_id"`
	Name      string  `json:"name"`
	Total     int64   `json:"total"`
	Completed int64   `json:"completed"`
}

// ReportService computes task statistics
type ReportService struct {
	tasks    repository.TaskRepository
	projects repository.ProjectRepository
	now      func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(tasks repository.TaskRepository, projects repository.ProjectRepository) *ReportService {
	return &ReportService{tasks: tasks, projects: projects, now: time.Now}
}

// Summary returns statistics over the session user's tasks
func (s *ReportService) Summary(ctx context.Context, sess *Session) (*Summary, error) {
	userID := sess.UserID()
	startOfToday, startOfTomorrow := dayBounds(s.now())
	weekAgo := startOfToday.AddDate(0, 0, -6)
	open := false

	counts, err := s.tasks.CountByProject(ctx, userID)
	if err != nil {
		return nil, apierrors.Storage("failed to count tasks", err)
	}

	summary := &Summary{Projects: []ProjectSummary{}}
	if summary.OverdueTasks, err = s.tasks.Count(ctx, repository.TaskFilter{
		UserID: userID, Completed: &open, DueBefore: &startOfToday,
	}); err != nil {
		return nil, apierrors.Storage("failed to count overdue tasks", err)
	}
	if summary.DueToday, err = s.tasks.Count(ctx, repository.TaskFilter{
		UserID: userID, Completed: &open, DueFrom: &startOfToday, DueBefore: &startOfTomorrow,
	}); err != nil {
		return nil, apierrors.Storage("failed to count tasks due today", err)
	}
	if summary.CompletedThisWeek, err = s.tasks.Count(ctx, repository.TaskFilter{
		UserID: userID, Completed: boolPtr(true), CompletedSince: &weekAgo,
	}); err != nil {
		return nil, apierrors.Storage("failed to count completed tasks", err)
	}

	projects, err := s.projects.List(ctx, userID)
	if err != nil {
		return nil, apierrors.Storage("failed to list projects", err)
	}

	inbox := ProjectSummary{Name: "Inbox"}
	byProject := make(map[uint64]*ProjectSummary, len(projects))
	for _, p := range projects {
		id := p.ID
		summary.Projects = append(summary.Projects, ProjectSummary{ProjectID: &id, Name: p.Name})
	}
	for i := range summary.Projects {
		byProject[*summary.Projects[i].ProjectID] = &summary.Projects[i]
	}

	for _, c := range counts {
		target := &inbox
		if c.ProjectID != nil {
			p, ok := byProject[*c.ProjectID]
			if !ok {
				continue
			}
			target = p
		}
		target.Total += c.Count
		summary.TotalTasks += c.Count
		if c.Completed {
			target.Completed += c.Count
			summary.CompletedTasks += c.Count
		}
	}
	summary.Projects = append([]ProjectSummary{inbox}, summary.Projects...)

	summary.OpenTasks = summary.TotalTasks - summary.CompletedTasks
	if summary.TotalTasks > 0 {
		rate := float64(summary.CompletedTasks) / float64(summary.TotalTasks)
		summary.CompletionRate = math.Round(rate*1000) / 1000
	}

	return summary, nil
}
