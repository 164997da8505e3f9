package services

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yukikurage/taskflow/internal/constants"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/repository"
)

var (
	ErrProjectNotFound = apierrors.New(apierrors.KindNotFound, "Project not found")
	ErrInvalidColor    = apierrors.Validation("Color must be a hex value such as #3b82f6")
)

var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

const defaultColor = "#808080"

// ProjectService handles project business logic
type ProjectService struct {
	projects repository.ProjectRepository
}

// NewProjectService creates a new ProjectService
func NewProjectService(projects repository.ProjectRepository) *ProjectService {
	return &ProjectService{projects: projects}
}

// ProjectInput holds project fields. Nil fields are left unchanged on update.
type ProjectInput struct {
	Name  *string
	Color *string
}

func (s *ProjectService) List(ctx context.Context, sess *Session) ([]models.Project, error) {
	projects, err := s.projects.List(ctx, sess.UserID())
	if err != nil {
		return nil, apierrors.Storage("failed to list projects", err)
	}
	return projects, nil
}

func (s *ProjectService) Get(ctx context.Context, sess *Session, id uint64) (*models.Project, error) {
	project, err := s.projects.FindByID(ctx, sess.UserID(), id)
	if err != nil {
		return nil, notFoundOr(ErrProjectNotFound, "failed to find project", err)
	}
	return project, nil
}

func (s *ProjectService) Create(ctx context.Context, sess *Session, input ProjectInput) (*models.Project, error) {
	project := &models.Project{UserID: sess.UserID(), Color: defaultColor}
	if input.Name == nil {
		return nil, ErrNameRequired
	}
	if err := applyNameColor(&project.Name, &project.Color, input); err != nil {
		return nil, err
	}

	if err := s.projects.Create(ctx, project); err != nil {
		return nil, apierrors.Storage("failed to create project", err)
	}
	return project, nil
}

func (s *ProjectService) Update(ctx context.Context, sess *Session, id uint64, input ProjectInput) (*models.Project, error) {
	project, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if err := applyNameColor(&project.Name, &project.Color, input); err != nil {
		return nil, err
	}

	if err := s.projects.Update(ctx, project); err != nil {
		return nil, notFoundOr(ErrProjectNotFound, "failed to update project", err)
	}
	return project, nil
}

// Delete removes the project together with its tasks
func (s *ProjectService) Delete(ctx context.Context, sess *Session, id uint64) error {
	if err := s.projects.Delete(ctx, sess.UserID(), id); err != nil {
		return notFoundOr(ErrProjectNotFound, "failed to delete project", err)
	}
	return nil
}

func applyNameColor(name, color *string, input ProjectInput) error {
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return ErrNameRequired
		}
		if utf8.RuneCountInString(trimmed) > constants.MaxNameLength {
			return ErrNameTooLong
		}
		*name = trimmed
	}
	if input.Color != nil {
		c := strings.TrimSpace(*input.Color)
		if c == "" {
			c = defaultColor
		}
		if !colorPattern.MatchString(c) {
			return ErrInvalidColor
		}
		*color = c
	}
	return nil
}
