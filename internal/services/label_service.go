package services

import (
	"context"

	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/repository"
)

var ErrLabelNotFound = apierrors.New(apierrors.KindNotFound, "Label not found")

// LabelService handles label business logic
type LabelService struct {
	labels repository.LabelRepository
}

// NewLabelService creates a new LabelService
func NewLabelService(labels repository.LabelRepository) *LabelService {
	return &LabelService{labels: labels}
}

// LabelInput holds label fields. Nil fields are left unchanged on update.
type LabelInput = ProjectInput

func (s *LabelService) List(ctx context.Context, sess *Session) ([]models.Label, error) {
	labels, err := s.labels.List(ctx, sess.UserID())
	if err != nil {
		return nil, apierrors.Storage("failed to list labels", err)
	}
	return labels, nil
}

func (s *LabelService) Get(ctx context.Context, sess *Session, id uint64) (*models.Label, error) {
	label, err := s.labels.FindByID(ctx, sess.UserID(), id)
	if err != nil {
		return nil, notFoundOr(ErrLabelNotFound, "failed to find label", err)
	}
	return label, nil
}

func (s *LabelService) Create(ctx context.Context, sess *Session, input LabelInput) (*models.Label, error) {
	label := &models.Label{UserID: sess.UserID(), Color: defaultColor}
	if input.Name == nil {
		return nil, ErrNameRequired
	}
	if err := applyNameColor(&label.Name, &label.Color, input); err != nil {
		return nil, err
	}

	if err := s.labels.Create(ctx, label); err != nil {
		return nil, apierrors.Storage("failed to create label", err)
	}
	return label, nil
}

func (s *LabelService) Update(ctx context.Context, sess *Session, id uint64, input LabelInput) (*models.Label, error) {
	label, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if err := applyNameColor(&label.Name, &label.Color, input); err != nil {
		return nil, err
	}

	if err := s.labels.Update(ctx, label); err != nil {
		return nil, notFoundOr(ErrLabelNotFound, "failed to update label", err)
	}
	return label, nil
}

// Delete removes the label and detaches it from every task
func (s *LabelService) Delete(ctx context.Context, sess *Session, id uint64) error {
	if err := s.labels.Delete(ctx, sess.UserID(), id); err != nil {
		return notFoundOr(ErrLabelNotFound, "failed to delete label", err)
	}
	return nil
}
