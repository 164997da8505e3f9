package services

import (
	"errors"

	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/repository"
)

// ErrNotFound is reported for missing resources and for resources owned by
// another user alike.
var ErrNotFound = apierrors.New(apierrors.KindNotFound, "Resource not found")

// Authorize checks that the session's user owns a resource. It performs no
// I/O; the caller fetches ownerID first.
func Authorize(sess *Session, ownerID uint64) error {
	if sess == nil || sess.UserID() != ownerID {
		return ErrNotFound
	}
	return nil
}

// notFoundOr maps repository.ErrNotFound to notFound and classifies any other
// storage failure.
func notFoundOr(notFound error, op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound
	}
	return apierrors.Storage(op, err)
}
