package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/yukikurage/taskflow/internal/constants"
	"github.com/yukikurage/taskflow/internal/database"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/metrics"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/password"
	"github.com/yukikurage/taskflow/internal/repository"
)

var (
	ErrNameRequired       = apierrors.Validation("Name is required")
	ErrNameTooLong        = apierrors.Validation(fmt.Sprintf("Name must be at most %d characters", constants.MaxNameLength))
	ErrEmailRequired      = apierrors.Validation("Email is required")
	ErrEmailInvalid       = apierrors.Validation("Email is invalid")
	ErrEmailTooLong       = apierrors.Validation(fmt.Sprintf("Email must be at most %d characters", constants.MaxEmailLength))
	ErrPasswordRequired   = apierrors.Validation("Password is required")
	ErrPasswordTooShort   = apierrors.Validation(fmt.Sprintf("Password must be at least %d characters", constants.MinPasswordLength))
	ErrPasswordTooLong    = apierrors.Validation(fmt.Sprintf("Password must be at most %d bytes", constants.MaxPasswordBytes))
	ErrDuplicateEmail     = apierrors.New(apierrors.KindDuplicateEmail, "Email is already registered")
	ErrInvalidCredentials = apierrors.New(apierrors.KindInvalidCredentials, "Invalid email or password")
	ErrUserNotFound       = apierrors.New(apierrors.KindNotFound, "User not found")
)

// Registration and login outcomes reported to metrics.
const (
	outcomeSuccess            = "success"
	outcomeInvalid            = "invalid"
	outcomeDuplicateEmail     = "duplicate_email"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeError              = "error"
)

const dummyPassword = "taskflow-dummy-password"

// AuthService handles authentication related business logic.
type AuthService struct {
	users      repository.UserRepository
	sessions   *SessionService
	hasher     password.Hasher
	transactor database.Transactor
	logger     logging.Logger
	metrics    *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users repository.UserRepository,
	sessions *SessionService,
	hasher password.Hasher,
	transactor database.Transactor,
	logger logging.Logger,
	m *metrics.Metrics,
) *AuthService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AuthService{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		transactor: transactor,
		logger:     logger,
		metrics:    m,
	}
}

// RegisterInput represents the required information to create a new user.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates a new user account.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	user, err := s.register(ctx, input)
	s.observeRegistration(ctx, err)
	return user, err
}

// RegisterWithSession creates the user and its first session atomically.
// When the session store cannot join the database transaction, a session
// issued before a failed commit is revoked again.
func (s *AuthService) RegisterWithSession(ctx context.Context, input RegisterInput, meta Meta) (*models.User, string, *Session, error) {
	var (
		user  *models.User
		token string
		sess  *Session
	)

	err := s.transactor.Transaction(ctx, func(ctx context.Context) error {
		var err error
		if user, err = s.register(ctx, input); err != nil {
			return err
		}
		token, sess, err = s.sessions.Create(ctx, user, meta)
		return err
	})
	if err != nil {
		if token != "" && !s.sessions.Transactional() {
			if revokeErr := s.sessions.Invalidate(context.WithoutCancel(ctx), token); revokeErr != nil {
				s.logger.Error(ctx, "failed to revoke session of rolled back registration", "error", revokeErr)
			}
		}
		s.observeRegistration(ctx, err)
		return nil, "", nil, s.storageError("failed to register user", err)
	}

	s.observeRegistration(ctx, nil)
	return user, token, sess, nil
}

func (s *AuthService) register(ctx context.Context, input RegisterInput) (*models.User, error) {
	name, err := normalizeName(input.Name)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apierrors.Storage("failed to check email", err)
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindUnexpected, "failed to hash password", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hashed,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, apierrors.Storage("failed to create user", err)
	}

	return user, nil
}

// Verify checks an email and password pair. An unknown email and a wrong
// password fail with the same ErrInvalidCredentials.
func (s *AuthService) Verify(ctx context.Context, email, plain string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || plain == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Keep the timing of unknown emails close to that of wrong passwords.
			_, _ = s.hasher.Verify(plain, s.dummy())
			return nil, ErrInvalidCredentials
		}
		return nil, apierrors.Storage("failed to find user", err)
	}

	ok, err := s.hasher.Verify(plain, user.PasswordHash)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindUnexpected, "failed to verify password", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// Login verifies credentials and issues a new session.
func (s *AuthService) Login(ctx context.Context, email, plain string, meta Meta) (*models.User, string, *Session, error) {
	user, err := s.Verify(ctx, email, plain)
	if err == nil {
		var token string
		var sess *Session
		if token, sess, err = s.sessions.Create(ctx, user, meta); err == nil {
			s.metrics.ObserveLogin(outcomeSuccess)
			s.logger.Info(ctx, "user logged in", "user_id", user.ID)
			return user, token, sess, nil
		}
	}

	if apierrors.IsKind(err, apierrors.KindInvalidCredentials) {
		s.metrics.ObserveLogin(outcomeInvalidCredentials)
		s.logger.Info(ctx, "login rejected", "reason", outcomeInvalidCredentials)
	} else {
		s.metrics.ObserveLogin(outcomeError)
	}
	return nil, "", nil, err
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apierrors.Storage("failed to find user", err)
	}
	return user, nil
}

// UpdateProfileInput holds the optional profile changes.
type UpdateProfileInput struct {
	Name     *string
	Email    *string
	Password *string
}

// UpdateProfile changes the name, email or password of the session's user.
// A password change revokes every other session of the user.
func (s *AuthService) UpdateProfile(ctx context.Context, sess *Session, currentToken string, input UpdateProfileInput) (*models.User, error) {
	user, err := s.GetUser(ctx, sess.UserID())
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if user.Name, err = normalizeName(*input.Name); err != nil {
			return nil, err
		}
	}

	if input.Email != nil {
		email, err := normalizeEmail(*input.Email)
		if err != nil {
			return nil, err
		}
		if email != user.Email {
			if existing, err := s.users.FindByEmail(ctx, email); err == nil && existing.ID != user.ID {
				return nil, ErrDuplicateEmail
			} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, apierrors.Storage("failed to check email", err)
			}
			user.Email = email
		}
	}

	if input.Password != nil {
		if err := validatePassword(*input.Password); err != nil {
			return nil, err
		}
		if user.PasswordHash, err = s.hasher.Hash(*input.Password); err != nil {
			return nil, apierrors.Wrap(apierrors.KindUnexpected, "failed to hash password", err)
		}
	}

	save := func(ctx context.Context) error {
		if err := s.users.Update(ctx, user); err != nil {
			switch {
			case errors.Is(err, repository.ErrDuplicate):
				return ErrDuplicateEmail
			case errors.Is(err, repository.ErrNotFound):
				return ErrUserNotFound
			default:
				return apierrors.Storage("failed to update user", err)
			}
		}
		if input.Password != nil {
			if _, err := s.sessions.InvalidateAllForUser(ctx, user.ID, currentToken); err != nil {
				return err
			}
		}
		return nil
	}

	// Sessions in the same database roll back with the password change.
	if input.Password != nil && s.sessions.Transactional() {
		err = s.transactor.Transaction(ctx, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		return nil, s.storageError("failed to update user", err)
	}

	return user, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Error(context.Background(), "failed to prepare dummy password hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *AuthService) observeRegistration(ctx context.Context, err error) {
	switch {
	case err == nil:
		s.metrics.ObserveRegistration(outcomeSuccess)
	case apierrors.IsKind(err, apierrors.KindDuplicateEmail):
		s.metrics.ObserveRegistration(outcomeDuplicateEmail)
	case apierrors.IsKind(err, apierrors.KindValidation):
		s.metrics.ObserveRegistration(outcomeInvalid)
	default:
		s.metrics.ObserveRegistration(outcomeError)
		s.logger.Error(ctx, "registration failed", "error", err)
	}
}

// storageError keeps typed errors and classifies raw ones, such as a failed commit.
func (s *AuthService) storageError(op string, err error) error {
	var appErr *apierrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return ErrDuplicateEmail
	}
	return apierrors.Storage(op, err)
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > constants.MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrEmailRequired
	}
	if len(email) > constants.MaxEmailLength {
		return "", ErrEmailTooLong
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\r\n") {
		return "", ErrEmailInvalid
	}
	return email, nil
}

func validatePassword(plain string) error {
	if strings.TrimSpace(plain) == "" {
		return ErrPasswordRequired
	}
	if utf8.RuneCountInString(plain) < constants.MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(plain) > constants.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}
