package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/taskflow/internal/database"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/password"
	"github.com/yukikurage/taskflow/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

func TestRegister_CreatesVerifiableUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ana, err := env.auth.Register(ctx, RegisterInput{Name: " Ana ", Email: "Ana@X.com", Password: "secret1"})
	require.NoError(t, err)
	bob, err := env.auth.Register(ctx, RegisterInput{Name: "Bob", Email: "bob@x.com", Password: "secret2"})
	require.NoError(t, err)

	assert.NotEqual(t, ana.ID, bob.ID)
	assert.Equal(t, "Ana", ana.Name)
	assert.Equal(t, "ana@x.com", ana.Email)
	assert.NotEqual(t, "secret1", ana.PasswordHash)

	verified, err := env.auth.Verify(ctx, "ANA@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, ana.ID, verified.ID)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Registrations.WithLabelValues("success")))
}

func TestRegister_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = env.auth.Register(ctx, RegisterInput{Name: "Bob", Email: "ANA@x.com", Password: "secret2"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, apierrors.KindDuplicateEmail, apierrors.KindOf(err))
	assert.Equal(t, int64(1), env.countUsers(t))
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"empty name", RegisterInput{Name: "  ", Email: "a@x.com", Password: "secret1"}, ErrNameRequired},
		{"empty email", RegisterInput{Name: "Ana", Email: "", Password: "secret1"}, ErrEmailRequired},
		{"email without at", RegisterInput{Name: "Ana", Email: "ana.x.com", Password: "secret1"}, ErrEmailInvalid},
		{"empty password", RegisterInput{Name: "Ana", Email: "a@x.com", Password: ""}, ErrPasswordRequired},
		{"short password", RegisterInput{Name: "Ana", Email: "a@x.com", Password: "abc"}, ErrPasswordTooShort},
		{"password over bcrypt limit", RegisterInput{Name: "Ana", Email: "a@x.com", Password: strings.Repeat("p", 73)}, ErrPasswordTooLong},
		{"multibyte password over bcrypt limit", RegisterInput{Name: "Ana", Email: "a@x.com", Password: strings.Repeat("é", 37)}, ErrPasswordTooLong},
		{"email over column limit", RegisterInput{Name: "Ana", Email: strings.Repeat("a", 250) + "@x.com", Password: "secret1"}, ErrEmailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.auth.Register(context.Background(), tt.input)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, apierrors.IsKind(err, apierrors.KindValidation))
			assert.Zero(t, env.countUsers(t))
		})
	}
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.auth.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateEmail)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), env.countUsers(t))
}

func TestVerify_SameErrorForUnknownEmailAndWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, wrongPassword := env.auth.Verify(ctx, "ana@x.com", "secret2")
	_, unknownEmail := env.auth.Verify(ctx, "nobody@x.com", "secret1")

	require.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLogin_IssuesIndependentSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, laptop, _, err := env.auth.Login(ctx, "ana@x.com", "secret1", Meta{UserAgent: "laptop"})
	require.NoError(t, err)
	_, phone, _, err := env.auth.Login(ctx, "ana@x.com", "secret1", Meta{UserAgent: "phone"})
	require.NoError(t, err)
	assert.NotEqual(t, laptop, phone)

	require.NoError(t, env.sessions.Invalidate(ctx, laptop))

	sess, err := env.sessions.Get(ctx, phone)
	require.NoError(t, err)
	assert.NotNil(t, sess, "revoking one device keeps the others")

	_, _, _, err = env.auth.Login(ctx, "ana@x.com", "wrong-pass", Meta{})
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Logins.WithLabelValues("invalid_credentials")))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Logins.WithLabelValues("success")))
}

type failingSessionRepo struct {
	repository.SessionRepository
	transactional   bool
	createErr       error
	deleteByUserErr error
	deleted         []string
}

func (f *failingSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.SessionRepository.Create(ctx, session)
}

func (f *failingSessionRepo) Delete(ctx context.Context, tokenHash string) (bool, error) {
	f.deleted = append(f.deleted, tokenHash)
	return f.SessionRepository.Delete(ctx, tokenHash)
}

func (f *failingSessionRepo) DeleteByUser(ctx context.Context, userID uint64, keepTokenHash string) (int64, error) {
	if f.deleteByUserErr != nil {
		return 0, f.deleteByUserErr
	}
	return f.SessionRepository.DeleteByUser(ctx, userID, keepTokenHash)
}

func (f *failingSessionRepo) Transactional() bool {
	return f.transactional
}

func TestRegisterWithSession_RollsBackUserWhenSessionFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	repo := &failingSessionRepo{
		SessionRepository: repository.NewSessionRepository(env.db),
		transactional:     true,
		createErr:         errors.New("disk full"),
	}
	sessions := NewSessionService(repo, env.users, time.Hour, nil, nil)
	auth := NewAuthService(env.users, sessions, password.NewBcrypt(bcrypt.MinCost), database.NewTransactor(env.db), nil, nil)

	_, _, _, err := auth.RegisterWithSession(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"}, Meta{})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindUnexpected, apierrors.KindOf(err))
	assert.Zero(t, env.countUsers(t), "user must not outlive a failed session")
}

type commitFailingTransactor struct{}

func (commitFailingTransactor) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return err
	}
	return errors.New("commit failed")
}

func TestRegisterWithSession_RevokesNonTransactionalSessionOnFailedCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	repo := &failingSessionRepo{
		SessionRepository: repository.NewSessionRepository(env.db),
		transactional:     false,
	}
	sessions := NewSessionService(repo, env.users, time.Hour, nil, nil)
	auth := NewAuthService(env.users, sessions, password.NewBcrypt(bcrypt.MinCost), commitFailingTransactor{}, nil, nil)

	_, token, _, err := auth.RegisterWithSession(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"}, Meta{})
	require.Error(t, err)
	assert.Empty(t, token)
	require.Len(t, repo.deleted, 1, "the issued session is revoked")

	var count int64
	require.NoError(t, env.db.Model(&models.Session{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _ = env.login(t, "Bob", "bob@x.com")
	current, sess := env.login(t, "Ana", "ana@x.com")
	_, other, _, err := env.auth.Login(ctx, "ana@x.com", "secret1", Meta{})
	require.NoError(t, err)

	taken := "BOB@x.com"
	_, err = env.auth.UpdateProfile(ctx, sess, current, UpdateProfileInput{Email: &taken})
	require.ErrorIs(t, err, ErrDuplicateEmail)

	name := "Ana Maria"
	newPassword := "secret9"
	user, err := env.auth.UpdateProfile(ctx, sess, current, UpdateProfileInput{Name: &name, Password: &newPassword})
	require.NoError(t, err)
	assert.Equal(t, sess.UserID(), user.ID)
	assert.Equal(t, "Ana Maria", user.Name)

	_, err = env.auth.Verify(ctx, "ana@x.com", "secret9")
	require.NoError(t, err)

	still, err := env.sessions.Get(ctx, current)
	require.NoError(t, err)
	assert.NotNil(t, still)

	gone, err := env.sessions.Get(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, gone, "password change revokes other sessions")
}

func TestRegister_AcceptsPasswordAtBcryptLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	plain := strings.Repeat("p", 72)

	_, err := env.auth.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: plain})
	require.NoError(t, err)

	_, err = env.auth.Verify(ctx, "ana@x.com", plain)
	assert.NoError(t, err)
}

func TestUpdateProfile_RejectsOverlongInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	current, sess := env.login(t, "Ana", "ana@x.com")

	long := strings.Repeat("p", 73)
	_, err := env.auth.UpdateProfile(ctx, sess, current, UpdateProfileInput{Password: &long})
	require.ErrorIs(t, err, ErrPasswordTooLong)
	assert.True(t, apierrors.IsKind(err, apierrors.KindValidation))

	email := strings.Repeat("a", 250) + "@x.com"
	_, err = env.auth.UpdateProfile(ctx, sess, current, UpdateProfileInput{Email: &email})
	require.ErrorIs(t, err, ErrEmailTooLong)

	_, err = env.auth.Verify(ctx, "ana@x.com", "secret1")
	assert.NoError(t, err)
}

func TestUpdateProfile_RollsBackPasswordWhenRevocationFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	repo := &failingSessionRepo{
		SessionRepository: repository.NewSessionRepository(env.db),
		transactional:     true,
		deleteByUserErr:   errors.New("disk full"),
	}
	sessions := NewSessionService(repo, env.users, time.Hour, nil, nil)
	auth := NewAuthService(env.users, sessions, password.NewBcrypt(bcrypt.MinCost), database.NewTransactor(env.db), nil, nil)

	_, err := auth.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)
	_, current, sess, err := auth.Login(ctx, "ana@x.com", "secret1", Meta{})
	require.NoError(t, err)
	_, other, _, err := auth.Login(ctx, "ana@x.com", "secret1", Meta{})
	require.NoError(t, err)

	newPassword := "secret9"
	_, err = auth.UpdateProfile(ctx, sess, current, UpdateProfileInput{Password: &newPassword})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindUnexpected, apierrors.KindOf(err))

	_, err = auth.Verify(ctx, "ana@x.com", "secret1")
	assert.NoError(t, err, "old password still works")
	_, err = auth.Verify(ctx, "ana@x.com", "secret9")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	still, err := sessions.Get(ctx, other)
	require.NoError(t, err)
	assert.NotNil(t, still)
}
