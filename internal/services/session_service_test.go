package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/metrics"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/repository"
	"github.com/yukikurage/taskflow/internal/utils"
)

func TestSessionGet_Active(t *testing.T) {
	env := newTestEnv(t)
	token, created := env.login(t, "Ana", "ana@x.com")

	sess, err := env.sessions.Get(context.Background(), token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, created.UserID(), sess.UserID())
	assert.Equal(t, "ana@x.com", sess.User.Email)
	assert.WithinDuration(t, sess.IssuedAt.Add(time.Hour), sess.ExpiresAt, time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionLookups.WithLabelValues(metrics.LookupActive)))
}

func TestSessionGet_MissesAreUniformButCountedApart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unknown, err := utils.GenerateSessionToken()
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-token", unknown} {
		sess, err := env.sessions.Get(ctx, token)
		require.NoError(t, err)
		assert.Nil(t, sess)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionLookups.WithLabelValues(metrics.LookupMissing)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionLookups.WithLabelValues(metrics.LookupMalformed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionLookups.WithLabelValues(metrics.LookupNotFound)))
}

func TestSessionGet_ExpiredIsDeletedLazily(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token, _ := env.login(t, "Ana", "ana@x.com")

	env.sessions.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	sess, err := env.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionLookups.WithLabelValues(metrics.LookupExpired)))

	var count int64
	require.NoError(t, env.db.Model(&models.Session{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSessionGet_UserGone(t *testing.T) {
	env := newTestEnv(t)
	token, sess := env.login(t, "Ana", "ana@x.com")

	require.NoError(t, env.db.Delete(&models.User{}, sess.UserID()).Error)

	got, err := env.sessions.Get(context.Background(), token)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionLookups.WithLabelValues(metrics.LookupNoUser)))
}

func TestSessionRequire(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sessions.Require(context.Background(), "")
	require.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 401, apierrors.KindOf(err).Status())
}

func TestSessionInvalidate_IdempotentAndConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token, _ := env.login(t, "Ana", "ana@x.com")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.sessions.Invalidate(ctx, token)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.NoError(t, env.sessions.Invalidate(ctx, token))
	assert.NoError(t, env.sessions.Invalidate(ctx, "garbage"))

	sess, err := env.sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSessionInvalidate_CountsOnlyRemovedSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token, _ := env.login(t, "Ana", "ana@x.com")
	unknown, err := utils.GenerateSessionToken()
	require.NoError(t, err)

	require.NoError(t, env.sessions.Invalidate(ctx, token))
	require.NoError(t, env.sessions.Invalidate(ctx, token))
	require.NoError(t, env.sessions.Invalidate(ctx, unknown))
	require.NoError(t, env.sessions.Invalidate(ctx, "garbage"))

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionsRevoked))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		limit int
		want  string
	}{
		{"short", "curl/8.0", 255, "curl/8.0"},
		{"exact", "abc", 3, "abc"},
		{"ascii", "abcdef", 4, "abcd"},
		{"backs up before split rune", strings.Repeat("a", 254) + "é", 255, strings.Repeat("a", 254)},
		{"keeps whole rune at boundary", "ab" + "é", 4, "abé"},
		{"four byte rune", "a" + "😀", 3, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.value, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.limit)
		})
	}
}

func TestSessionInvalidateAllForUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	current, _ := env.login(t, "Ana", "ana@x.com")
	bob, _ := env.login(t, "Bob", "bob@x.com")

	_, second, _, err := env.auth.Login(ctx, "ana@x.com", "secret1", Meta{})
	require.NoError(t, err)
	sess, err := env.sessions.Get(ctx, current)
	require.NoError(t, err)

	revoked, err := env.sessions.InvalidateAllForUser(ctx, sess.UserID(), current)
	require.NoError(t, err)
	assert.Equal(t, int64(1), revoked)

	for token, alive := range map[string]bool{current: true, second: false, bob: true} {
		got, err := env.sessions.Get(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, alive, got != nil)
	}
}

func TestSessionSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.login(t, "Ana", "ana@x.com")

	removed, err := env.sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	env.sessions.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	removed, err = env.sessions.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SessionsSwept))
}

type brokenSessionRepo struct {
	repository.SessionRepository
}

func (brokenSessionRepo) FindByTokenHash(context.Context, string) (*models.Session, error) {
	return nil, context.DeadlineExceeded
}

func TestSessionGet_StorageTimeoutIsTransient(t *testing.T) {
	env := newTestEnv(t)
	sessions := NewSessionService(brokenSessionRepo{}, env.users, time.Hour, nil, env.metrics)
	token, err := utils.GenerateSessionToken()
	require.NoError(t, err)

	_, err = sessions.Get(context.Background(), token)
	require.Error(t, err)
	assert.Equal(t, apierrors.KindTransient, apierrors.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSessionService_RedisStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sessions := NewSessionService(repository.NewRedisSessionRepository(client), env.users, time.Hour, nil, nil)
	user, err := env.auth.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@x.com", Password: "secret1"})
	require.NoError(t, err)

	token, _, err := sessions.Create(ctx, user, Meta{UserAgent: "test"})
	require.NoError(t, err)
	assert.False(t, sessions.Transactional())

	sess, err := sessions.Get(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, user.ID, sess.UserID())

	require.NoError(t, sessions.Invalidate(ctx, token))
	sess, err = sessions.Get(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, sess)
}
