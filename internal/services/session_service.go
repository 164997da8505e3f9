package services

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	apierrors "github.com/yukikurage/taskflow/internal/errors"
	"github.com/yukikurage/taskflow/internal/logging"
	"github.com/yukikurage/taskflow/internal/metrics"
	"github.com/yukikurage/taskflow/internal/models"
	"github.com/yukikurage/taskflow/internal/repository"
	"github.com/yukikurage/taskflow/internal/utils"
)

var ErrUnauthenticated = apierrors.New(apierrors.KindUnauthenticated, "Unauthorized")

// Session is the resolved login of the current request. It is built once by
// the auth middleware and passed to every domain call; it is never mutated.
type Session struct {
	User      models.User
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserID returns the id of the session's user.
func (s *Session) UserID() uint64 {
	return s.User.ID
}

// Meta describes the client a session is issued to.
type Meta struct {
	UserAgent string
	IP        string
}

// SessionService issues, resolves and revokes sessions.
//
// Sessions expire a fixed TTL after issuance; lookups never extend them.
// Expired records are removed lazily on lookup and in bulk by Sweep.
type SessionService struct {
	sessions repository.SessionRepository
	users    repository.UserRepository
	ttl      time.Duration
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewSessionService creates a new SessionService
func NewSessionService(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	ttl time.Duration,
	logger logging.Logger,
	m *metrics.Metrics,
) *SessionService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SessionService{
		sessions: sessions,
		users:    users,
		ttl:      ttl,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// TTL returns the lifetime of newly issued sessions.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Transactional reports whether session writes join the database transaction on ctx.
func (s *SessionService) Transactional() bool {
	return s.sessions.Transactional()
}

// Create issues a new session for user and returns the raw token.
// The token itself is never stored; only its hash is.
func (s *SessionService) Create(ctx context.Context, user *models.User, meta Meta) (string, *Session, error) {
	token, err := utils.GenerateSessionToken()
	if err != nil {
		return "", nil, apierrors.Wrap(apierrors.KindUnexpected, "failed to generate session token", err)
	}

	now := s.now()
	record := &models.Session{
		TokenHash: utils.HashSessionToken(token),
		UserID:    user.ID,
		UserAgent: truncate(meta.UserAgent, 255),
		IPAddress: truncate(meta.IP, 64),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if err := s.sessions.Create(ctx, record); err != nil {
		return "", nil, apierrors.Storage("failed to create session", err)
	}
	s.metrics.AddCreated()

	return token, &Session{User: *user, IssuedAt: record.CreatedAt, ExpiresAt: record.ExpiresAt}, nil
}

// Get resolves token to an active session. Every kind of miss returns
// (nil, nil); the reason is only visible in logs and metrics. An error is
// returned only when storage fails.
func (s *SessionService) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		s.reject(ctx, metrics.LookupMissing)
		return nil, nil
	}
	if err := utils.ValidateSessionToken(token); err != nil {
		s.reject(ctx, metrics.LookupMalformed)
		return nil, nil
	}

	tokenHash := utils.HashSessionToken(token)
	record, err := s.sessions.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.reject(ctx, metrics.LookupNotFound)
			return nil, nil
		}
		s.metrics.ObserveLookup(metrics.LookupError)
		return nil, apierrors.Storage("failed to look up session", err)
	}

	if record.ExpiredAt(s.now()) {
		s.reject(ctx, metrics.LookupExpired, "user_id", record.UserID)
		s.discard(ctx, tokenHash)
		return nil, nil
	}

	user, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.reject(ctx, metrics.LookupNoUser, "user_id", record.UserID)
			s.discard(ctx, tokenHash)
			return nil, nil
		}
		s.metrics.ObserveLookup(metrics.LookupError)
		return nil, apierrors.Storage("failed to load session user", err)
	}

	s.metrics.ObserveLookup(metrics.LookupActive)
	return &Session{User: *user, IssuedAt: record.CreatedAt, ExpiresAt: record.ExpiresAt}, nil
}

// Require is Get with a missing session reported as ErrUnauthenticated.
func (s *SessionService) Require(ctx context.Context, token string) (*Session, error) {
	sess, err := s.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

// Invalidate revokes the session behind token. Unknown, malformed and already
// revoked tokens are a no-op.
func (s *SessionService) Invalidate(ctx context.Context, token string) error {
	if utils.ValidateSessionToken(token) != nil {
		return nil
	}
	removed, err := s.sessions.Delete(ctx, utils.HashSessionToken(token))
	if err != nil {
		return apierrors.Storage("failed to delete session", err)
	}
	if removed {
		s.metrics.AddRevoked(1)
	}
	return nil
}

// InvalidateAllForUser revokes every session of userID except the one behind
// keepToken, which may be empty.
func (s *SessionService) InvalidateAllForUser(ctx context.Context, userID uint64, keepToken string) (int64, error) {
	keepHash := ""
	if keepToken != "" {
		keepHash = utils.HashSessionToken(keepToken)
	}

	revoked, err := s.sessions.DeleteByUser(ctx, userID, keepHash)
	if err != nil {
		return 0, apierrors.Storage("failed to delete user sessions", err)
	}
	s.metrics.AddRevoked(revoked)
	s.logger.Info(ctx, "sessions revoked", "user_id", userID, "count", revoked)
	return revoked, nil
}

// Sweep deletes expired session records.
func (s *SessionService) Sweep(ctx context.Context) (int64, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, apierrors.Storage("failed to sweep sessions", err)
	}
	s.metrics.AddSwept(removed)
	return removed, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn(ctx, "session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				s.logger.Info(ctx, "expired sessions swept", "count", removed)
			}
		}
	}
}

func (s *SessionService) reject(ctx context.Context, outcome string, args ...any) {
	s.metrics.ObserveLookup(outcome)
	s.logger.Debug(ctx, "no session", append([]any{"reason", outcome}, args...)...)
}

func (s *SessionService) discard(ctx context.Context, tokenHash string) {
	if _, err := s.sessions.Delete(ctx, tokenHash); err != nil {
		s.logger.Warn(ctx, "failed to delete stale session", "error", err)
	}
}

// truncate cuts value to at most limit bytes without splitting a rune.
func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	for limit > 0 && !utf8.RuneStart(value[limit]) {
		limit--
	}
	return value[:limit]
}
