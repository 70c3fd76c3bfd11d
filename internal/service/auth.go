// Package service holds the business operations behind the HTTP API.
// Services compose repository queries, own transaction boundaries and
// publish events once a change has committed.
package service

import (
	"context"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/logging"
	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/queue"
	"github.com/iliyamo/anythought/internal/repository"
	"github.com/iliyamo/anythought/internal/tracing"
	"github.com/iliyamo/anythought/internal/utils"
)

// ErrUnauthorized covers bad credentials and missing or expired sessions.
var ErrUnauthorized = errors.New("unauthorized")

// SessionStore is the session lifecycle the auth service relies on.
type SessionStore interface {
	Create(ctx context.Context, token, userID string) (model.Session, error)
	Get(ctx context.Context, token string) (model.Session, error)
	Refresh(ctx context.Context, id string) (model.Session, error)
	Del(ctx context.Context, userID, token string) error
	DelAll(ctx context.Context, userID string) (int, error)
}

type AuthService struct {
	users    *repository.UserRepo
	sessions SessionStore
	events   EventPublisher
	window   time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewAuthService wires the auth service.  Sessions expiring within window
// of a validated request are refreshed.
func NewAuthService(users *repository.UserRepo, sessions SessionStore, events EventPublisher, window time.Duration, log logrus.FieldLogger) *AuthService {
	if events == nil {
		events = NopPublisher{}
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		events:   events,
		window:   window,
		now:      time.Now,
		log:      logging.Component(log, "auth"),
	}
}

// WithClock replaces the service clock.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

type SignupInput struct {
	Username string
	Name     string
	Email    *string
	Password string
}

// Signup creates an account.  A taken username yields repository.ErrUsernameTaken.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (u model.User, err error) {
	ctx, span := tracing.Start(ctx, "AuthService.Signup")
	defer func() { tracing.End(span, err) }()

	salt, err := utils.NewSalt()
	if err != nil {
		return model.User{}, err
	}
	id, err := utils.NewUserID()
	if err != nil {
		return model.User{}, err
	}
	return s.users.Create(ctx, model.AuthUser{
		User: model.User{
			ID:        id,
			Username:  in.Username,
			Name:      in.Name,
			Email:     in.Email,
			Image:     AvatarURL(in.Name),
			CreatedAt: s.now(),
		},
		Password: utils.HashPassword(in.Password, salt),
		Salt:     salt,
	})
}

// AvatarURL is the generated avatar for a display name.
func AvatarURL(name string) string {
	return "https://api.dicebear.com/9.x/notionists/svg?seed=" + url.QueryEscape(name)
}

// Login checks credentials and opens a session.  The raw token is returned
// once and never stored.
func (s *AuthService) Login(ctx context.Context, username, password string) (token string, sess model.Session, err error) {
	ctx, span := tracing.Start(ctx, "AuthService.Login")
	defer func() { tracing.End(span, err) }()

	user, err := s.users.FindAuthByUsername(ctx, username)
	if errors.Is(err, repository.ErrUserNotFound) {
		return "", model.Session{}, ErrUnauthorized
	}
	if err != nil {
		return "", model.Session{}, err
	}
	if !utils.VerifyPassword(user.Password, password, user.Salt) {
		return "", model.Session{}, ErrUnauthorized
	}
	token, err = utils.NewSessionToken()
	if err != nil {
		return "", model.Session{}, err
	}
	sess, err = s.sessions.Create(ctx, token, user.ID)
	if err != nil {
		return "", model.Session{}, err
	}
	return token, sess, nil
}

// Signout ends the session of token.
func (s *AuthService) Signout(ctx context.Context, userID, token string) error {
	return s.sessions.Del(ctx, userID, token)
}

// SignoutAll ends every session of userID.
func (s *AuthService) SignoutAll(ctx context.Context, userID string) (int, error) {
	return s.sessions.DelAll(ctx, userID)
}

// ValidateRequest resolves token to its user.  Expired sessions are deleted
// and rejected; sessions expiring within the refresh window are extended.
func (s *AuthService) ValidateRequest(ctx context.Context, token string) (u model.User, sess model.Session, err error) {
	ctx, span := tracing.Start(ctx, "AuthService.ValidateRequest")
	defer func() { tracing.End(span, err) }()

	sess, err = s.sessions.Get(ctx, token)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return model.User{}, model.Session{}, ErrUnauthorized
	}
	if err != nil {
		return model.User{}, model.Session{}, err
	}

	now := s.now()
	if sess.Expired(now) {
		if err := s.sessions.Del(ctx, sess.UserID, token); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
			return model.User{}, model.Session{}, err
		}
		return model.User{}, model.Session{}, ErrUnauthorized
	}
	if sess.ExpiresAt.Sub(now) <= s.window {
		refreshed, err := s.sessions.Refresh(ctx, sess.ID)
		switch {
		case errors.Is(err, repository.ErrSessionNotFound):
			// logged out concurrently
			return model.User{}, model.Session{}, ErrUnauthorized
		case err != nil:
			return model.User{}, model.Session{}, err
		}
		sess = refreshed
	}

	u, err = s.users.FindByID(ctx, sess.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return model.User{}, model.Session{}, ErrUnauthorized
	}
	if err != nil {
		return model.User{}, model.Session{}, err
	}
	return u, sess, nil
}

// DeleteAccount removes the user row (cascading to friends, requests,
// posts and assets), then every session of the user.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) (revoked int, err error) {
	ctx, span := tracing.Start(ctx, "AuthService.DeleteAccount")
	defer func() { tracing.End(span, err) }()

	if err := s.users.Delete(ctx, userID); err != nil {
		return 0, err
	}
	revoked, err = s.sessions.DelAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	publishAfterCommit(ctx, s.log, queue.AccountDeletedQueue, func(ctx context.Context) error {
		return s.events.AccountDeleted(ctx, queue.AccountDeletedEvent{
			UserID:          userID,
			SessionsRevoked: revoked,
			DeletedAt:       s.now().UTC(),
		})
	})
	return revoked, nil
}
