package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/holocron/internal/domain/user"
	"github.com/geocoder89/holocron/internal/notifications"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

var tracer = otel.Tracer("github.com/geocoder89/holocron/internal/auth")

const maxPasswordBytes = 72

type UserStore interface {
	Create(ctx context.Context, email, passwordHash string, role user.Role) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	SetRefreshTokenHash(ctx context.Context, id, hash string) error
	// SwapRefreshTokenHash replaces oldHash with newHash only if oldHash is
	// still the stored value. It reports whether the swap happened.
	SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error)
	ClearRefreshTokenHash(ctx context.Context, id string) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

type Alerter interface {
	SendSessionRevoked(ctx context.Context, in notifications.SessionRevokedInput) error
}

// EventRecorder counts auth outcomes (login ok/failed, reuse detected, ...).
type EventRecorder interface {
	AuthEvent(op, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) AuthEvent(string, string) {}

type Identity struct {
	UserID string
	Email  string
	Role   user.Role
}

// Session is the result of a login or a refresh: a fresh access token plus the
// refresh token that the transport layer hands to the client.
type Session struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             user.User
}

type Service struct {
	users   UserStore
	tokens  *Issuer
	hasher  PasswordHasher
	log     *slog.Logger
	events  EventRecorder
	alerter Alerter

	dummyOnce sync.Once
	dummyHash string
}

type Option func(*Service)

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithRecorder(r EventRecorder) Option {
	return func(s *Service) { s.events = r }
}

func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alerter = a }
}

func NewService(users UserStore, tokens *Issuer, hasher PasswordHasher, opts ...Option) *Service {
	s := &Service{
		users:  users,
		tokens: tokens,
		hasher: hasher,
		log:    slog.Default(),
		events: noopRecorder{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) Tokens() *Issuer {
	return s.tokens
}

func (s *Service) Register(ctx context.Context, email, password, role string) (u user.User, err error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	email = user.NormalizeEmail(email)

	if email == "" || password == "" {
		return user.User{}, ErrMissingCredentials
	}

	// bcrypt only reads the first 72 bytes
	if len(password) > maxPasswordBytes {
		return user.User{}, ErrPasswordTooLong
	}

	r, ok := user.ParseRole(role)
	if !ok {
		return user.User{}, ErrInvalidRole
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return user.User{}, ErrPasswordTooLong
		}
		return user.User{}, ErrInternal.wrap(err)
	}

	u, err = s.users.Create(ctx, email, hash, r)
	if err != nil {
		if errors.Is(err, user.ErrEmailTaken) {
			s.events.AuthEvent("register", "duplicate")
			return user.User{}, ErrUserExists
		}
		return user.User{}, ErrInternal.wrap(err)
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	s.events.AuthEvent("register", "ok")
	s.log.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)

	return u, nil
}

// Login verifies credentials and starts a new session. Any previous refresh
// token of the user stops working: one active session per user.
func (s *Service) Login(ctx context.Context, email, password string) (sess Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	email = user.NormalizeEmail(email)

	if email == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			return Session{}, ErrInternal.wrap(err)
		}
		// burn the same bcrypt time as a real check so response timing does not leak which emails exist
		s.hasher.Verify(password, s.dummyPasswordHash())
		s.events.AuthEvent("login", "invalid_credentials")
		return Session{}, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, u.PasswordHash) {
		s.events.AuthEvent("login", "invalid_credentials")
		return Session{}, ErrInvalidCredentials
	}

	sess, err = s.issueSession(u)
	if err != nil {
		return Session{}, err
	}

	err = s.users.SetRefreshTokenHash(ctx, u.ID, s.tokens.HashRefreshToken(sess.RefreshToken))
	if err != nil {
		return Session{}, ErrInternal.wrap(err)
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	s.events.AuthEvent("login", "ok")

	return sess, nil
}

// Refresh rotates the presented refresh token. A well-signed, unexpired token
// that is not the currently stored one has already been rotated away, so the
// whole session is revoked.
func (s *Service) Refresh(ctx context.Context, raw string) (sess Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.Refresh")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(raw) == "" {
		return Session{}, ErrNoRefreshToken
	}

	claims, err := s.tokens.VerifyRefreshToken(raw)
	if err != nil {
		s.events.AuthEvent("refresh", "invalid_token")
		return Session{}, ErrInvalidToken.wrap(err)
	}

	span.SetAttributes(attribute.String("user.id", claims.UserID()))

	u, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			s.events.AuthEvent("refresh", "invalid_token")
			return Session{}, ErrInvalidToken.wrap(err)
		}
		return Session{}, ErrInternal.wrap(err)
	}

	if !u.HasSession() {
		s.events.AuthEvent("refresh", "session_revoked")
		return Session{}, ErrSessionRevoked
	}

	presented := s.tokens.HashRefreshToken(raw)

	if subtle.ConstantTimeCompare([]byte(presented), []byte(*u.RefreshTokenHash)) != 1 {
		return Session{}, s.revokeForReuse(ctx, u, "hash_mismatch")
	}

	sess, err = s.issueSession(u)
	if err != nil {
		return Session{}, err
	}

	swapped, err := s.users.SwapRefreshTokenHash(ctx, u.ID, presented, s.tokens.HashRefreshToken(sess.RefreshToken))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Session{}, ErrInvalidToken.wrap(err)
		}
		return Session{}, ErrInternal.wrap(err)
	}

	if !swapped {
		// a concurrent request consumed the same token first
		return Session{}, s.revokeForReuse(ctx, u, "concurrent_rotation")
	}

	s.events.AuthEvent("refresh", "ok")

	return sess, nil
}

// Logout clears the session named by the refresh token. It is best effort:
// a missing or invalid token is not an error.
func (s *Service) Logout(ctx context.Context, raw string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.Logout")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(raw) == "" {
		return nil
	}

	claims, err := s.tokens.VerifyRefreshToken(raw)
	if err != nil {
		s.events.AuthEvent("logout", "invalid_token")
		return nil
	}

	err = s.users.ClearRefreshTokenHash(ctx, claims.UserID())
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return ErrInternal.wrap(err)
	}

	s.events.AuthEvent("logout", "ok")

	return nil
}

// Authenticate validates an access token and resolves the user it names, so
// deleted accounts stop working before their tokens expire.
func (s *Service) Authenticate(ctx context.Context, raw string) (id Identity, err error) {
	if strings.TrimSpace(raw) == "" {
		return Identity{}, ErrNoToken
	}

	claims, err := s.tokens.VerifyAccessToken(raw)
	if err != nil {
		return Identity{}, ErrInvalidToken.wrap(err)
	}

	u, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Identity{}, ErrUserNotFound
		}
		return Identity{}, ErrInternal.wrap(err)
	}

	return Identity{
		UserID: u.ID,
		Email:  u.Email,
		Role:   user.Role(claims.Role),
	}, nil
}

// RevokeSession force-logs-out a user.
func (s *Service) RevokeSession(ctx context.Context, userID string) (err error) {
	ctx, span := tracer.Start(ctx, "auth.RevokeSession", trace.WithAttributes(attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	err = s.users.ClearRefreshTokenHash(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return ErrNotFound
		}
		return ErrInternal.wrap(err)
	}

	s.events.AuthEvent("revoke", "ok")
	s.log.InfoContext(ctx, "session revoked", "user_id", userID)

	return nil
}

func (s *Service) GetUser(ctx context.Context, id string) (user.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, ErrNotFound
		}
		return user.User{}, ErrInternal.wrap(err)
	}
	return u, nil
}

func (s *Service) issueSession(u user.User) (Session, error) {
	access, err := s.tokens.IssueAccessToken(u.ID, string(u.Role))
	if err != nil {
		return Session{}, ErrInternal.wrap(err)
	}

	refresh, expiresAt, err := s.tokens.IssueRefreshToken(u.ID)
	if err != nil {
		return Session{}, ErrInternal.wrap(err)
	}

	return Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		RefreshExpiresAt: expiresAt,
		User:             u,
	}, nil
}

func (s *Service) revokeForReuse(ctx context.Context, u user.User, reason string) error {
	err := s.users.ClearRefreshTokenHash(ctx, u.ID)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		return ErrInternal.wrap(err)
	}

	s.events.AuthEvent("refresh", "reuse_detected")
	s.log.WarnContext(ctx, "refresh token reuse detected, session revoked", "user_id", u.ID, "reason", reason)

	if s.alerter != nil {
		alertErr := s.alerter.SendSessionRevoked(ctx, notifications.SessionRevokedInput{
			UserID: u.ID,
			Email:  u.Email,
			Reason: reason,
			At:     time.Now().UTC(),
		})
		if alertErr != nil {
			s.log.WarnContext(ctx, "security alert not delivered", "user_id", u.ID, "err", alertErr)
		}
	}

	return ErrReuseDetected
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("holocron-dummy-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		ae := AsError(err)
		span.SetAttributes(attribute.String("auth.error_code", ae.Code))
		if ae.Kind == KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, ae.Code)
		}
	}
	span.End()
}
