// Package services – AuthService
//
// AuthService exchanges credentials for opaque session tokens and resolves
// tokens back to user IDs. Tokens are 32 random bytes, hex encoded, stored
// server side with an expiry.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/domain"
	"github.com/tbourn/teamhub/internal/repo"
)

// DefaultTokenTTL is used when AuthService.TokenTTL is not set.
const DefaultTokenTTL = 24 * time.Hour

// Login is the outcome of a successful credential check.
type Login struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

// AuthService issues and validates session tokens.
type AuthService struct {
	DB       *gorm.DB
	TokenTTL time.Duration

	// now is overridable in tests.
	now func() time.Time
}

// NewAuthService constructs an AuthService with the given token lifetime.
func NewAuthService(db *gorm.DB, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{DB: db, TokenTTL: ttl, now: time.Now}
}

// Login verifies email and password and opens a session. Unknown emails and
// wrong passwords produce the same authentication error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Login, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Login")
	defer span.End()

	email = NormalizeEmail(email)
	if email == "" {
		return nil, invalid("email", "email is required")
	}
	if password == "" {
		return nil, invalid("password", "password is required")
	}

	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.Authentication(msgInvalidCredentials, nil)
		}
		return nil, storageError("get user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, apperr.Authentication(msgInvalidCredentials, nil)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	token, err := newToken()
	if err != nil {
		return nil, storageError("generate token", err)
	}
	sess, err := repo.CreateSession(ctx, s.DB, token, u.ID, s.TokenTTL)
	if err != nil {
		return nil, storageError("create session", err)
	}
	return &Login{Token: sess.Token, ExpiresAt: sess.ExpiresAt, User: u}, nil
}

// Authenticate resolves a bearer token to its user ID.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Authenticate",
		trace.WithAttributes(attribute.Bool("token.present", token != "")),
	)
	defer span.End()

	if token == "" {
		return "", apperr.Authentication("missing bearer token", nil)
	}
	sess, err := repo.GetSession(ctx, s.DB, token, s.clock().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", apperr.Authentication(msgInvalidToken, nil)
		}
		return "", storageError("get session", err)
	}
	return sess.UserID, nil
}

// Logout ends a session. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := repo.DeleteSession(ctx, s.DB, token); err != nil {
		return storageError("delete session", err)
	}
	return nil
}

func (s *AuthService) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
